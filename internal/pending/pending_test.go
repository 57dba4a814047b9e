package pending

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "pending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestSetGetClear(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("session-a1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("session-a1", "hello"))
			content, ok, err := s.Get("session-a1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "hello", content)

			// Overwrite keeps one record per session.
			require.NoError(t, s.Set("session-a1", "hello again"))
			content, ok, err = s.Get("session-a1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "hello again", content)

			require.NoError(t, s.Clear("session-a1"))
			_, ok, err = s.Get("session-a1")
			require.NoError(t, err)
			assert.False(t, ok)

			// Clearing an absent record is a no-op.
			require.NoError(t, s.Clear("session-a1"))
		})
	}
}

func TestPreferences(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Preference("sidebar_collapsed")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.SetPreference("sidebar_collapsed", "true"))
			value, ok, err := s.Preference("sidebar_collapsed")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "true", value)
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("session-a1", "unconfirmed text"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	content, ok, err := s.Get("session-a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "unconfirmed text", content)
}
