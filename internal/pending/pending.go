// Package pending persists the last-sent-but-unconfirmed user text per
// session, plus small UI preferences. Records must survive a process
// restart; they are cleared only when the relay durably confirms the text.
package pending

// Store is the durable key/value capability the reconciler needs. Get
// returns ok=false when no record exists for the session.
type Store interface {
	Get(sessionID string) (content string, ok bool, err error)
	Set(sessionID, content string) error
	Clear(sessionID string) error

	Preference(key string) (value string, ok bool, err error)
	SetPreference(key, value string) error

	Close() error
}

// Memory is an in-process Store for tests and for running without a data
// directory.
type Memory struct {
	writes map[string]string
	prefs  map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		writes: map[string]string{},
		prefs:  map[string]string{},
	}
}

func (m *Memory) Get(sessionID string) (string, bool, error) {
	content, ok := m.writes[sessionID]
	return content, ok, nil
}

func (m *Memory) Set(sessionID, content string) error {
	m.writes[sessionID] = content
	return nil
}

func (m *Memory) Clear(sessionID string) error {
	delete(m.writes, sessionID)
	return nil
}

func (m *Memory) Preference(key string) (string, bool, error) {
	value, ok := m.prefs[key]
	return value, ok, nil
}

func (m *Memory) SetPreference(key, value string) error {
	m.prefs[key] = value
	return nil
}

func (m *Memory) Close() error { return nil }
