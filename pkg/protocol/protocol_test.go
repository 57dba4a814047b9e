package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventVariants(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, ev Event)
	}{
		{
			name:  "client_connected",
			frame: `{"type":"client_connected","repo_path":"/work/app","repo_name":"app"}`,
			check: func(t *testing.T, ev Event) {
				e := ev.(*ClientConnected)
				assert.Equal(t, "/work/app", e.RepoPath)
				assert.Equal(t, "app", e.RepoName)
			},
		},
		{
			name:  "client_disconnected",
			frame: `{"type":"client_disconnected","repo_path":"/work/app"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "/work/app", ev.(*ClientDisconnected).RepoPath)
			},
		},
		{
			name: "sessions_list",
			frame: `{"type":"sessions_list","repo_path":"/work/app","sessions":[
				{"session_id":"session-a1","created_at":"2026-01-02T10:00:00Z","last_active":"2026-01-02T11:00:00Z"}],
				"active_session_ids":["session-a1"]}`,
			check: func(t *testing.T, ev Event) {
				e := ev.(*SessionsList)
				require.Len(t, e.Sessions, 1)
				assert.Equal(t, "session-a1", e.Sessions[0].SessionID)
				assert.Equal(t, []string{"session-a1"}, e.ActiveSessionIDs)
			},
		},
		{
			name:  "session_created",
			frame: `{"type":"session_created","repo_path":"/work/app","session_id":"session-b2"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "session-b2", ev.(*SessionCreated).SessionID)
			},
		},
		{
			name:  "session_history",
			frame: `{"type":"session_history","repo_path":"/work/app","session_id":"s1","messages":[{"role":"user","content":"hi"}]}`,
			check: func(t *testing.T, ev Event) {
				require.Len(t, ev.(*SessionHistory).Messages, 1)
			},
		},
		{
			name:  "session_update",
			frame: `{"type":"session_update","repo_path":"/work/app","session_id":"s1","new_entries":[{"role":"assistant","content":"ok"}]}`,
			check: func(t *testing.T, ev Event) {
				require.Len(t, ev.(*SessionUpdate).NewEntries, 1)
			},
		},
		{
			name:  "stream_start",
			frame: `{"type":"stream_start","repo_path":"/work/app","session_id":"s1"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "s1", ev.(*StreamStart).SessionID)
			},
		},
		{
			name:  "stream_end",
			frame: `{"type":"stream_end","repo_path":"/work/app","session_id":"s1"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "s1", ev.(*StreamEnd).SessionID)
			},
		},
		{
			name:  "claude_stream",
			frame: `{"type":"claude_stream","session_id":"s1","data":{"type":"assistant","message":{"role":"assistant","content":"hi"}}}`,
			check: func(t *testing.T, ev Event) {
				e := ev.(*AgentStream)
				assert.Equal(t, "s1", e.SessionID)
				assert.NotEmpty(t, e.Data)
			},
		},
		{
			name:  "client_count",
			frame: `{"type":"client_count","count":3}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, 3, ev.(*ClientCount).Count)
			},
		},
		{
			name:  "error",
			frame: `{"type":"error","repo_path":"/work/app","message":"boom"}`,
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "boom", ev.(*ErrorEvent).Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.frame))
			require.NoError(t, err)
			require.NotNil(t, ev)
			tt.check(t, ev)
		})
	}
}

func TestDecodeEventUnknownTypeIgnored(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"totally_new_thing","payload":42}`))
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodeEventMalformed(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":`))
	assert.Error(t, err)
}

// Every command type must survive serialize-then-parse with its field set
// intact.
func TestCommandRoundTrip(t *testing.T) {
	sid := "session-a1"
	cmds := []Command{
		NewRegisterBrowser(),
		NewListSessions("/work/app"),
		NewCreateSession("/work/app"),
		NewLoadSession("/work/app", "session-a1"),
		NewSendMessage("/work/app", &sid, "hello", "sonnet"),
		NewSendMessage("/work/app", nil, "hello", "sonnet"),
	}

	for _, cmd := range cmds {
		t.Run(cmd.CommandType(), func(t *testing.T) {
			data, err := EncodeCommand(cmd)
			require.NoError(t, err)

			var head struct {
				Type string `json:"type"`
			}
			require.NoError(t, json.Unmarshal(data, &head))
			assert.Equal(t, cmd.CommandType(), head.Type)

			var fields map[string]any
			require.NoError(t, json.Unmarshal(data, &fields))
			switch c := cmd.(type) {
			case ListSessions:
				assert.Equal(t, c.RepoPath, fields["repo_path"])
			case CreateSession:
				assert.Equal(t, c.RepoPath, fields["repo_path"])
			case LoadSession:
				assert.Equal(t, c.SessionID, fields["session_id"])
			case SendMessage:
				assert.Equal(t, c.Content, fields["content"])
				assert.Equal(t, c.Model, fields["model"])
				if c.SessionID == nil {
					assert.Nil(t, fields["session_id"])
				} else {
					assert.Equal(t, *c.SessionID, fields["session_id"])
				}
			}
		})
	}
}

func TestDecodeStreamPayload(t *testing.T) {
	p, err := DecodeStreamPayload(json.RawMessage(`{"type":"system","subtype":"init","session_id":"agent-9"}`))
	require.NoError(t, err)
	assert.True(t, p.IsStart())
	assert.False(t, p.IsEnd())
	assert.Equal(t, "agent-9", p.AgentSessionID)

	p, err = DecodeStreamPayload(json.RawMessage(`{"type":"result","result":"done","is_error":false}`))
	require.NoError(t, err)
	assert.True(t, p.IsEnd())
	assert.Empty(t, p.ErrorText())

	p, err = DecodeStreamPayload(json.RawMessage(`{"type":"result","result":"exit status 1","is_error":true}`))
	require.NoError(t, err)
	assert.True(t, p.IsEnd())
	assert.Equal(t, "exit status 1", p.ErrorText())

	p, err = DecodeStreamPayload(json.RawMessage(`{"type":"error","error":"spawn failed"}`))
	require.NoError(t, err)
	assert.True(t, p.IsEnd())
	assert.Equal(t, "spawn failed", p.ErrorText())
}
