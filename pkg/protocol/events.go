package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound event type discriminators.
const (
	TypeClientConnected    = "client_connected"
	TypeClientDisconnected = "client_disconnected"
	TypeSessionsList       = "sessions_list"
	TypeSessionCreated     = "session_created"
	TypeSessionHistory     = "session_history"
	TypeSessionUpdate      = "session_update"
	TypeStreamStart        = "stream_start"
	TypeStreamEnd          = "stream_end"
	TypeAgentStream        = "claude_stream"
	TypeClientCount        = "client_count"
	TypeError              = "error"
)

// Event is one decoded inbound variant.
type Event interface {
	EventType() string
}

// SessionInfo is a session record as delivered by the relay.
type SessionInfo struct {
	SessionID      string `json:"session_id"`
	AgentSessionID string `json:"agent_session_id,omitempty"`
	CreatedAt      string `json:"created_at"`
	LastActive     string `json:"last_active"`
}

// ClientConnected announces an agent runner attaching for a repo.
type ClientConnected struct {
	RepoPath string `json:"repo_path"`
	RepoName string `json:"repo_name"`
}

// ClientDisconnected announces a repo's agent runner going away.
type ClientDisconnected struct {
	RepoPath string `json:"repo_path"`
}

// SessionsList replaces a repo's session list wholesale. ActiveSessionIDs
// optionally names sessions the runner considers mid-stream.
type SessionsList struct {
	RepoPath         string        `json:"repo_path"`
	Sessions         []SessionInfo `json:"sessions"`
	ActiveSessionIDs []string      `json:"active_session_ids,omitempty"`
}

// SessionCreated confirms a create_session command.
type SessionCreated struct {
	RepoPath  string `json:"repo_path"`
	SessionID string `json:"session_id"`
}

// SessionHistory is the authoritative message snapshot for a session.
type SessionHistory struct {
	RepoPath  string            `json:"repo_path"`
	SessionID string            `json:"session_id"`
	Messages  []json.RawMessage `json:"messages"`
}

// SessionUpdate delivers incremental persisted entries for a session.
type SessionUpdate struct {
	RepoPath   string            `json:"repo_path"`
	SessionID  string            `json:"session_id"`
	NewEntries []json.RawMessage `json:"new_entries"`
}

// StreamStart signals a session beginning to emit agent output.
type StreamStart struct {
	RepoPath  string `json:"repo_path"`
	SessionID string `json:"session_id"`
}

// StreamEnd signals a session's agent output finishing.
type StreamEnd struct {
	RepoPath  string `json:"repo_path"`
	SessionID string `json:"session_id"`
}

// AgentStream is the combined streaming envelope: an opaque payload whose
// own `type` field is one of init, system, assistant, result, error.
type AgentStream struct {
	RepoPath  string          `json:"repo_path"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// ClientCount reports how many browser clients the relay currently serves.
type ClientCount struct {
	Count int `json:"count"`
}

// ErrorEvent is a relay-reported application error.
type ErrorEvent struct {
	RepoPath string `json:"repo_path,omitempty"`
	Message  string `json:"message"`
}

func (ClientConnected) EventType() string    { return TypeClientConnected }
func (ClientDisconnected) EventType() string { return TypeClientDisconnected }
func (SessionsList) EventType() string       { return TypeSessionsList }
func (SessionCreated) EventType() string     { return TypeSessionCreated }
func (SessionHistory) EventType() string     { return TypeSessionHistory }
func (SessionUpdate) EventType() string      { return TypeSessionUpdate }
func (StreamStart) EventType() string        { return TypeStreamStart }
func (StreamEnd) EventType() string          { return TypeStreamEnd }
func (AgentStream) EventType() string        { return TypeAgentStream }
func (ClientCount) EventType() string        { return TypeClientCount }
func (ErrorEvent) EventType() string         { return TypeError }

// DecodeEvent parses one inbound frame. Frames with an unknown `type` decode
// to (nil, nil) so callers can ignore them; malformed JSON returns an error
// and the frame is dropped upstream.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	decode := func(v Event) (Event, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return v, nil
	}

	switch head.Type {
	case TypeClientConnected:
		return decode(&ClientConnected{})
	case TypeClientDisconnected:
		return decode(&ClientDisconnected{})
	case TypeSessionsList:
		return decode(&SessionsList{})
	case TypeSessionCreated:
		return decode(&SessionCreated{})
	case TypeSessionHistory:
		return decode(&SessionHistory{})
	case TypeSessionUpdate:
		return decode(&SessionUpdate{})
	case TypeStreamStart:
		return decode(&StreamStart{})
	case TypeStreamEnd:
		return decode(&StreamEnd{})
	case TypeAgentStream:
		return decode(&AgentStream{})
	case TypeClientCount:
		return decode(&ClientCount{})
	case TypeError:
		return decode(&ErrorEvent{})
	default:
		// Unknown types are accepted and ignored for forward compatibility.
		return nil, nil
	}
}
