package protocol

import "encoding/json"

// Agent stream payload kinds carried inside an AgentStream envelope.
const (
	StreamInit      = "init"
	StreamSystem    = "system"
	StreamAssistant = "assistant"
	StreamResult    = "result"
	StreamError     = "error"
)

// StreamPayload is one decoded line of agent output. Message holds the raw
// nested message object for assistant payloads; Error carries the error text
// for error payloads.
type StreamPayload struct {
	Type           string          `json:"type"`
	Subtype        string          `json:"subtype,omitempty"`
	AgentSessionID string          `json:"session_id,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
	Result         string          `json:"result,omitempty"`
	IsError        bool            `json:"is_error,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// DecodeStreamPayload parses the data field of an AgentStream envelope.
func DecodeStreamPayload(data json.RawMessage) (StreamPayload, error) {
	var p StreamPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return StreamPayload{}, err
	}
	return p, nil
}

// IsStart reports whether the payload opens a stream. The runner emits
// either a bare init line or a system line with subtype init depending on
// its version; both count.
func (p StreamPayload) IsStart() bool {
	return p.Type == StreamInit || (p.Type == StreamSystem && p.Subtype == "init")
}

// IsEnd reports whether the payload closes a stream.
func (p StreamPayload) IsEnd() bool {
	return p.Type == StreamResult || p.Type == StreamError
}

// ErrorText returns the surfaced error message for error payloads, falling
// back to the result text when the runner reports is_error on a result line.
func (p StreamPayload) ErrorText() string {
	if p.Error != "" {
		return p.Error
	}
	if p.IsError {
		return p.Result
	}
	return ""
}
