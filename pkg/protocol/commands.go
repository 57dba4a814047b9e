// Package protocol implements the JSON wire protocol spoken with the relay:
// outbound command envelopes and the closed set of inbound event variants.
package protocol

import "encoding/json"

// Outbound command type discriminators.
const (
	TypeRegisterBrowser = "register_browser"
	TypeListSessions    = "list_sessions"
	TypeCreateSession   = "create_session"
	TypeLoadSession     = "load_session"
	TypeSendMessage     = "send_message"
)

// Command is an outbound envelope. Every variant carries its own `type` tag
// so a marshalled command is self-describing.
type Command interface {
	CommandType() string
}

// RegisterBrowser announces this client to the relay.
type RegisterBrowser struct {
	Type string `json:"type"`
}

// ListSessions requests a session list refresh for one repo.
type ListSessions struct {
	Type     string `json:"type"`
	RepoPath string `json:"repo_path"`
}

// CreateSession asks the repo's agent runner to create a new session.
type CreateSession struct {
	Type     string `json:"type"`
	RepoPath string `json:"repo_path"`
}

// LoadSession requests the full message history of a session.
type LoadSession struct {
	Type      string `json:"type"`
	RepoPath  string `json:"repo_path"`
	SessionID string `json:"session_id"`
}

// SendMessage submits a user turn. SessionID is null for a repo-level send.
type SendMessage struct {
	Type      string  `json:"type"`
	RepoPath  string  `json:"repo_path"`
	SessionID *string `json:"session_id"`
	Content   string  `json:"content"`
	Model     string  `json:"model"`
}

func (RegisterBrowser) CommandType() string { return TypeRegisterBrowser }
func (ListSessions) CommandType() string    { return TypeListSessions }
func (CreateSession) CommandType() string   { return TypeCreateSession }
func (LoadSession) CommandType() string     { return TypeLoadSession }
func (SendMessage) CommandType() string     { return TypeSendMessage }

// NewRegisterBrowser builds a registration command.
func NewRegisterBrowser() RegisterBrowser {
	return RegisterBrowser{Type: TypeRegisterBrowser}
}

// NewListSessions builds a session list request.
func NewListSessions(repoPath string) ListSessions {
	return ListSessions{Type: TypeListSessions, RepoPath: repoPath}
}

// NewCreateSession builds a session creation request.
func NewCreateSession(repoPath string) CreateSession {
	return CreateSession{Type: TypeCreateSession, RepoPath: repoPath}
}

// NewLoadSession builds a history request.
func NewLoadSession(repoPath, sessionID string) LoadSession {
	return LoadSession{Type: TypeLoadSession, RepoPath: repoPath, SessionID: sessionID}
}

// NewSendMessage builds a user turn submission.
func NewSendMessage(repoPath string, sessionID *string, content, model string) SendMessage {
	return SendMessage{
		Type:      TypeSendMessage,
		RepoPath:  repoPath,
		SessionID: sessionID,
		Content:   content,
		Model:     model,
	}
}

// EncodeCommand serializes a command for the wire. No semantic validation
// happens here; business rules live with the callers.
func EncodeCommand(c Command) ([]byte, error) {
	return json.Marshal(c)
}
