// Package chat defines the conversation message model shared between the
// sync engine and its consumers.
package chat

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Block type discriminators as they appear on the wire.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Block is a single content element. Known kinds are text, tool_use and
// tool_result; anything else is carried verbatim in Raw so unknown block
// types survive a round trip untouched.
type Block struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`

	// Raw holds the original JSON for block types we do not model.
	Raw json.RawMessage `json:"-"`
}

// Message is one entry in a session timeline.
type Message struct {
	Role   Role
	Blocks []Block

	// SideChannel marks agent-internal scratch turns hidden from the timeline.
	SideChannel bool

	// TempID is set on optimistic local messages that the relay has not yet
	// confirmed. Empty for everything server-delivered.
	TempID string

	// SplitAt is the running text length at the moment the first tool block
	// was merged during streaming, used to separate the prose before the
	// tools from the prose after. -1 means no split was recorded.
	SplitAt int
}

// NewText builds a message with a single text block.
func NewText(role Role, text string) Message {
	return Message{
		Role:    role,
		Blocks:  []Block{{Type: BlockText, Text: text}},
		SplitAt: -1,
	}
}

// Text returns the concatenation of all text blocks.
func (m *Message) Text() string {
	var b strings.Builder
	for _, blk := range m.Blocks {
		if blk.Type == BlockText {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}

// ToolBlocks returns the tool_use blocks in order.
func (m *Message) ToolBlocks() []Block {
	var tools []Block
	for _, blk := range m.Blocks {
		if blk.Type == BlockToolUse {
			tools = append(tools, blk)
		}
	}
	return tools
}

// HasToolUse reports whether any block is a tool invocation.
func (m *Message) HasToolUse() bool {
	return len(m.ToolBlocks()) > 0
}

// IsToolResult reports whether the message is a pure tool-result
// acknowledgement: a user-role message whose non-empty block list consists
// solely of tool_result blocks.
func (m *Message) IsToolResult() bool {
	if m.Role != RoleUser || len(m.Blocks) == 0 {
		return false
	}
	for _, blk := range m.Blocks {
		if blk.Type != BlockToolResult {
			return false
		}
	}
	return true
}

// IsTemp reports whether the message is an unconfirmed optimistic write.
func (m *Message) IsTemp() bool {
	return m.TempID != ""
}

type rawMessage struct {
	Role        Role            `json:"role"`
	Content     json.RawMessage `json:"content"`
	SideChannel bool            `json:"is_side_channel"`
	TempID      string          `json:"client_temp_id"`
}

type rawBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
	ToolUseID string         `json:"tool_use_id"`
}

// Parse decodes a wire message object. Content may be a plain string or an
// array of content blocks; a plain string becomes a single text block.
func Parse(data json.RawMessage) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, err
	}

	msg := Message{
		Role:        raw.Role,
		SideChannel: raw.SideChannel,
		TempID:      raw.TempID,
		SplitAt:     -1,
	}
	msg.Blocks = ParseBlocks(raw.Content)
	return msg, nil
}

// ParseBlocks decodes a content payload into blocks. A string payload yields
// one text block; unknown block types keep their raw JSON.
func ParseBlocks(raw json.RawMessage) []Block {
	if len(raw) == 0 {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []Block{{Type: BlockText, Text: asString}}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	blocks := make([]Block, 0, len(items))
	for _, item := range items {
		var rb rawBlock
		if err := json.Unmarshal(item, &rb); err != nil {
			continue
		}
		switch rb.Type {
		case BlockText:
			blocks = append(blocks, Block{Type: BlockText, Text: rb.Text})
		case BlockToolUse:
			blocks = append(blocks, Block{
				Type:  BlockToolUse,
				ID:    rb.ID,
				Name:  rb.Name,
				Input: rb.Input,
			})
		case BlockToolResult:
			blocks = append(blocks, Block{
				Type:      BlockToolResult,
				ToolUseID: rb.ToolUseID,
				Raw:       append(json.RawMessage(nil), item...),
			})
		default:
			blocks = append(blocks, Block{
				Type: rb.Type,
				Raw:  append(json.RawMessage(nil), item...),
			})
		}
	}
	return blocks
}
