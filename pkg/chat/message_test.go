package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringContent(t *testing.T) {
	msg, err := Parse(json.RawMessage(`{"role":"user","content":"hello there"}`))
	require.NoError(t, err)

	assert.Equal(t, RoleUser, msg.Role)
	require.Len(t, msg.Blocks, 1)
	assert.Equal(t, BlockText, msg.Blocks[0].Type)
	assert.Equal(t, "hello there", msg.Text())
	assert.Equal(t, -1, msg.SplitAt)
}

func TestParseBlockContent(t *testing.T) {
	raw := `{"role":"assistant","content":[
		{"type":"text","text":"Let me check."},
		{"type":"tool_use","id":"tu_1","name":"Read","input":{"file_path":"main.go"}},
		{"type":"thinking","thinking":"opaque payload"}
	]}`

	msg, err := Parse(json.RawMessage(raw))
	require.NoError(t, err)

	require.Len(t, msg.Blocks, 3)
	assert.Equal(t, "Let me check.", msg.Text())

	tools := msg.ToolBlocks()
	require.Len(t, tools, 1)
	assert.Equal(t, "tu_1", tools[0].ID)
	assert.Equal(t, "Read", tools[0].Name)
	assert.Equal(t, "main.go", tools[0].Input["file_path"])

	// Unknown block types keep their raw JSON.
	assert.Equal(t, "thinking", msg.Blocks[2].Type)
	assert.Contains(t, string(msg.Blocks[2].Raw), "opaque payload")
}

func TestParseProvenanceFields(t *testing.T) {
	msg, err := Parse(json.RawMessage(`{"role":"assistant","content":"x","is_side_channel":true,"client_temp_id":"temp-1"}`))
	require.NoError(t, err)

	assert.True(t, msg.SideChannel)
	assert.True(t, msg.IsTemp())
	assert.Equal(t, "temp-1", msg.TempID)
}

func TestIsToolResult(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{
			name: "all tool_result blocks",
			msg: Message{Role: RoleUser, Blocks: []Block{
				{Type: BlockToolResult, ToolUseID: "tu_1"},
				{Type: BlockToolResult, ToolUseID: "tu_2"},
			}},
			want: true,
		},
		{
			name: "mixed blocks",
			msg: Message{Role: RoleUser, Blocks: []Block{
				{Type: BlockToolResult, ToolUseID: "tu_1"},
				{Type: BlockText, Text: "and also"},
			}},
			want: false,
		},
		{
			name: "empty block list",
			msg:  Message{Role: RoleUser},
			want: false,
		},
		{
			name: "assistant role",
			msg:  Message{Role: RoleAssistant, Blocks: []Block{{Type: BlockToolResult}}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.IsToolResult())
		})
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"role":`))
	assert.Error(t, err)
}
