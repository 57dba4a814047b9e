// Package timeline turns a raw session message list into renderable items:
// standalone user and system turns, assistant prose, and worklog groups of
// tool invocations annotated with the prose that preceded them.
package timeline

import "relaysync/pkg/chat"

// ItemKind discriminates renderable items.
type ItemKind int

const (
	ItemUser ItemKind = iota
	ItemAssistant
	ItemWorklog
	ItemSystem
)

func (k ItemKind) String() string {
	switch k {
	case ItemUser:
		return "user"
	case ItemAssistant:
		return "assistant"
	case ItemWorklog:
		return "worklog"
	default:
		return "system"
	}
}

// WorklogEntry is one tool invocation paired with its preceding prose.
type WorklogEntry struct {
	Tool    chat.Block
	Context string
	Source  chat.Message
}

// Item is one renderable unit. Text is set for user, assistant and system
// items; Entries for worklog items.
type Item struct {
	Kind    ItemKind
	Text    string
	Entries []WorklogEntry
}

// Segment partitions messages into renderable items. It is a pure function:
// ordering is preserved and no input is mutated. Side-channel messages and
// pure tool-result acknowledgements are dropped first; runs of consecutive
// assistant messages are folded into one exchange.
func Segment(msgs []chat.Message) []Item {
	visible := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.SideChannel || m.IsToolResult() {
			continue
		}
		visible = append(visible, m)
	}

	var items []Item
	for i := 0; i < len(visible); {
		m := visible[i]
		if m.Role != chat.RoleAssistant {
			kind := ItemUser
			if m.Role == chat.RoleSystem {
				kind = ItemSystem
			}
			items = append(items, Item{Kind: kind, Text: m.Text()})
			i++
			continue
		}

		j := i
		for j < len(visible) && visible[j].Role == chat.RoleAssistant {
			j++
		}
		items = append(items, segmentExchange(visible[i:j])...)
		i = j
	}
	return items
}

// segmentExchange renders one run of consecutive assistant messages.
func segmentExchange(msgs []chat.Message) []Item {
	if len(msgs) == 1 {
		return segmentSingle(msgs[0])
	}
	return segmentSpan(msgs)
}

// segmentSingle handles the common streaming shape: the whole exchange is
// one growing message. Its text is split at the point the first tool block
// appeared so prose before the tools renders ahead of the worklog.
func segmentSingle(m chat.Message) []Item {
	text := m.Text()
	tools := m.ToolBlocks()

	if len(tools) == 0 {
		if text == "" {
			return nil
		}
		return []Item{{Kind: ItemAssistant, Text: text}}
	}

	before, after := splitAt(text, m.SplitAt)

	var items []Item
	if before != "" {
		items = append(items, Item{Kind: ItemAssistant, Text: before})
	}

	entries := make([]WorklogEntry, 0, len(tools))
	for _, tool := range tools {
		entries = append(entries, WorklogEntry{Tool: tool, Context: before, Source: m})
	}
	items = append(items, Item{Kind: ItemWorklog, Entries: entries})

	if after != "" && after != before {
		items = append(items, Item{Kind: ItemAssistant, Text: after})
	}
	return items
}

// segmentSpan handles replayed history, where every tool call tends to be
// its own persisted entry. Each worklog entry's context is the most recent
// text carried by a message after the first, defaulting to the first text.
func segmentSpan(msgs []chat.Message) []Item {
	first := msgs[0].Text()

	var items []Item
	if first != "" {
		items = append(items, Item{Kind: ItemAssistant, Text: first})
	}

	var entries []WorklogEntry
	context := first
	for i, m := range msgs {
		if i > 0 {
			if t := m.Text(); t != "" {
				context = t
			}
		}
		for _, tool := range m.ToolBlocks() {
			entries = append(entries, WorklogEntry{Tool: tool, Context: context, Source: m})
		}
	}
	if len(entries) > 0 {
		items = append(items, Item{Kind: ItemWorklog, Entries: entries})
	}

	last := msgs[len(msgs)-1].Text()
	if last != "" && last != first {
		items = append(items, Item{Kind: ItemAssistant, Text: last})
	}
	return items
}

// splitAt cuts text at the recorded tool-appearance offset. An unrecorded
// offset treats all text as preceding the tools.
func splitAt(text string, offset int) (before, after string) {
	if offset < 0 || offset > len(text) {
		return text, ""
	}
	return text[:offset], text[offset:]
}
