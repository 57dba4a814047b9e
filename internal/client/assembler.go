package client

import (
	"encoding/json"

	"relaysync/internal/store"
	"relaysync/pkg/chat"
	"relaysync/pkg/protocol"
)

// handleAgentStreamLocked folds one combined streaming envelope into the
// store. Non-selected sessions only get their stream flags updated; message
// content is materialized for the selected session alone.
func (e *Engine) handleAgentStreamLocked(ev *protocol.AgentStream) {
	payload, err := protocol.DecodeStreamPayload(ev.Data)
	if err != nil {
		e.log.Warn("dropping malformed stream payload", "session", ev.SessionID, "err", err)
		return
	}

	switch {
	case payload.IsStart():
		e.streamStartLocked(ev.SessionID, payload.AgentSessionID)
	case payload.Type == protocol.StreamAssistant:
		e.assistantDeltaLocked(ev.SessionID, payload)
	case payload.IsEnd():
		errText := payload.ErrorText()
		if payload.Type == protocol.StreamError && errText == "" {
			errText = "agent stream error"
		}
		e.streamEndLocked(ev.SessionID, errText)
	case payload.Type == protocol.StreamSystem:
		// Mid-stream system lines carry no timeline content, but may name
		// the upstream agent session.
		if payload.AgentSessionID != "" {
			e.recordAgentSessionIDLocked(ev.SessionID, payload.AgentSessionID)
		}
	default:
		e.log.Debug("ignoring stream payload", "type", payload.Type)
	}
}

// streamStartLocked transitions a session to streaming: any prior
// accumulation is discarded, so the next assistant delta opens a fresh
// timeline message, and the id joins the active stream set.
func (e *Engine) streamStartLocked(sessionID, agentSessionID string) {
	e.streamFresh[sessionID] = true

	e.store.Update(func(next *store.State) {
		next.ActiveStreams[sessionID] = struct{}{}
		refreshStreamFlags(next)
		if agentSessionID != "" {
			setAgentSessionID(next, sessionID, agentSessionID)
		}
	})
}

// streamEndLocked transitions a session back to idle. A non-empty errText
// is surfaced as a synthetic system message when the session is selected.
func (e *Engine) streamEndLocked(sessionID, errText string) {
	delete(e.streamFresh, sessionID)

	e.store.Update(func(next *store.State) {
		delete(next.ActiveStreams, sessionID)
		refreshStreamFlags(next)

		if errText != "" && next.SelectedSession == sessionID {
			next.Messages = append(next.Messages, systemMessage(errText))
		}
	})
}

// assistantDeltaLocked merges one incremental assistant payload into the
// selected timeline. Deltas are forward-only: text concatenates onto the
// single running text block, tool blocks append once per invocation id, and
// anything else passes through verbatim. The running text length is
// snapshotted before the first tool-carrying delta applies, so the
// segmenter can later split prose before the tools from prose after.
func (e *Engine) assistantDeltaLocked(sessionID string, payload protocol.StreamPayload) {
	// A delta implies the session is live even if the start signal was
	// missed, e.g. when attaching mid-stream.
	fresh := e.streamFresh[sessionID]

	state := e.store.State()
	selected := state.SelectedSession == sessionID && sessionID != ""

	e.store.Update(func(next *store.State) {
		next.ActiveStreams[sessionID] = struct{}{}
		refreshStreamFlags(next)
		if !selected {
			return
		}

		blocks := chat.ParseBlocks(extractContent(payload))
		if len(blocks) == 0 {
			return
		}

		msgs := next.Messages
		last := len(msgs) - 1
		if fresh || last < 0 || msgs[last].Role != chat.RoleAssistant || msgs[last].IsTemp() {
			msgs = append(msgs, chat.Message{Role: chat.RoleAssistant, SplitAt: -1})
			last = len(msgs) - 1
		}
		target := &msgs[last]

		lenBefore := len(target.Text())
		for _, blk := range blocks {
			switch blk.Type {
			case chat.BlockText:
				appendText(target, blk.Text)
			case chat.BlockToolUse:
				if hasToolID(target, blk.ID) {
					continue
				}
				if target.SplitAt < 0 {
					target.SplitAt = lenBefore
				}
				target.Blocks = append(target.Blocks, blk)
			default:
				target.Blocks = append(target.Blocks, blk)
			}
		}
		next.Messages = msgs
	})

	if fresh {
		delete(e.streamFresh, sessionID)
	}
}

// extractContent pulls the content payload out of an assistant stream line.
// The runner nests it under message.content.
func extractContent(payload protocol.StreamPayload) json.RawMessage {
	if len(payload.Message) == 0 {
		return nil
	}
	var inner struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(payload.Message, &inner); err != nil {
		return nil
	}
	return inner.Content
}

// appendText concatenates onto the message's running text block, creating
// it if this is the first text of the exchange.
func appendText(msg *chat.Message, text string) {
	if text == "" {
		return
	}
	for i := range msg.Blocks {
		if msg.Blocks[i].Type == chat.BlockText {
			msg.Blocks[i].Text += text
			return
		}
	}
	msg.Blocks = append(msg.Blocks, chat.Block{Type: chat.BlockText, Text: text})
}

func hasToolID(msg *chat.Message, id string) bool {
	if id == "" {
		return false
	}
	for _, blk := range msg.Blocks {
		if blk.Type == chat.BlockToolUse && blk.ID == id {
			return true
		}
	}
	return false
}

// setAgentSessionID records the upstream agent session id on the matching
// session record, searching by repo when known.
func setAgentSessionID(s *store.State, sessionID, agentSessionID string) {
	for ri := range s.Repos {
		for si := range s.Repos[ri].Sessions {
			if s.Repos[ri].Sessions[si].ID == sessionID {
				s.Repos[ri].Sessions[si].AgentSessionID = agentSessionID
				return
			}
		}
	}
}

func (e *Engine) recordAgentSessionIDLocked(sessionID, agentSessionID string) {
	e.store.Update(func(next *store.State) {
		setAgentSessionID(next, sessionID, agentSessionID)
	})
}
