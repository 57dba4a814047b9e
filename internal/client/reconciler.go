package client

import (
	"encoding/json"

	"github.com/google/uuid"

	"relaysync/internal/store"
	"relaysync/pkg/chat"
	"relaysync/pkg/protocol"
)

// SendUserMessage submits a user turn for the selected session: the text is
// appended optimistically under a client temp id, durably recorded as
// pending, and sent to the relay. The optimistic copy is retired when the
// server-confirmed copy is observed in a history or update batch.
func (e *Engine) SendUserMessage(content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.store.State()
	if state.SelectedRepo == "" || state.SelectedSession == "" {
		return ErrNoSelection
	}
	if state.IsStreaming(state.SelectedSession) {
		return ErrSessionStreaming
	}

	sessionID := state.SelectedSession
	repoPath := state.SelectedRepo

	e.store.Update(func(next *store.State) {
		// At most one optimistic message per session: a re-send before the
		// stream opens replaces the prior temp entry, matching the pending
		// record overwrite below.
		kept := next.Messages[:0]
		for _, m := range next.Messages {
			if !m.IsTemp() {
				kept = append(kept, m)
			}
		}
		next.Messages = append(kept, tempUserMessage(content))
	})

	if err := e.pend.Set(sessionID, content); err != nil {
		e.log.Warn("persist pending write failed", "session", sessionID, "err", err)
	}

	e.sendLocked(protocol.NewSendMessage(repoPath, &sessionID, content, e.model))
	return nil
}

// applyHistoryLocked installs an authoritative snapshot for the selected
// session. History for non-selected sessions is ignored: only the active
// timeline is materialized.
func (e *Engine) applyHistoryLocked(ev *protocol.SessionHistory) {
	state := e.store.State()
	if ev.SessionID != state.SelectedSession || state.SelectedSession == "" {
		return
	}

	msgs := parseEntries(ev.Messages)

	pendingText, hasPending, err := e.pend.Get(ev.SessionID)
	if err != nil {
		e.log.Warn("read pending write failed", "session", ev.SessionID, "err", err)
	}
	if hasPending && containsUserText(msgs, pendingText) {
		// The unconfirmed text has been durably observed server-side.
		if err := e.pend.Clear(ev.SessionID); err != nil {
			e.log.Warn("clear pending write failed", "session", ev.SessionID, "err", err)
		}
		hasPending = false
	}

	if hasPending {
		// The user's unconfirmed text must survive a reload.
		msgs = append(msgs, tempUserMessage(pendingText))
	}

	e.store.Update(func(next *store.State) {
		next.Messages = msgs
	})
}

// applyUpdateLocked merges an incremental entry batch into the selected
// timeline. Confirmed user arrivals retire all outstanding optimism for the
// session; entries duplicating an already-present confirmed user message
// are filtered out before the merge.
func (e *Engine) applyUpdateLocked(ev *protocol.SessionUpdate) {
	state := e.store.State()
	if ev.SessionID != state.SelectedSession || state.SelectedSession == "" {
		return
	}

	entries := parseEntries(ev.NewEntries)
	if len(entries) == 0 {
		return
	}

	batchHasConfirmedUser := false
	for _, m := range entries {
		if m.Role == chat.RoleUser && !m.IsTemp() && !m.IsToolResult() {
			batchHasConfirmedUser = true
			break
		}
	}

	pendingText, ok, err := e.pend.Get(ev.SessionID)
	if err != nil {
		e.log.Warn("read pending write failed", "session", ev.SessionID, "err", err)
	}
	if ok && containsUserText(entries, pendingText) {
		if err := e.pend.Clear(ev.SessionID); err != nil {
			e.log.Warn("clear pending write failed", "session", ev.SessionID, "err", err)
		}
	}

	e.store.Update(func(next *store.State) {
		existing := next.Messages
		if batchHasConfirmedUser {
			kept := existing[:0]
			for _, m := range existing {
				if !m.IsTemp() {
					kept = append(kept, m)
				}
			}
			existing = kept
		}

		// Duplicate-delivery defense: a user entry whose literal text matches
		// an already-present confirmed user message is dropped.
		seen := map[string]bool{}
		for _, m := range existing {
			if m.Role == chat.RoleUser && !m.IsTemp() {
				seen[m.Text()] = true
			}
		}

		for _, m := range entries {
			if m.Role == chat.RoleUser && !m.IsTemp() && !m.IsToolResult() && seen[m.Text()] {
				continue
			}
			existing = append(existing, m)
		}
		next.Messages = existing
	})
}

// parseEntries decodes raw wire messages, skipping anything malformed or
// unrecognizable.
func parseEntries(raw []json.RawMessage) []chat.Message {
	msgs := make([]chat.Message, 0, len(raw))
	for _, r := range raw {
		m, err := chat.Parse(r)
		if err != nil {
			continue
		}
		switch m.Role {
		case chat.RoleUser, chat.RoleAssistant, chat.RoleSystem:
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// containsUserText reports whether any confirmed user message carries
// exactly the given text.
func containsUserText(msgs []chat.Message, text string) bool {
	for _, m := range msgs {
		if m.Role == chat.RoleUser && !m.IsTemp() && !m.IsToolResult() && m.Text() == text {
			return true
		}
	}
	return false
}

func tempUserMessage(content string) chat.Message {
	msg := chat.NewText(chat.RoleUser, content)
	msg.TempID = "temp-" + uuid.NewString()
	return msg
}

func systemMessage(text string) chat.Message {
	return chat.NewText(chat.RoleSystem, text)
}
