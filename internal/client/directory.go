package client

import (
	"sort"
	"strings"
	"time"

	"relaysync/internal/store"
	"relaysync/pkg/protocol"
)

// upsertRepoLocked registers a repo on its runner connecting. Idempotent by
// path: a repeated connect event only re-requests the session list.
func (e *Engine) upsertRepoLocked(repoPath, repoName string) {
	state := e.store.State()
	if state.RepoByPath(repoPath) == nil {
		e.log.Info("repo connected", "name", repoName, "path", repoPath)
		e.store.Update(func(next *store.State) {
			next.Repos = append(next.Repos, store.Repo{Name: repoName, Path: repoPath})
			sortRepos(next.Repos)
		})
	}
	e.sendLocked(protocol.NewListSessions(repoPath))
}

// removeRepoLocked drops a repo on its runner disconnecting. Selection and
// the visible timeline are cleared only when the removed repo was the
// selected one; otherwise this is a pure list filter.
func (e *Engine) removeRepoLocked(repoPath string) {
	e.log.Info("repo disconnected", "path", repoPath)
	e.store.Update(func(next *store.State) {
		repos := next.Repos[:0]
		for _, r := range next.Repos {
			if r.Path != repoPath {
				repos = append(repos, r)
			}
		}
		next.Repos = repos

		if next.SelectedRepo == repoPath {
			next.SelectedRepo = ""
			next.SelectedSession = ""
			next.Messages = nil
		}
	})
}

// applySessionsListLocked replaces a repo's session list wholesale. Any
// server-declared active session ids are unioned into the stream set, never
// subtracted: stream-end signals are the only source of removal, so a list
// refresh racing a live stream cannot clear the flag.
func (e *Engine) applySessionsListLocked(ev *protocol.SessionsList) {
	e.store.Update(func(next *store.State) {
		repo := next.RepoByPath(ev.RepoPath)
		if repo == nil {
			return
		}

		sessions := make([]store.Session, 0, len(ev.Sessions))
		for _, info := range ev.Sessions {
			sessions = append(sessions, store.Session{
				ID:             info.SessionID,
				AgentSessionID: info.AgentSessionID,
				CreatedAt:      parseTime(info.CreatedAt),
				LastActive:     parseTime(info.LastActive),
			})
		}
		sortSessions(sessions)
		repo.Sessions = sessions

		for _, id := range ev.ActiveSessionIDs {
			next.ActiveStreams[id] = struct{}{}
		}
		refreshStreamFlags(next)
	})
}

// sessionCreatedLocked records a newly created session. When this client
// initiated the creation, the session becomes current and its (empty)
// history is requested.
func (e *Engine) sessionCreatedLocked(ev *protocol.SessionCreated) {
	var selfInitiated bool

	e.store.Update(func(next *store.State) {
		selfInitiated = next.CreatingSession
		next.CreatingSession = false

		repo := next.RepoByPath(ev.RepoPath)
		if repo == nil {
			return
		}
		if next.SessionByID(ev.RepoPath, ev.SessionID) == nil {
			now := time.Now()
			repo.Sessions = append(repo.Sessions, store.Session{
				ID:         ev.SessionID,
				CreatedAt:  now,
				LastActive: now,
			})
			sortSessions(repo.Sessions)
		}
	})

	if selfInitiated {
		e.selectSessionLocked(ev.RepoPath, ev.SessionID)
	}
}

// refreshStreamFlags re-derives every session's streaming flag from the
// stream set. A fan-out over all repos, not a per-session subscription.
func refreshStreamFlags(s *store.State) {
	for ri := range s.Repos {
		for si := range s.Repos[ri].Sessions {
			sess := &s.Repos[ri].Sessions[si]
			sess.Streaming = s.IsStreaming(sess.ID)
		}
	}
}

func sortRepos(repos []store.Repo) {
	sort.SliceStable(repos, func(i, j int) bool {
		return strings.ToLower(repos[i].Name) < strings.ToLower(repos[j].Name)
	})
}

// sortSessions orders by last_active descending; stable, so ties keep
// arrival order.
func sortSessions(sessions []store.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActive.After(sessions[j].LastActive)
	})
}

// parseTime is lenient: runner timestamps are RFC3339 with or without
// sub-second precision, and a bad one degrades to the zero time rather
// than dropping the session.
func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
