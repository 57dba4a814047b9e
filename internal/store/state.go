// Package store holds the single observable state snapshot shared by the
// sync engine and its consumers.
package store

import (
	"time"

	"relaysync/pkg/chat"
)

// ConnState describes the relay connection lifecycle.
type ConnState string

const (
	ConnIdle       ConnState = "idle"
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClosed     ConnState = "closed"
	ConnError      ConnState = "error"
)

// Session is one tracked conversation inside a repo.
type Session struct {
	ID             string
	AgentSessionID string
	CreatedAt      time.Time
	LastActive     time.Time

	// Streaming is derived from the active stream set, never set directly.
	Streaming bool
}

// Repo is a tracked working directory, identified by path.
type Repo struct {
	Name     string
	Path     string
	Sessions []Session
}

// State is an immutable snapshot. Consumers must not mutate anything
// reachable from it; the engine commits fresh copies through the Store.
type State struct {
	Version uint64

	Conn        ConnState
	ClientCount int

	Repos []Repo

	// ActiveStreams holds ids of sessions currently emitting agent output.
	ActiveStreams map[string]struct{}

	SelectedRepo    string
	SelectedSession string

	// Messages is the timeline of the selected session only.
	Messages []chat.Message

	CreatingSession bool
}

func initialState() State {
	return State{
		Conn:          ConnIdle,
		ActiveStreams: map[string]struct{}{},
	}
}

// clone deep-copies everything the engine mutates between commits.
func (s State) clone() State {
	next := s

	next.Repos = make([]Repo, len(s.Repos))
	for i, r := range s.Repos {
		next.Repos[i] = r
		next.Repos[i].Sessions = append([]Session(nil), r.Sessions...)
	}

	next.ActiveStreams = make(map[string]struct{}, len(s.ActiveStreams))
	for id := range s.ActiveStreams {
		next.ActiveStreams[id] = struct{}{}
	}

	next.Messages = append([]chat.Message(nil), s.Messages...)
	return next
}

// RepoByPath returns the repo with the given path, or nil. The pointer
// aims into the state's own slice, so callers inside an Update closure can
// mutate through it.
func (s State) RepoByPath(path string) *Repo {
	for i := range s.Repos {
		if s.Repos[i].Path == path {
			return &s.Repos[i]
		}
	}
	return nil
}

// SessionByID returns the session with the given id in the given repo, or nil.
func (s State) SessionByID(repoPath, sessionID string) *Session {
	repo := s.RepoByPath(repoPath)
	if repo == nil {
		return nil
	}
	for i := range repo.Sessions {
		if repo.Sessions[i].ID == sessionID {
			return &repo.Sessions[i]
		}
	}
	return nil
}

// IsStreaming reports membership of a session id in the active stream set.
func (s State) IsStreaming(sessionID string) bool {
	_, ok := s.ActiveStreams[sessionID]
	return ok
}
