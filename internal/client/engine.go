// Package client implements the session synchronization engine: the relay
// connection lifecycle, the inbound event dispatch, and the reducers that
// keep the observable store consistent with the server.
package client

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"relaysync/internal/pending"
	"relaysync/internal/store"
	"relaysync/pkg/protocol"
)

// Send guard violations. These reject the call without touching state or
// the wire.
var (
	ErrNoSelection      = errors.New("no repo/session selected")
	ErrSessionStreaming = errors.New("session already has a turn in flight")
)

// Options configures an Engine.
type Options struct {
	RelayURL       string
	Model          string
	ReconnectDelay time.Duration
	Pending        pending.Store
	Logger         *slog.Logger
	Dialer         *websocket.Dialer
}

// Engine owns the relay connection and all state transitions. Every handler
// (socket callback, timer fire, public call) runs under one mutex, so
// transitions are serialized exactly like a single-threaded event loop and
// invariants hold without further locking.
type Engine struct {
	mu sync.Mutex

	relayURL       string
	model          string
	reconnectDelay time.Duration

	store *store.Store
	pend  pending.Store
	log   *slog.Logger
	dial  *websocket.Dialer

	conn    *websocket.Conn
	sendQ   chan []byte
	connGen int
	dialing bool
	closed  bool

	reconnect *time.Timer

	// streamFresh marks sessions whose next assistant delta must open a new
	// timeline message instead of merging into a stale trailing one.
	streamFresh map[string]bool
}

// New creates an engine. It does not connect; call Connect.
func New(opts Options) *Engine {
	if opts.Pending == nil {
		opts.Pending = pending.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 1500 * time.Millisecond
	}

	return &Engine{
		relayURL:       opts.RelayURL,
		model:          opts.Model,
		reconnectDelay: opts.ReconnectDelay,
		store:          store.New(),
		pend:           opts.Pending,
		log:            opts.Logger.With("component", "engine"),
		dial:           opts.Dialer,
		streamFresh:    map[string]bool{},
	}
}

// Store exposes the observable state for consumers.
func (e *Engine) Store() *store.Store {
	return e.store
}

// SelectRepo makes a repo current, clears the session selection and the
// visible timeline, and requests a session list refresh.
func (e *Engine) SelectRepo(repoPath string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Update(func(next *store.State) {
		next.SelectedRepo = repoPath
		next.SelectedSession = ""
		next.Messages = nil
	})
	e.sendLocked(protocol.NewListSessions(repoPath))
}

// SelectSession makes a session current and requests its history.
func (e *Engine) SelectSession(repoPath, sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selectSessionLocked(repoPath, sessionID)
}

func (e *Engine) selectSessionLocked(repoPath, sessionID string) {
	e.store.Update(func(next *store.State) {
		next.SelectedRepo = repoPath
		next.SelectedSession = sessionID
		next.Messages = nil
	})
	e.sendLocked(protocol.NewLoadSession(repoPath, sessionID))
}

// CreateSession asks the repo's runner for a new session. The created
// session is selected when the confirmation arrives.
func (e *Engine) CreateSession(repoPath string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Update(func(next *store.State) {
		next.CreatingSession = true
	})
	e.sendLocked(protocol.NewCreateSession(repoPath))
}

// RefreshSessions requests a session list refresh for a repo.
func (e *Engine) RefreshSessions(repoPath string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sendLocked(protocol.NewListSessions(repoPath))
}

// Close stops the engine: the socket is torn down and no reconnect is
// scheduled. The engine cannot be reused afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	if e.reconnect != nil {
		e.reconnect.Stop()
		e.reconnect = nil
	}
	e.teardownLocked()
	e.store.Update(func(next *store.State) {
		next.Conn = store.ConnClosed
	})
}

// handleEventLocked dispatches one decoded inbound event. Callers hold e.mu.
func (e *Engine) handleEventLocked(ev protocol.Event) {
	switch ev := ev.(type) {
	case *protocol.ClientConnected:
		e.upsertRepoLocked(ev.RepoPath, ev.RepoName)
	case *protocol.ClientDisconnected:
		e.removeRepoLocked(ev.RepoPath)
	case *protocol.SessionsList:
		e.applySessionsListLocked(ev)
	case *protocol.SessionCreated:
		e.sessionCreatedLocked(ev)
	case *protocol.SessionHistory:
		e.applyHistoryLocked(ev)
	case *protocol.SessionUpdate:
		e.applyUpdateLocked(ev)
	case *protocol.StreamStart:
		e.streamStartLocked(ev.SessionID, "")
	case *protocol.StreamEnd:
		e.streamEndLocked(ev.SessionID, "")
	case *protocol.AgentStream:
		e.handleAgentStreamLocked(ev)
	case *protocol.ClientCount:
		e.store.Update(func(next *store.State) {
			next.ClientCount = ev.Count
		})
	case *protocol.ErrorEvent:
		e.relayErrorLocked(ev)
	}
}

// relayErrorLocked surfaces a relay-reported error as a synthetic system
// message on the selected timeline and clears any in-progress creation flag.
func (e *Engine) relayErrorLocked(ev *protocol.ErrorEvent) {
	e.log.Warn("relay error", "repo", ev.RepoPath, "message", ev.Message)

	e.store.Update(func(next *store.State) {
		next.CreatingSession = false
		if next.SelectedSession == "" {
			return
		}
		if ev.RepoPath != "" && ev.RepoPath != next.SelectedRepo {
			return
		}
		next.Messages = append(next.Messages, systemMessage(ev.Message))
	})
}
