package client

import (
	"time"

	"github.com/gorilla/websocket"

	"relaysync/internal/store"
	"relaysync/pkg/protocol"
)

// outboundBuffer bounds the write queue; commands past it are dropped, the
// same at-most-once posture as a send while disconnected.
const outboundBuffer = 64

// Connect establishes the relay connection. It is idempotent: a no-op while
// a socket is open or a dial is in flight.
func (e *Engine) Connect() {
	e.mu.Lock()
	if e.closed || e.conn != nil || e.dialing {
		e.mu.Unlock()
		return
	}
	e.dialing = true
	url := e.relayURL
	e.store.Update(func(next *store.State) {
		next.Conn = store.ConnConnecting
	})
	e.mu.Unlock()

	go e.dialRelay(url)
}

func (e *Engine) dialRelay(url string) {
	conn, _, err := e.dial.Dial(url, nil)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.dialing = false

	if e.closed {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		e.log.Warn("relay dial failed", "url", url, "err", err)
		e.store.Reset(store.ConnError)
		e.scheduleReconnectLocked()
		return
	}

	e.conn = conn
	e.connGen++
	e.sendQ = make(chan []byte, outboundBuffer)
	go e.writePump(conn, e.sendQ)
	go e.readLoop(conn, e.connGen)

	e.store.Update(func(next *store.State) {
		next.Conn = store.ConnOpen
	})
	e.log.Info("connected to relay", "url", url)

	e.sendLocked(protocol.NewRegisterBrowser())
}

// writePump drains the outbound queue onto one socket. It exits when the
// queue is closed by teardown or when a write fails; the read loop notices
// the broken socket and drives the disconnect path.
func (e *Engine) writePump(conn *websocket.Conn, sendQ chan []byte) {
	for msg := range sendQ {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (e *Engine) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			e.socketClosed(gen)
			return
		}
		e.handleFrame(gen, data)
	}
}

// handleFrame decodes and dispatches one inbound frame. Malformed frames
// are logged and dropped; unknown types are ignored. Nothing here may panic
// past this boundary.
func (e *Engine) handleFrame(gen int, data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || gen != e.connGen {
		return
	}

	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		e.log.Warn("dropping malformed frame", "err", err)
		return
	}
	if ev == nil {
		e.log.Debug("ignoring unknown frame type")
		return
	}
	e.handleEventLocked(ev)
}

// socketClosed handles any close, clean or not: the whole store resets to
// its empty state (repos, sessions, messages and stream flags are all
// re-derived from the server on reconnect) and exactly one reconnect is
// scheduled.
func (e *Engine) socketClosed(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || gen != e.connGen {
		return
	}

	e.log.Info("relay connection closed")
	e.teardownLocked()
	e.store.Reset(store.ConnClosed)
	e.scheduleReconnectLocked()
}

// teardownLocked drops the socket reference and per-connection state.
func (e *Engine) teardownLocked() {
	if e.conn != nil {
		e.conn.Close()
		e.conn = nil
	}
	if e.sendQ != nil {
		close(e.sendQ)
		e.sendQ = nil
	}
	e.connGen++
	e.streamFresh = map[string]bool{}
}

// scheduleReconnectLocked arms the fixed-delay reconnect timer. A prior
// pending timer is always cancelled first so attempts never stack.
func (e *Engine) scheduleReconnectLocked() {
	if e.reconnect != nil {
		e.reconnect.Stop()
	}
	e.reconnect = time.AfterFunc(e.reconnectDelay, e.Connect)
}

// sendLocked serializes and queues one command. While the socket is down
// the command is dropped and a connection attempt is triggered instead:
// outbound delivery is at most once, and re-issuing intent is the caller's
// job. Callers hold e.mu.
func (e *Engine) sendLocked(cmd protocol.Command) {
	if e.conn == nil || e.sendQ == nil {
		e.log.Debug("dropping command while disconnected", "type", cmd.CommandType())
		go e.Connect()
		return
	}

	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		e.log.Warn("encode command failed", "type", cmd.CommandType(), "err", err)
		return
	}

	select {
	case e.sendQ <- data:
	default:
		e.log.Warn("outbound queue full, dropping command", "type", cmd.CommandType())
	}
}
