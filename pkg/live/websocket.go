package live

import (
	"time"

	"github.com/gorilla/websocket"
)

// ReadLoop pulls frames off the connection until it dies, then tears
// the session down. Pings are answered in place; events are queued for
// the event loop.
func (s *Session) ReadLoop() {
	defer s.Close()

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("websocket read failed", "error", err)
			}
			return
		}

		s.touch()
		s.bytesRecv.Add(uint64(len(msg)))

		frame, err := decodeClientFrame(msg)
		if err != nil {
			s.logger.Error("undecodable frame", "error", err)
			s.sendError(errCodeBadFrame, "Malformed frame")
			continue
		}

		switch frame.T {
		case frameEvent:
			s.queueEvent(frame)

		case framePing:
			s.sendPong(frame.TS)

		default:
			s.logger.Warn("unknown frame type", "type", frame.T)
		}
	}
}

// queueEvent hands an event frame to the event loop without blocking the
// reader. A full queue is reported to the client instead of stalling the
// connection.
func (s *Session) queueEvent(frame *clientFrame) {
	select {
	case s.events <- frame:
	default:
		s.logger.Warn("event queue full", "instance", frame.I, "token", frame.H)
		s.sendError(errCodeRateLimited, "Event queue full")
	}
}

// WriteLoop drives periodic heartbeats until the session closes.
// Browsers answer the protocol ping automatically; a failed write means
// the connection is gone.
func (s *Session) WriteLoop() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sendPing(); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

// sendPing sends a WebSocket control ping.
func (s *Session) sendPing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// EventLoop processes queued events, dispatched functions, and render
// signals, all on one goroutine. Handlers and renders never race each
// other; stores may still be written from anywhere.
func (s *Session) EventLoop() {
	defer s.disposeAll()

	for {
		select {
		case frame := <-s.events:
			s.handleEvent(frame)

		case fn := <-s.dispatchCh:
			s.executeDispatch(fn)

		case <-s.renderCh:
			s.renderDirty()

		case <-s.done:
			return
		}
	}
}

// Start starts the session loops. Call after the root component is
// mounted and the init frame is sent.
func (s *Session) Start() {
	s.started.Store(true)
	go s.ReadLoop()
	go s.WriteLoop()
	go s.EventLoop()
}
