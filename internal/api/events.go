package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	types "github.com/sebas/softphone/api/types/v1"
	"github.com/sebas/softphone/internal/session"
)

const (
	eventBuffer = 64
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
)

// streamObserver forwards session events to one WebSocket client. Callbacks
// never block the session; events are dropped when the client falls behind.
type streamObserver struct {
	events chan types.Event
	done   chan struct{}
	once   sync.Once
	now    func() time.Time
}

var (
	_ session.Observer          = (*streamObserver)(nil)
	_ session.ReconnectObserver = (*streamObserver)(nil)
)

func newStreamObserver() *streamObserver {
	return &streamObserver{
		events: make(chan types.Event, eventBuffer),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

func (o *streamObserver) emit(ev types.Event) {
	ev.Time = o.now().UTC().Format(time.RFC3339Nano)
	select {
	case <-o.done:
	case o.events <- ev:
	default:
		slog.Warn("[API] Event stream client is slow, dropping event", "type", ev.Type)
	}
}

func (o *streamObserver) close() {
	o.once.Do(func() { close(o.done) })
}

func (o *streamObserver) StateChanged(state session.State, remote string) {
	o.emit(types.Event{Type: types.EventStateChanged, State: state.String(), Remote: remote})
}

func (o *streamObserver) Connected() {
	o.emit(types.Event{Type: types.EventConnected})
}

func (o *streamObserver) Disconnected() {
	o.emit(types.Event{Type: types.EventDisconnected})
}

func (o *streamObserver) Failed(err error) {
	ev := types.Event{Type: types.EventFailed}
	if err != nil {
		ev.Reason = err.Error()
	}
	o.emit(ev)
}

func (o *streamObserver) RecordingStarted() {
	o.emit(types.Event{Type: types.EventRecordingStarted})
}

func (o *streamObserver) RecordingStopped(path string) {
	o.emit(types.Event{Type: types.EventRecordingStopped, Path: path})
}

func (o *streamObserver) Reconnecting(reason error) {
	ev := types.Event{Type: types.EventReconnecting}
	if reason != nil {
		ev.Reason = reason.Error()
	}
	o.emit(ev)
}

func (o *streamObserver) Reconnected() {
	o.emit(types.Event{Type: types.EventReconnected})
}

// handleEvents upgrades to a WebSocket and registers the connection as the
// session observer. A newer client replaces an older one.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[API] Event stream upgrade failed", "error", err)
		return
	}

	// Attach before reading the snapshot so no transition falls between them.
	obs := newStreamObserver()
	notifier := s.ctrl.Notifier()
	s.attachStream(obs)
	notifier.SetObserver(obs)
	st := s.ctrl.Status(r.Context())
	obs.StateChanged(st.State, st.Remote)
	slog.Info("[API] Event stream client attached", "remote_addr", r.RemoteAddr)

	defer func() {
		obs.close()
		s.detachStream(obs)
		if notifier.ClearObserverIf(obs) {
			slog.Info("[API] Event stream client detached", "remote_addr", r.RemoteAddr)
		}
		conn.Close()
	}()

	// Reader: handles pongs and notices the client going away.
	go func() {
		defer obs.close()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-obs.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-obs.events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// attachStream makes obs the live stream, closing the one it replaces.
func (s *Server) attachStream(obs *streamObserver) {
	s.mu.Lock()
	prev := s.stream
	s.stream = obs
	s.mu.Unlock()
	if prev != nil {
		prev.close()
	}
}

func (s *Server) detachStream(obs *streamObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == obs {
		s.stream = nil
	}
}
