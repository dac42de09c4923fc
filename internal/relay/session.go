package relay

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tutoria/tutor-relay/internal/httputil"
	"github.com/tutoria/tutor-relay/internal/sse"
)

// errSessionClosed is returned by Emit once the downstream stopped accepting
// writes or the terminal event was sent.
var errSessionClosed = errors.New("relay session closed")

type sessionState int

const (
	stateIdle sessionState = iota
	stateStreaming
	stateFinalizing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStreaming:
		return "streaming"
	case stateFinalizing:
		return "finalizing"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// session is the downstream side of one relay request. It serializes writes
// from the relay and the heartbeat, and guarantees that close runs once:
// the heartbeat stops and the stream is terminated with [DONE].
type session struct {
	fw       *httputil.FlushWriter
	interval time.Duration

	mu       sync.Mutex
	state    sessionState
	doneSent bool

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
	closeOnce     sync.Once
}

func newSession(w http.ResponseWriter, heartbeat time.Duration) *session {
	return &session{
		fw:            httputil.NewFlushWriter(w),
		interval:      heartbeat,
		stopHeartbeat: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
	}
}

// start commits the streaming headers and starts the heartbeat.
func (s *session) start() {
	s.mu.Lock()
	httputil.SetSSEHeaders(s.fw)
	s.fw.WriteHeader(http.StatusOK)
	s.fw.Flush()
	s.state = stateStreaming
	s.mu.Unlock()

	if s.interval <= 0 {
		close(s.heartbeatDone)
		return
	}
	go s.heartbeat()
}

func (s *session) heartbeat() {
	defer close(s.heartbeatDone)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopHeartbeat:
			return
		case <-ticker.C:
			if err := s.Emit(sse.Heartbeat()); err != nil {
				return
			}
		}
	}
}

// Emit writes one event. After [DONE] or a failed write it returns
// errSessionClosed without touching the connection.
func (s *session) Emit(ev sse.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateStreaming {
		return errSessionClosed
	}
	b, err := ev.Encode()
	if err != nil {
		return err
	}
	if _, err := s.fw.Write(b); err != nil {
		slog.Debug("downstream write failed", "kind", ev.Kind.String(), "error", err)
		s.state = stateClosed
		return errSessionClosed
	}
	s.fw.Flush()

	if ev.Kind == sse.KindDone {
		s.doneSent = true
		s.state = stateFinalizing
	}
	return nil
}

// close stops the heartbeat and terminates the stream. Safe to call more
// than once and on every exit path.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		started := s.state != stateIdle
		s.mu.Unlock()

		close(s.stopHeartbeat)
		if started {
			<-s.heartbeatDone
		}

		s.mu.Lock()
		streaming := s.state == stateStreaming
		s.mu.Unlock()
		if streaming && !s.doneSent {
			_ = s.Emit(sse.Done())
		}

		s.mu.Lock()
		s.state = stateClosed
		s.mu.Unlock()
	})
}

func (s *session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
