package relay

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutoria/tutor-relay/internal/sse"
	"github.com/tutoria/tutor-relay/internal/testutil"
)

func serve(h http.Handler, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/tutorChat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPreflight(t *testing.T) {
	h := NewHandler(New(upstreamReturning("text/event-stream", ""), DefaultOptions()))
	rec := serve(h, http.MethodOptions, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	h := NewHandler(New(upstreamReturning("text/event-stream", ""), DefaultOptions()))
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := serve(h, m, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, m)
	}
}

func TestHandlerMissingCredential(t *testing.T) {
	up := upstreamReturning("text/event-stream", "")
	up.configured = false
	rec := serve(NewHandler(New(up, DefaultOptions())), http.MethodPost, `{"messages":[]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "GEMINI_API_KEY")
	assert.NotEqual(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Nil(t, up.last, "upstream must not be called")
}

func TestHandlerMalformedBody(t *testing.T) {
	up := upstreamReturning("text/event-stream", "")
	rec := serve(NewHandler(New(up, DefaultOptions())), http.MethodPost, `{"messages":"hi"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "messages[] required")
	assert.Nil(t, up.last)
}

func TestHandlerStreams(t *testing.T) {
	up := upstreamReturning("text/event-stream", testutil.SSEFrame("Hel")+testutil.SSEFrame("lo"))
	rec := serve(NewHandler(New(up, DefaultOptions())), http.MethodPost, `{"messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t,
		"data: {\"delta\":\"Hel\"}\n\ndata: {\"delta\":\"lo\"}\n\ndata: [DONE]\n\n",
		rec.Body.String())
}

func TestHandlerUpstreamErrorInBand(t *testing.T) {
	up := upstreamReturning("text/event-stream", "")
	up.respond = func() (*http.Response, error) {
		return nil, errors.New("quota exceeded")
	}
	rec := serve(NewHandler(New(up, DefaultOptions())), http.MethodPost, `{"messages":[]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data: {\"error\":\"quota exceeded\"}\n\ndata: [DONE]\n\n", rec.Body.String())
}

func TestHandlerHeartbeat(t *testing.T) {
	pr, pw := io.Pipe()
	up := &fakeUpstream{configured: true, respond: func() (*http.Response, error) {
		return response("text/event-stream", pr), nil
	}}
	go func() {
		time.Sleep(80 * time.Millisecond)
		_, _ = io.WriteString(pw, testutil.SSEFrame("late"))
		pw.Close()
	}()

	opts := DefaultOptions()
	opts.HeartbeatInterval = 10 * time.Millisecond
	rec := serve(NewHandler(New(up, opts)), http.MethodPost, `{"messages":[]}`)

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, ":\n\n"), body)
	assert.True(t, strings.HasSuffix(body, "data: {\"delta\":\"late\"}\n\ndata: [DONE]\n\n"), body)
	assert.Equal(t, 1, strings.Count(body, "[DONE]"))
}

func TestSessionCloseTerminatesOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	s := newSession(rec, 5*time.Millisecond)
	assert.Equal(t, stateIdle, s.currentState())

	s.start()
	assert.Equal(t, stateStreaming, s.currentState())
	require.NoError(t, s.Emit(sse.Delta("x")))

	s.close()
	s.close()

	assert.Equal(t, stateClosed, s.currentState())
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "data: [DONE]\n\n"))
	assert.ErrorIs(t, s.Emit(sse.Delta("late")), errSessionClosed)

	select {
	case <-s.heartbeatDone:
	default:
		t.Fatal("heartbeat still running after close")
	}

	// Nothing is written after close, heartbeat included.
	size := rec.Body.Len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, size, rec.Body.Len())
}

func TestSessionDoneMovesToFinalizing(t *testing.T) {
	rec := httptest.NewRecorder()
	s := newSession(rec, 0)
	s.start()

	require.NoError(t, s.Emit(sse.Done()))
	assert.Equal(t, stateFinalizing, s.currentState())
	assert.ErrorIs(t, s.Emit(sse.Heartbeat()), errSessionClosed)

	s.close()
	assert.Equal(t, "data: [DONE]\n\n", rec.Body.String())
}

func TestSessionCloseWithoutStart(t *testing.T) {
	s := newSession(httptest.NewRecorder(), time.Second)
	s.close()
	assert.Equal(t, stateClosed, s.currentState())
}

// brokenWriter fails every body write, like a connection the client dropped.
type brokenWriter struct {
	header http.Header
	writes int
}

func (b *brokenWriter) Header() http.Header { return b.header }
func (b *brokenWriter) WriteHeader(int)     {}
func (b *brokenWriter) Write([]byte) (int, error) {
	b.writes++
	return 0, errors.New("broken pipe")
}

func TestSessionWriteFailureClosesStream(t *testing.T) {
	w := &brokenWriter{header: http.Header{}}
	s := newSession(w, time.Hour)
	s.start()

	assert.ErrorIs(t, s.Emit(sse.Delta("x")), errSessionClosed)
	assert.Equal(t, stateClosed, s.currentState())
	assert.ErrorIs(t, s.Emit(sse.Delta("y")), errSessionClosed)

	s.close()
	assert.Equal(t, 1, w.writes)
}

func TestHandlerSurvivesDeadDownstream(t *testing.T) {
	up := upstreamReturning("text/event-stream", testutil.SSEFrame("a")+testutil.SSEFrame("b"))
	h := NewHandler(New(up, DefaultOptions()))

	w := &brokenWriter{header: http.Header{}}
	req := httptest.NewRequest(http.MethodPost, "/tutorChat", strings.NewReader(`{"messages":[]}`))
	assert.NotPanics(t, func() { h.ServeHTTP(w, req) })
	assert.Equal(t, 1, w.writes)
}
