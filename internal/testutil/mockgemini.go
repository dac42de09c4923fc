package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockGemini is an httptest.Server that simulates the upstream
// streamGenerateContent endpoint.
type MockGemini struct {
	Server *httptest.Server

	mu sync.Mutex

	// Status, when non-zero and not 200, is written with Body as an error.
	Status int
	// ContentType of the response. Defaults to text/event-stream.
	ContentType string
	// Body is written verbatim when set; otherwise Texts are framed as SSE.
	Body string
	// Texts are sent as one SSE frame each.
	Texts []string
	// ChunkSize splits the response body into writes of at most this many
	// bytes, flushing after each. Zero writes the body at once.
	ChunkSize int
	// Delay is slept before the first byte of the body.
	Delay time.Duration

	lastRequest map[string]any
	lastQuery   map[string]string
	lastHeader  http.Header
	requests    int
}

// NewMockGemini creates and starts a mock upstream that streams texts.
func NewMockGemini(texts ...string) *MockGemini {
	m := &MockGemini{Texts: texts}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockGemini) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockGemini) URL() string {
	return m.Server.URL
}

// Configure mutates the mock's response settings under its lock.
func (m *MockGemini) Configure(fn func(m *MockGemini)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// LastRequest returns the most recent request body.
func (m *MockGemini) LastRequest() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

// LastQuery returns a query parameter of the most recent request.
func (m *MockGemini) LastQuery(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery[key]
}

// LastHeader returns a header of the most recent request.
func (m *MockGemini) LastHeader(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader.Get(key)
}

// Requests returns how many requests were served.
func (m *MockGemini) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// SSEFrame renders one upstream SSE frame carrying text in a single candidate.
func SSEFrame(text string) string {
	return "data: " + CandidateJSON(text) + "\r\n\r\n"
}

// CandidateJSON renders a response object with one candidate whose content
// is split into the given parts.
func CandidateJSON(parts ...string) string {
	ps := make([]map[string]string, 0, len(parts))
	for _, p := range parts {
		ps = append(ps, map[string]string{"text": p})
	}
	doc := map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": ps},
		}},
		"modelVersion": "gemini-2.0-flash",
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

func (m *MockGemini) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
		http.NotFound(w, r)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.lastRequest = body
	m.lastQuery = map[string]string{}
	for k := range r.URL.Query() {
		m.lastQuery[k] = r.URL.Query().Get(k)
	}
	m.lastHeader = r.Header.Clone()
	m.requests++
	status, ct, raw, texts := m.Status, m.ContentType, m.Body, m.Texts
	chunk, delay := m.ChunkSize, m.Delay
	m.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		fmt.Fprint(w, raw)
		return
	}

	if ct == "" {
		ct = "text/event-stream"
	}
	if raw == "" {
		var sb strings.Builder
		for _, t := range texts {
			sb.WriteString(SSEFrame(t))
		}
		raw = sb.String()
	}

	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	flusher, hasFlusher := w.(http.Flusher)
	if hasFlusher {
		flusher.Flush()
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if chunk <= 0 {
		chunk = len(raw)
	}
	for len(raw) > 0 {
		n := min(chunk, len(raw))
		if _, err := fmt.Fprint(w, raw[:n]); err != nil {
			return
		}
		if hasFlusher {
			flusher.Flush()
		}
		raw = raw[n:]
	}
}
