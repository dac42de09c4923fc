package tutorclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutoria/tutor-relay/internal/chat"
	"github.com/tutoria/tutor-relay/internal/sse"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Frações e decimais", "Frações e decimais"},
		{`  "Revolução Francesa"  `, "Revolução Francesa"},
		{"'Citação'", "Citação"},
		{"Linha\nDois", "Linha Dois"},
		{`"`, ""},
		{strings.Repeat("á", 70), strings.Repeat("á", titleMaxRunes)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanTitle(tt.in), tt.in)
	}
}

func TestFallbackTitle(t *testing.T) {
	assert.Equal(t, DefaultTitle, fallbackTitle(nil))
	assert.Equal(t, DefaultTitle, fallbackTitle([]chat.Message{{Role: chat.RoleAssistant, Content: "Oi"}}))
	assert.Equal(t, "Quanto é 2+2?", fallbackTitle([]chat.Message{
		{Role: chat.RoleAssistant, Content: "Olá!"},
		{Role: chat.RoleUser, Content: "Quanto é 2+2?"},
	}))

	long := strings.Repeat("palavra ", 10)
	got := fallbackTitle([]chat.Message{{Role: chat.RoleUser, Content: long}})
	assert.Equal(t, long[:fallbackTitleRunes]+"...", got)
}

func titleServer(t *testing.T, reply string, seen *chat.Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		data, _ := json.Marshal(map[string]string{"delta": reply})
		w.Header().Set("Content-Type", sse.ContentType)
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateTitle(t *testing.T) {
	var seen chat.Request
	srv := titleServer(t, "\"Equações do segundo grau\"\n", &seen)

	msgs := make([]chat.Message, 0, 8)
	for i := range 8 {
		msgs = append(msgs, chat.Message{Role: chat.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	title := New(srv.URL).GenerateTitle(context.Background(), msgs)
	assert.Equal(t, "Equações do segundo grau", title)

	assert.Equal(t, titleSystemPrompt, seen.SystemPrompt)
	require.Len(t, seen.Messages, titleContextMessages+1)
	assert.Equal(t, "m0", seen.Messages[0].Content)
	assert.Equal(t, titleInstruction, seen.Messages[titleContextMessages].Content)
	assert.Len(t, msgs, 8, "caller's slice is untouched")
}

func TestGenerateTitleBlankReply(t *testing.T) {
	srv := titleServer(t, "  ", nil)
	title := New(srv.URL).GenerateTitle(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "Oi"}})
	assert.Equal(t, DefaultTitle, title)
}

func TestGenerateTitleFallsBackOnError(t *testing.T) {
	srv := plainServer(t, http.StatusInternalServerError, "", "")
	title := New(srv.URL).GenerateTitle(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "Fotossíntese"}})
	assert.Equal(t, "Fotossíntese", title)
}

func TestGenerateTitleWithoutMessages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	assert.Equal(t, DefaultTitle, New(srv.URL).GenerateTitle(context.Background(), nil))
	assert.Zero(t, calls.Load())
}
