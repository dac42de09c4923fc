package tutorclient

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tutoria/tutor-relay/internal/chat"
)

// DefaultTitle names a conversation nothing better could be found for.
const DefaultTitle = "Nova Conversa"

const (
	titleSystemPrompt = "Você é um assistente que gera títulos concisos para conversas educacionais. " +
		"Gere um título curto (máximo 6 palavras) em português que capture o tema principal da conversa. " +
		"Responda APENAS com o título, sem aspas ou explicações."
	titleInstruction = "Com base nesta conversa, gere um título curto e descritivo (máximo 6 palavras)."

	titleContextMessages = 6
	titleMaxRunes        = 60
	fallbackTitleRunes   = 40
)

// GenerateTitle asks the relay for a short title summarizing the opening of
// a conversation. It never fails: on error the first user message, or
// DefaultTitle, is used instead.
func (c *Client) GenerateTitle(ctx context.Context, messages []chat.Message) string {
	if len(messages) == 0 {
		return DefaultTitle
	}

	head := messages[:min(len(messages), titleContextMessages)]
	req := chat.Request{
		SystemPrompt: titleSystemPrompt,
		Messages:     append(append([]chat.Message{}, head...), chat.Message{Role: chat.RoleUser, Content: titleInstruction}),
	}

	res, err := c.Send(ctx, req, nil)
	if err != nil {
		slog.Warn("title generation failed", "error", err)
		return fallbackTitle(messages)
	}
	if title := cleanTitle(res.Text); title != "" {
		return title
	}
	return DefaultTitle
}

// cleanTitle trims the model output, drops one pair of surrounding quotes,
// flattens newlines and caps the length.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) || strings.HasPrefix(s, "'") {
		s = s[1:]
	}
	if strings.HasSuffix(s, `"`) || strings.HasSuffix(s, "'") {
		s = s[:len(s)-1]
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return truncateRunes(s, titleMaxRunes)
}

func fallbackTitle(messages []chat.Message) string {
	for _, m := range messages {
		if m.Role != chat.RoleUser {
			continue
		}
		if m.Content == "" {
			break
		}
		t := truncateRunes(m.Content, fallbackTitleRunes)
		if t != m.Content {
			t += "..."
		}
		return t
	}
	return DefaultTitle
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
