// Package chat holds the request shape shared by the relay server and the
// streaming client.
package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Roles understood by the relay. Anything that is not RoleAssistant is sent
// upstream as a user turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMessagesRequired is returned when the body has no messages array.
var ErrMessagesRequired = errors.New("messages[] required")

// Message is one turn of the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body accepted by the relay and sent by the client.
type Request struct {
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// IsAssistant reports whether the message was produced by the model.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// wireRequest keeps every field raw so that loosely typed callers (numbers as
// content, null prompts) are accepted the same way a browser front-end sends them.
type wireRequest struct {
	SystemPrompt json.RawMessage `json:"systemPrompt"`
	Messages     json.RawMessage `json:"messages"`
}

type wireMessage struct {
	Role    json.RawMessage `json:"role"`
	Content json.RawMessage `json:"content"`
}

// DecodeRequest reads a Request from r. The messages field must be a JSON
// array; everything else is coerced to strings.
func DecodeRequest(r io.Reader) (Request, error) {
	var wire wireRequest
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return Request{}, fmt.Errorf("%w: decode body: %v", ErrMessagesRequired, err)
	}

	msgs := bytes.TrimSpace(wire.Messages)
	if len(msgs) == 0 || msgs[0] != '[' {
		return Request{}, ErrMessagesRequired
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(msgs, &raw); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMessagesRequired, err)
	}

	req := Request{
		SystemPrompt: stringify(wire.SystemPrompt),
		Messages:     make([]Message, 0, len(raw)),
	}
	for _, item := range raw {
		var wm wireMessage
		// Non-object entries become empty user turns.
		_ = json.Unmarshal(item, &wm)
		req.Messages = append(req.Messages, Message{
			Role:    stringify(wm.Role),
			Content: stringify(wm.Content),
		})
	}
	return req, nil
}

// EffectivePrompt returns the caller's system prompt when it is not blank,
// otherwise fallback.
func (r Request) EffectivePrompt(fallback string) string {
	if p := strings.TrimSpace(r.SystemPrompt); p != "" {
		return p
	}
	return fallback
}

// stringify renders a raw JSON value as text: strings are unquoted, null and
// absent values are empty, anything else keeps its JSON form.
func stringify(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
