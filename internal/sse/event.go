// Package sse implements the text/event-stream framing shared by the relay
// and the streaming client.
package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DataPrefix starts every payload line.
	DataPrefix = "data:"
	// DoneSentinel is the payload of the terminal event.
	DoneSentinel = "[DONE]"
	// ContentType is the media type of an event stream.
	ContentType = "text/event-stream"
)

// Kind tags the variants of Event.
type Kind int

const (
	KindDelta Kind = iota
	KindDone
	KindError
	KindDebug
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	case KindDebug:
		return "debug"
	case KindHeartbeat:
		return "heartbeat"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one normalized unit written on the downstream connection.
type Event struct {
	Kind Kind
	// Text is the delta text for KindDelta and the message for KindError.
	Text string
	// Debug is the diagnostic payload for KindDebug. It is encoded as-is.
	Debug any
}

// Delta returns an event carrying a fragment of generated text.
func Delta(text string) Event { return Event{Kind: KindDelta, Text: text} }

// Done returns the terminal event.
func Done() Event { return Event{Kind: KindDone} }

// Error returns an in-band error event.
func Error(msg string) Event { return Event{Kind: KindError, Text: msg} }

// Debug returns a diagnostic event.
func Debug(payload any) Event { return Event{Kind: KindDebug, Debug: payload} }

// Heartbeat returns a comment-only keep-alive event.
func Heartbeat() Event { return Event{Kind: KindHeartbeat} }

type deltaPayload struct {
	Delta string `json:"delta"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Encode renders the event in its wire form, including the blank line that
// terminates it.
func (e Event) Encode() ([]byte, error) {
	var payload any
	switch e.Kind {
	case KindDone:
		return []byte(DataPrefix + " " + DoneSentinel + "\n\n"), nil
	case KindHeartbeat:
		return []byte(":\n\n"), nil
	case KindDelta:
		payload = deltaPayload{Delta: e.Text}
	case KindError:
		payload = errorPayload{Error: e.Text}
	case KindDebug:
		payload = e.Debug
	default:
		return nil, fmt.Errorf("encode event: unknown kind %d", int(e.Kind))
	}

	var buf bytes.Buffer
	buf.WriteString(DataPrefix + " ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Kind, err)
	}
	// Encoder terminates with one newline; the event needs a blank line.
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// DataPayload extracts the payload of a "data:" line. The line is expected
// without its trailing newline. It reports false for comments, other fields
// and empty payloads.
func DataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, " \t\r\n")
	rest, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return "", false
	}
	payload := strings.TrimSpace(rest)
	if payload == "" {
		return "", false
	}
	return payload, true
}

// IsDone reports whether a payload is the terminal sentinel.
func IsDone(payload string) bool {
	return payload == DoneSentinel
}

// IsEventStream reports whether a Content-Type header declares an event stream.
func IsEventStream(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), ContentType)
}
