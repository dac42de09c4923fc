package tutorclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// tokenFields lists the payload fields that may carry a token, in priority
// order. The first field present wins even when it is empty.
var tokenFields = [...]string{"delta", "text", "content", "output"}

// payloadKind tags the variants of a decoded relay payload.
type payloadKind int

const (
	payloadNone payloadKind = iota
	payloadToken
	payloadError
)

// payload is the decoded form of one relay data line.
type payload struct {
	kind  payloadKind
	token string
	err   string
	// field names the source of token.
	field string
}

// parsePayload decodes one JSON document into a payload. Only JSON objects
// are accepted.
func parsePayload(doc []byte) (payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return payload{}, fmt.Errorf("decode payload: %w", err)
	}

	if raw, ok := fields["error"]; ok && truthy(raw) {
		return payload{kind: payloadError, err: render(raw)}, nil
	}

	for _, name := range tokenFields {
		raw, ok := fields[name]
		if !ok || isNull(raw) {
			continue
		}
		tok := render(raw)
		if tok == "" {
			return payload{field: name}, nil
		}
		return payload{kind: payloadToken, token: tok, field: name}, nil
	}
	return payload{}, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

// truthy reports whether a JSON value would count as set in a loosely typed
// caller: not null, false, 0 or "".
func truthy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

// render returns strings unquoted and any other value as its JSON text.
func render(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
