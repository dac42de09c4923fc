package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"

	"github.com/tutoria/tutor-relay/internal/gemini"
	"github.com/tutoria/tutor-relay/internal/sse"
)

var lineBreak = regexp.MustCompile(`\r?\n`)

// bufferedBody is the parsed shape of a non event-stream upstream response.
type bufferedBody struct {
	// docs holds one entry per JSON document found.
	docs []json.RawMessage
	// array is true when the body was NDJSON or a JSON array.
	array bool
	raw   json.RawMessage
}

// parseBuffered tries NDJSON first, then a single JSON value.
func parseBuffered(text []byte) (bufferedBody, bool) {
	var lines [][]byte
	for _, l := range lineBreak.Split(string(text), -1) {
		if l != "" {
			lines = append(lines, []byte(l))
		}
	}
	if len(lines) > 1 {
		var docs []json.RawMessage
		for _, l := range lines {
			if json.Valid(l) {
				docs = append(docs, json.RawMessage(l))
			}
		}
		if len(docs) > 0 {
			raw, _ := json.Marshal(docs)
			return bufferedBody{docs: docs, array: true, raw: raw}, true
		}
	}

	trimmed := bytes.TrimSpace(text)
	if !json.Valid(trimmed) {
		return bufferedBody{}, false
	}
	body := bufferedBody{raw: json.RawMessage(trimmed)}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		body.array = true
		_ = json.Unmarshal(trimmed, &body.docs)
	} else {
		body.docs = []json.RawMessage{body.raw}
	}
	return body, true
}

// aggregate concatenates the text of every candidate of every document.
func (b bufferedBody) aggregate() string {
	var buf bytes.Buffer
	for _, doc := range b.docs {
		var f gemini.Frame
		if err := json.Unmarshal(doc, &f); err != nil {
			continue
		}
		buf.WriteString(f.AllText())
	}
	return buf.String()
}

type bufferedDiagnostics struct {
	Info           string          `json:"info"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
	PromptFeedback any             `json:"promptFeedback,omitempty"`
	Safety         any             `json:"safety,omitempty"`
	Raw            json.RawMessage `json:"raw"`
}

func (b bufferedBody) diagnostics() bufferedDiagnostics {
	if b.array {
		return bufferedDiagnostics{Info: "non_sse_no_text_array", Raw: b.raw}
	}
	d := bufferedDiagnostics{Info: "non_sse_no_text_object", Raw: b.raw}
	var f gemini.Frame
	if err := json.Unmarshal(b.raw, &f); err == nil {
		d.ModelVersion = f.ModelVersion
		if f.PromptFeedback != nil {
			d.PromptFeedback = f.PromptFeedback
		}
		if ratings := f.SafetyRatings(); len(ratings) > 0 {
			d.Safety = ratings
		}
	}
	return d
}

// relayBuffered handles an upstream that ignored the event-stream request:
// the whole body is read and emitted as a single Delta.
func (r *Relay) relayBuffered(body io.Reader, out Emitter) error {
	text, err := io.ReadAll(body)
	if err != nil {
		return emitReadError(out, err)
	}

	parsed, ok := parseBuffered(text)
	if !ok {
		return out.Emit(sse.Debug(map[string]string{"info": "non_json_body", "raw": string(text)}))
	}
	if agg := parsed.aggregate(); agg != "" {
		return out.Emit(sse.Delta(agg))
	}
	return out.Emit(sse.Debug(parsed.diagnostics()))
}
