package relay

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/tutoria/tutor-relay/internal/gemini"
	"github.com/tutoria/tutor-relay/internal/sse"
)

// frameDiagnostics is emitted for an SSE frame that parsed but carried no
// text, typically a safety block or a usage-only frame.
type frameDiagnostics struct {
	Info           string          `json:"info"`
	FinishReason   string          `json:"finishReason,omitempty"`
	Safety         any             `json:"safety,omitempty"`
	PromptFeedback any             `json:"promptFeedback,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
	UpstreamError  json.RawMessage `json:"upstreamError,omitempty"`
}

func newFrameDiagnostics(f *gemini.Frame) frameDiagnostics {
	d := frameDiagnostics{
		Info:          "sse_frame_no_text",
		FinishReason:  string(f.FinishReason()),
		ModelVersion:  f.ModelVersion,
		UpstreamError: f.Error,
	}
	if ratings := f.SafetyRatings(); len(ratings) > 0 {
		d.Safety = ratings
	}
	if f.PromptFeedback != nil {
		d.PromptFeedback = f.PromptFeedback
	}
	return d
}

// relayEventStream translates an upstream event stream line by line. Each
// frame with text becomes one Delta, in arrival order.
func (r *Relay) relayEventStream(body io.Reader, out Emitter) error {
	lines := sse.NewLineReader(body)
	asm := sse.NewAssembler(r.opts.PartialPolicy)

	for {
		line, err := lines.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return emitReadError(out, err)
		}

		payload, ok := sse.DataPayload(line)
		if !ok || sse.IsDone(payload) {
			continue
		}
		doc, ok := asm.Feed(payload)
		if !ok {
			continue
		}

		var frame gemini.Frame
		if err := json.Unmarshal(doc, &frame); err != nil {
			continue
		}

		if text := frame.Text(); text != "" {
			if err := out.Emit(sse.Delta(text)); err != nil {
				return err
			}
			continue
		}
		if err := out.Emit(sse.Debug(newFrameDiagnostics(&frame))); err != nil {
			return err
		}
	}
}
