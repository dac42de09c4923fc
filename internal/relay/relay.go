// Package relay forwards a chat request to the upstream generation API and
// re-emits whatever the upstream returns as a uniform stream of sse.Events.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/tutoria/tutor-relay/internal/chat"
	"github.com/tutoria/tutor-relay/internal/gemini"
	"github.com/tutoria/tutor-relay/internal/sse"
)

// DefaultSystemPrompt is used when neither the caller nor the configuration
// supplies one.
const DefaultSystemPrompt = "Answer in PT-BR. You are a study tutor - who knows everything about every subjects and will help students to learn."

// Upstream opens a streamed generation call.
type Upstream interface {
	Configured() bool
	Stream(ctx context.Context, req *gemini.GenerateContentRequest) (*http.Response, error)
}

// Emitter receives relay events in order.
type Emitter interface {
	Emit(ev sse.Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ev sse.Event) error

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev sse.Event) error { return f(ev) }

// Options is the immutable relay configuration.
type Options struct {
	DefaultSystemPrompt string
	Temperature         float32
	TopP                float32
	TopK                float32
	MaxOutputTokens     int32
	HeartbeatInterval   time.Duration
	RequestTimeout      time.Duration
	PartialPolicy       sse.PartialPolicy
}

// DefaultOptions mirrors the documented configuration defaults.
func DefaultOptions() Options {
	return Options{
		DefaultSystemPrompt: DefaultSystemPrompt,
		Temperature:         0.55,
		TopP:                0.9,
		TopK:                40,
		MaxOutputTokens:     2048,
		HeartbeatInterval:   15 * time.Second,
		PartialPolicy:       sse.PartialDrop,
	}
}

// Relay is safe for concurrent use; every Run owns its own buffers.
type Relay struct {
	upstream Upstream
	opts     Options
}

// New constructs a Relay.
func New(upstream Upstream, opts Options) *Relay {
	if opts.DefaultSystemPrompt == "" {
		opts.DefaultSystemPrompt = DefaultSystemPrompt
	}
	return &Relay{upstream: upstream, opts: opts}
}

// Options returns the relay configuration.
func (r *Relay) Options() Options {
	return r.opts
}

// Configured reports whether the upstream credential is present.
func (r *Relay) Configured() bool {
	return r.upstream.Configured()
}

// BuildRequest translates a chat request into the upstream body.
func (r *Relay) BuildRequest(req chat.Request) *gemini.GenerateContentRequest {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.IsAssistant() {
			contents = append(contents, gemini.ModelContent(m.Content))
		} else {
			contents = append(contents, gemini.UserContent(m.Content))
		}
	}
	return &gemini.GenerateContentRequest{
		Contents:          contents,
		SystemInstruction: gemini.SystemContent(req.EffectivePrompt(r.opts.DefaultSystemPrompt)),
		GenerationConfig: &genai.GenerationConfig{
			Temperature:     genai.Ptr(r.opts.Temperature),
			TopP:            genai.Ptr(r.opts.TopP),
			TopK:            genai.Ptr(r.opts.TopK),
			MaxOutputTokens: r.opts.MaxOutputTokens,
		},
	}
}

// Run performs one relay: it calls the upstream, translates its response and
// always finishes with exactly one Done event. Upstream failures become
// in-band error events; the returned error reports only that out stopped
// accepting events.
func (r *Relay) Run(ctx context.Context, req chat.Request, out Emitter) (err error) {
	defer func() {
		if derr := out.Emit(sse.Done()); err == nil {
			err = derr
		}
	}()

	if r.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}

	resp, err := r.upstream.Stream(ctx, r.BuildRequest(req))
	if err != nil {
		slog.Warn("upstream call failed", "error", err)
		return out.Emit(sse.Error(upstreamMessage(err)))
	}
	defer resp.Body.Close()

	if sse.IsEventStream(resp.Header.Get("Content-Type")) {
		return r.relayEventStream(resp.Body, out)
	}
	return r.relayBuffered(resp.Body, out)
}

func upstreamMessage(err error) string {
	var se *gemini.StatusError
	if errors.As(err, &se) {
		return se.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream timeout"
	}
	return err.Error()
}

// emitReadError converts a mid-stream read failure into an error event.
func emitReadError(out Emitter, err error) error {
	slog.Warn("upstream read failed", "error", err)
	return out.Emit(sse.Error(fmt.Sprintf("upstream read: %v", err)))
}
