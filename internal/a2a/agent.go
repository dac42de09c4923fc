package a2a

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/tutoria/tutor-relay/internal/chat"
	"github.com/tutoria/tutor-relay/internal/gemini"
	"github.com/tutoria/tutor-relay/internal/relay"
	"github.com/tutoria/tutor-relay/internal/sse"
)

// errStopped ends a relay run once the A2A consumer stops reading.
var errStopped = errors.New("a2a consumer stopped")

// Runner is the relay core as seen by the agent.
type Runner interface {
	Run(ctx context.Context, req chat.Request, out relay.Emitter) error
}

// AgentConfig holds the configuration for the relay-backed A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via A2A AgentCard.
	Name string
	// Description is exposed via A2A AgentCard.
	Description string
	// Relay streams the model's answer.
	Relay Runner
	// SystemPrompt overrides the relay's default prompt when set.
	SystemPrompt string
}

// New returns an agent.Agent whose Run logic drives one relay turn and
// converts its events into session.Events that the ADK runner understands.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("a2a agent: Name must not be empty")
	}
	if cfg.Relay == nil {
		return nil, fmt.Errorf("a2a agent: Relay must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

// runFunc returns the Run closure that drives one agent invocation.
func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
		return func(yield func(*session.Event, error) bool) {
			newEvent := func(text string, partial bool) *session.Event {
				ev := session.NewEvent(ctx.InvocationID())
				ev.Author = cfg.Name
				ev.Branch = ctx.Branch()
				ev.LLMResponse = model.LLMResponse{
					Content: textContent(text),
					Partial: partial,
				}
				return ev
			}

			query := extractQuery(ctx.UserContent())
			if query == "" {
				yield(newEvent("(empty input)", false), nil)
				return
			}

			req := chat.Request{
				SystemPrompt: cfg.SystemPrompt,
				Messages:     []chat.Message{{Role: chat.RoleUser, Content: query}},
			}

			// Partial events let streaming A2A clients see tokens as they arrive.
			answer, err := respond(ctx, cfg.Relay, req, func(tok string) bool {
				return yield(newEvent(tok, true), nil)
			})
			if errors.Is(err, errStopped) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}

			// The final non-partial event makes IsFinalResponse() true so the
			// runner closes the invocation.
			yield(newEvent(answer, false), nil)
		}
	}
}

// respond runs req through the relay, calling partial for every token, and
// returns the full answer. An in-band relay error is returned as an error.
func respond(ctx context.Context, rl Runner, req chat.Request, partial func(string) bool) (string, error) {
	var (
		full      strings.Builder
		remoteErr string
	)
	err := rl.Run(ctx, req, relay.EmitterFunc(func(ev sse.Event) error {
		switch ev.Kind {
		case sse.KindDelta:
			full.WriteString(ev.Text)
			if !partial(ev.Text) {
				return errStopped
			}
		case sse.KindError:
			remoteErr = ev.Text
		}
		return nil
	}))
	if err != nil {
		return full.String(), err
	}
	if remoteErr != "" {
		return full.String(), fmt.Errorf("relay stream error: %s", remoteErr)
	}
	return full.String(), nil
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func textContent(text string) *genai.Content {
	return gemini.ModelContent(text)
}
