package gemini

import (
	"encoding/json"
	"strings"

	"google.golang.org/genai"
)

// GenerateContentRequest is the body of a streamGenerateContent call.
type GenerateContentRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *genai.GenerationConfig `json:"generationConfig,omitempty"`
}

// Frame is one decoded JSON object from the upstream, either a single SSE
// payload or one document of a buffered response.
type Frame struct {
	Candidates     []*genai.Candidate                          `json:"candidates,omitempty"`
	PromptFeedback *genai.GenerateContentResponsePromptFeedback `json:"promptFeedback,omitempty"`
	ModelVersion   string                                      `json:"modelVersion,omitempty"`
	Error          json.RawMessage                             `json:"error,omitempty"`
}

// FirstCandidate returns the first candidate or nil.
func (f *Frame) FirstCandidate() *genai.Candidate {
	if f == nil || len(f.Candidates) == 0 {
		return nil
	}
	return f.Candidates[0]
}

// Text concatenates the text parts of the first candidate.
func (f *Frame) Text() string {
	return CandidateText(f.FirstCandidate())
}

// AllText concatenates the text parts of every candidate in order.
func (f *Frame) AllText() string {
	if f == nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range f.Candidates {
		sb.WriteString(CandidateText(c))
	}
	return sb.String()
}

// FinishReason of the first candidate, if any.
func (f *Frame) FinishReason() genai.FinishReason {
	if c := f.FirstCandidate(); c != nil {
		return c.FinishReason
	}
	return ""
}

// SafetyRatings of the first candidate, if any.
func (f *Frame) SafetyRatings() []*genai.SafetyRating {
	if c := f.FirstCandidate(); c != nil {
		return c.SafetyRatings
	}
	return nil
}

// CandidateText concatenates every non-empty text part of c.
func CandidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil && p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// UserContent wraps text as a user turn.
func UserContent(text string) *genai.Content {
	return &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{{Text: text}}}
}

// ModelContent wraps text as a model turn.
func ModelContent(text string) *genai.Content {
	return &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{Text: text}}}
}

// SystemContent wraps text as a system instruction.
func SystemContent(text string) *genai.Content {
	return &genai.Content{Role: "system", Parts: []*genai.Part{{Text: text}}}
}
