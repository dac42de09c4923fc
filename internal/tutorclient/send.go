package tutorclient

import (
	"context"
	"strings"

	"github.com/tutoria/tutor-relay/internal/chat"
)

// Result is the outcome of Send.
type Result struct {
	Text    string
	Tokens  int
	Aborted bool
}

// Empty reports whether the relay finished without producing any text, for
// example when the upstream filtered the answer. It is distinct from an error.
func (r Result) Empty() bool {
	return r.Tokens == 0
}

// Send streams req, calling onDelta for every token, and returns the
// accumulated text. A cancelled ctx returns the partial text with Aborted set
// and no error.
func (c *Client) Send(ctx context.Context, req chat.Request, onDelta func(string)) (Result, error) {
	var (
		sb  strings.Builder
		res Result
	)
	for tok, err := range c.Stream(ctx, req) {
		if err != nil {
			res.Text = sb.String()
			return res, err
		}
		sb.WriteString(tok)
		res.Tokens++
		if onDelta != nil {
			onDelta(tok)
		}
	}
	res.Text = sb.String()
	res.Aborted = aborted(ctx)
	return res, nil
}
