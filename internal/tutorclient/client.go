// Package tutorclient consumes the relay's event stream and exposes it as a
// lazy sequence of text tokens.
package tutorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/tutoria/tutor-relay/internal/chat"
	"github.com/tutoria/tutor-relay/internal/sse"
)

const (
	statusBodyLimit = 512
	rawBodyLimit    = 200
)

// ErrNonConforming is returned when a buffered response carries neither a
// token nor an error.
var ErrNonConforming = errors.New("non-conforming response")

// errStop reports that the consumer stopped iterating.
var errStop = errors.New("consumer stopped")

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	StatusText string
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if body == "" {
		body = "No body"
	}
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.StatusText, body)
}

// RemoteError carries an explicit error field sent by the relay.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Client streams chat completions from a relay endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	policy     sse.PartialPolicy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPartialPolicy sets how incomplete JSON payloads are handled.
func WithPartialPolicy(p sse.PartialPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// New constructs a Client for endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{endpoint: endpoint, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream sends req and yields tokens in the order the relay produced them.
// The sequence ends on [DONE], at end of stream, or after yielding one
// error. Cancelling ctx ends it silently; a fresh call is needed per request.
func (c *Client) Stream(ctx context.Context, req chat.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.post(ctx, req)
		if err != nil {
			if !aborted(ctx) {
				yield("", err)
			}
			return
		}
		defer resp.Body.Close()

		emit := func(tok string) bool {
			if aborted(ctx) {
				return false
			}
			return yield(tok, nil)
		}

		if sse.IsEventStream(resp.Header.Get("Content-Type")) {
			err = c.readEvents(resp.Body, emit)
		} else {
			err = readDocument(resp.Body, emit)
		}
		if err != nil && !errors.Is(err, errStop) && !aborted(ctx) {
			yield("", err)
		}
	}
}

func (c *Client) post(ctx context.Context, req chat.Request) (*http.Response, error) {
	if req.Messages == nil {
		req.Messages = []chat.Message{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", sse.ContentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("relay request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*statusBodyLimit))
		resp.Body.Close()
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			StatusText: strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "),
			Body:       truncate(strings.TrimSpace(string(raw)), statusBodyLimit),
		}
	}
	return resp, nil
}

// readEvents consumes an event stream. Lines that are not complete JSON
// objects are skipped.
func (c *Client) readEvents(body io.Reader, emit func(string) bool) error {
	lines := sse.NewLineReader(body)
	asm := sse.NewAssembler(c.policy)

	for {
		line, err := lines.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}

		data, ok := sse.DataPayload(line)
		if !ok {
			continue
		}
		if sse.IsDone(data) {
			return nil
		}
		doc, ok := asm.Feed(data)
		if !ok {
			continue
		}
		p, err := parsePayload(doc)
		if err != nil {
			continue
		}

		switch p.kind {
		case payloadError:
			return &RemoteError{Message: p.err}
		case payloadToken:
			if !emit(p.token) {
				return errStop
			}
		}
	}
}

// readDocument handles a relay that answered with a single JSON body.
func readDocument(body io.Reader, emit func(string) bool) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	p, err := parsePayload(raw)
	if err != nil {
		return fmt.Errorf("%w: not a JSON object: %s", ErrNonConforming, truncate(string(raw), rawBodyLimit))
	}
	switch p.kind {
	case payloadError:
		return &RemoteError{Message: p.err}
	case payloadToken:
		if !emit(p.token) {
			return errStop
		}
		return nil
	}
	return fmt.Errorf("%w: response without text: %s", ErrNonConforming, truncate(string(raw), rawBodyLimit))
}

// aborted reports whether the caller cancelled ctx. Deadlines are not
// treated as cancellation.
func aborted(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary.
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
