package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, ev Event) string {
	t.Helper()
	b, err := ev.Encode()
	require.NoError(t, err)
	return string(b)
}

func TestEventEncode(t *testing.T) {
	assert.Equal(t, "data: {\"delta\":\"Olá <b>\"}\n\n", encode(t, Delta("Olá <b>")))
	assert.Equal(t, "data: [DONE]\n\n", encode(t, Done()))
	assert.Equal(t, ":\n\n", encode(t, Heartbeat()))
	assert.Equal(t, "data: {\"error\":\"quota exceeded\"}\n\n", encode(t, Error("quota exceeded")))
	assert.Equal(t, "data: {\"info\":\"non_json_body\",\"raw\":\"x\"}\n\n",
		encode(t, Debug(map[string]any{"info": "non_json_body", "raw": "x"})))
}

func TestEventEncodeUnknownKind(t *testing.T) {
	_, err := Event{Kind: Kind(99)}.Encode()
	require.Error(t, err)
}

func TestDataPayload(t *testing.T) {
	cases := []struct {
		line string
		want string
		ok   bool
	}{
		{`data: {"a":1}`, `{"a":1}`, true},
		{`data:{"a":1}   `, `{"a":1}`, true},
		{"data: [DONE]\r", "[DONE]", true},
		{"data:   ", "", false},
		{":", "", false},
		{"event: message", "", false},
		{"", "", false},
		{" data: x", "", false},
	}
	for _, tc := range cases {
		got, ok := DataPayload(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.want, got, tc.line)
	}
	assert.True(t, IsDone("[DONE]"))
	assert.False(t, IsDone("[done]"))
}

func TestIsEventStream(t *testing.T) {
	assert.True(t, IsEventStream("text/event-stream"))
	assert.True(t, IsEventStream("Text/Event-Stream; charset=utf-8"))
	assert.False(t, IsEventStream("application/json"))
	assert.False(t, IsEventStream(""))
}

func readAll(t *testing.T, r io.Reader) []string {
	t.Helper()
	lr := NewLineReader(r)
	var lines []string
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

// chunkReader returns at most n bytes per Read.
type chunkReader struct {
	data []byte
	n    int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	k := min(c.n, len(p), len(c.data))
	copy(p, c.data[:k])
	c.data = c.data[k:]
	return k, nil
}

func TestLineReaderChunkIndependence(t *testing.T) {
	stream := "data: {\"delta\":\"olá\"}\r\n\r\n: ping\n\ndata: {\"delta\":\"ção\"}\n\ntrailing without newline"
	want := readAll(t, strings.NewReader(stream))

	assert.Equal(t, []string{`data: {"delta":"olá"}`, "", ": ping", "", `data: {"delta":"ção"}`, ""}, want)

	for _, n := range []int{1, 2, 3, 7, 64} {
		got := readAll(t, &chunkReader{data: []byte(stream), n: n})
		assert.Equal(t, want, got, "chunk size %d", n)
	}
	assert.Equal(t, want, readAll(t, iotest.OneByteReader(strings.NewReader(stream))))
}

func TestLineReaderPropagatesReadError(t *testing.T) {
	boom := errors.New("boom")
	lr := NewLineReader(io.MultiReader(strings.NewReader("a\npartial"), iotest.ErrReader(boom)))

	line, err := lr.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", line)

	_, err = lr.Next()
	assert.ErrorIs(t, err, boom)
}

func TestAssemblerDrop(t *testing.T) {
	a := NewAssembler(PartialDrop)

	_, ok := a.Feed(`{"delta":"He`)
	assert.False(t, ok)
	assert.False(t, a.Pending())

	doc, ok := a.Feed(`{"delta":"llo"}`)
	require.True(t, ok)
	assert.JSONEq(t, `{"delta":"llo"}`, string(doc))
}

func TestAssemblerMerge(t *testing.T) {
	a := NewAssembler(PartialMerge)

	_, ok := a.Feed(`{"delta":`)
	assert.False(t, ok)
	assert.True(t, a.Pending())

	doc, ok := a.Feed(`"Hello"}`)
	require.True(t, ok)
	assert.JSONEq(t, `{"delta":"Hello"}`, string(doc))
	assert.False(t, a.Pending())
}

func TestAssemblerMergeAbandonsStaleFragment(t *testing.T) {
	a := NewAssembler(PartialMerge)

	_, ok := a.Feed(`{"broken`)
	assert.False(t, ok)

	doc, ok := a.Feed(`{"delta":"next"}`)
	require.True(t, ok)
	assert.JSONEq(t, `{"delta":"next"}`, string(doc))
	assert.False(t, a.Pending())
}

func TestAssemblerMergeBoundsPending(t *testing.T) {
	a := NewAssembler(PartialMerge)
	_, ok := a.Feed(`{"x":"` + strings.Repeat("a", maxPending+1))
	assert.False(t, ok)
	assert.False(t, a.Pending())
}

func TestParsePartialPolicy(t *testing.T) {
	p, err := ParsePartialPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PartialDrop, p)

	p, err = ParsePartialPolicy(" MERGE ")
	require.NoError(t, err)
	assert.Equal(t, PartialMerge, p)
	assert.Equal(t, "merge", p.String())

	_, err = ParsePartialPolicy("retry")
	assert.Error(t, err)
}
