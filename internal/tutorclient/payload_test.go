package tutorclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want payload
	}{
		{"delta", `{"delta":"a"}`, payload{kind: payloadToken, token: "a", field: "delta"}},
		{"text", `{"text":"b"}`, payload{kind: payloadToken, token: "b", field: "text"}},
		{"content", `{"content":"c"}`, payload{kind: payloadToken, token: "c", field: "content"}},
		{"output", `{"output":"d"}`, payload{kind: payloadToken, token: "d", field: "output"}},
		{"delta wins", `{"output":"d","text":"b","delta":"a"}`, payload{kind: payloadToken, token: "a", field: "delta"}},
		{"empty delta shadows text", `{"delta":"","text":"b"}`, payload{field: "delta"}},
		{"null delta falls through", `{"delta":null,"text":"b"}`, payload{kind: payloadToken, token: "b", field: "text"}},
		{"number rendered", `{"content":42}`, payload{kind: payloadToken, token: "42", field: "content"}},
		{"error", `{"error":"boom","delta":"a"}`, payload{kind: payloadError, err: "boom"}},
		{"structured error", `{"error":{"code":429}}`, payload{kind: payloadError, err: `{"code":429}`}},
		{"falsy error ignored", `{"error":"","delta":"a"}`, payload{kind: payloadToken, token: "a", field: "delta"}},
		{"false error ignored", `{"error":false,"text":"b"}`, payload{kind: payloadToken, token: "b", field: "text"}},
		{"diagnostics", `{"info":"non_json_body","raw":"x"}`, payload{}},
		{"null document", `null`, payload{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePayload([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePayloadRejectsNonObjects(t *testing.T) {
	for _, doc := range []string{`[1,2]`, `"text"`, `7`, `{`} {
		_, err := parsePayload([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	// "é" is two bytes; cutting inside it backs off.
	assert.Equal(t, "a", truncate("aé", 2))
}
