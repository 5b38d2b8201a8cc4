package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{name: "bare", input: `{"a":1}`, want: `{"a":1}`, found: true},
		{name: "surrounded", input: "log line\n{\"a\": {\"b\": 2}}\nbye", want: "{\"a\": {\"b\": 2}}", found: true},
		{name: "brace in string", input: `x {"t": "a } b \" {"} y`, want: `{"t": "a } b \" {"}`, found: true},
		{name: "stray braces before payload", input: "Loaded {model}\n{\"text\":\"ok\"}", want: `{"text":"ok"}`, found: true},
		{name: "invalid only", input: "{nope}", want: "{nope}", found: true},
		{name: "first invalid span kept", input: "{nope} then {also nope}", want: "{nope}", found: true},
		{name: "first valid of two", input: `{"a":1} {"b":2}`, want: `{"a":1}`, found: true},
		{name: "nested not promoted", input: `{"chunks":[{"text":"a"}],}`, want: `{"chunks":[{"text":"a"}],}`, found: true},
		{name: "none", input: "plain transcript", found: false},
		{name: "unterminated", input: `{"text": "cut`, found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractJSONObject(tt.input)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseResultDefaultsSuccessWhenAbsent(t *testing.T) {
	res, err := ParseResult(`{"text":"hi there","processing_time":1.5}`)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hi there", res.Text)
}

func TestParseResultEmptyOutput(t *testing.T) {
	res, err := ParseResult("   \n")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Text)
}

func TestLineWriterSplitsAcrossWrites(t *testing.T) {
	var lines []string
	w := newLineWriter(func(line string) { lines = append(lines, line) })

	_, _ = w.Write([]byte("first\r\nsec"))
	_, _ = w.Write([]byte("ond\nthi"))
	assert.Equal(t, []string{"first", "second"}, lines)

	w.Flush()
	assert.Equal(t, []string{"first", "second", "thi"}, lines)
}
