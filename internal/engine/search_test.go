package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain words", "plain words"},
		{`"quoted" AND (grouped)`, "quoted AND grouped"},
		{"  collapse \t whitespace\n runs  ", "collapse whitespace runs"},
		{"unicode café こんにちは", "unicode café こんにちは"},
		{"digits 42 stay", "digits 42 stay"},
		{"?!...", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, sanitizeQuery(tc.in), "input %q", tc.in)
	}
}

func TestEmbeddable(t *testing.T) {
	// Needs at least four tokens and eighteen characters.
	assert.False(t, embeddable("hi"))
	assert.False(t, embeddable("three short words"))
	assert.False(t, embeddable("a b c d"))
	assert.True(t, embeddable("what did we discuss about the roadmap"))
	assert.True(t, embeddable("four words long enough"))
}

func TestFormatHit(t *testing.T) {
	assert.Equal(t, "[1970-01-01T00:16:40Z] hello", formatHit(1000, "hello"))
}
