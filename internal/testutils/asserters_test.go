package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	errors []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestTextAsserter_Defaults(t *testing.T) {
	opts := NewTextAsserter(t).Options()
	assert.True(t, opts.TrimSpace)
	assert.True(t, opts.IgnoreTrailingWhitespace)
	assert.False(t, opts.IgnoreEmptyLines)
	assert.False(t, opts.EnableColors)
}

func TestTextAsserter_Assert(t *testing.T) {
	t.Run("trailing whitespace ignored", func(t *testing.T) {
		rt := &recordingT{}
		ok := NewTextAsserter(rt).Assert("a  \nb\n\n", "a\nb")
		assert.True(t, ok)
		assert.Empty(t, rt.errors)
	})

	t.Run("empty lines kept by default", func(t *testing.T) {
		rt := &recordingT{}
		assert.False(t, NewTextAsserter(rt).Assert("a\n\nb", "a\nb"))
		assert.True(t, NewTextAsserter(rt, WithIgnoreEmptyLines(true)).Assert("a\n\nb", "a\nb"))
	})

	t.Run("unified diff on mismatch", func(t *testing.T) {
		rt := &recordingT{}
		ok := NewTextAsserter(rt).Assert("line1\nchanged", "line1\nline2")
		assert.False(t, ok)
		if assert.Len(t, rt.errors, 1) {
			assert.Contains(t, rt.errors[0], "-line2")
			assert.Contains(t, rt.errors[0], "+changed")
		}
	})

	t.Run("colors", func(t *testing.T) {
		diff := NewTextAsserter(t, WithEnableColors(true)).Diff("x y", "x z")
		assert.Contains(t, diff, "\x1b[")
		assert.Contains(t, diff, "x·z")
	})
}

func TestJSONAsserter_Assert(t *testing.T) {
	tests := []struct {
		name     string
		actual   string
		expected string
		opts     []JSONOption
		match    bool
	}{
		{
			name:     "extra keys ignored",
			actual:   `{"address":"AA","rssi":-40,"name":"x"}`,
			expected: `{"address":"AA","rssi":-40}`,
			match:    true,
		},
		{
			name:     "extra keys enforced",
			actual:   `{"address":"AA","rssi":-40,"name":"x"}`,
			expected: `{"address":"AA","rssi":-40}`,
			opts:     []JSONOption{WithIgnoreExtraKeys(false)},
			match:    false,
		},
		{
			name:     "presence placeholder",
			actual:   `{"timestamp":"2025-01-01T00:00:00Z","rssi":-40}`,
			expected: `{"timestamp":"<<PRESENCE>>","rssi":-40}`,
			match:    true,
		},
		{
			name:     "placeholder requires key",
			actual:   `{"rssi":-40}`,
			expected: `{"timestamp":"<<PRESENCE>>","rssi":-40}`,
			match:    false,
		},
		{
			name:     "ignored fields",
			actual:   `[{"rssi":-40,"seen":3},{"rssi":-41,"seen":9}]`,
			expected: `[{"rssi":-40,"seen":1},{"rssi":-41,"seen":1}]`,
			opts:     []JSONOption{WithIgnoredFields("seen")},
			match:    true,
		},
		{
			name:     "value mismatch",
			actual:   `{"rssi":-41}`,
			expected: `{"rssi":-40}`,
			match:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingT{}
			ok := NewJSONAsserter(rt, tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.match, ok, rt.errors)
		})
	}
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	diff := NewJSONAsserter(t).Diff(`{`, `{}`)
	assert.Contains(t, diff, "invalid actual JSON")
}
