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

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	opts := NewJSONAsserter(t).GetOptions()

	assert.True(t, opts.IgnoreExtraKeys)
	assert.True(t, opts.AllowPresencePlaceholder)
	assert.False(t, opts.IgnoreArrayOrder)
	assert.Empty(t, opts.IgnoredFields)
}

func TestJSONAsserter_Assert(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		fails    bool
	}{
		{
			name:     "equal documents",
			actual:   `{"a":1,"b":[1,2]}`,
			expected: `{"a":1,"b":[1,2]}`,
		},
		{
			name:     "extra keys in actual are ignored by default",
			actual:   `{"a":1,"extra":true}`,
			expected: `{"a":1}`,
		},
		{
			name:     "extra keys fail when not ignored",
			opts:     []Option{WithIgnoreExtraKeys(false)},
			actual:   `{"a":1,"extra":true}`,
			expected: `{"a":1}`,
			fails:    true,
		},
		{
			name:     "presence placeholder matches any value",
			actual:   `{"id":"01J9Z","a":1}`,
			expected: `{"id":"<<PRESENCE>>","a":1}`,
		},
		{
			name:     "presence placeholder still requires the key",
			actual:   `{"a":1}`,
			expected: `{"id":"<<PRESENCE>>","a":1}`,
			fails:    true,
		},
		{
			name:     "root arrays compare",
			actual:   `[{"n":1},{"n":2}]`,
			expected: `[{"n":1},{"n":2}]`,
		},
		{
			name:     "array order matters by default",
			actual:   `[2,1]`,
			expected: `[1,2]`,
			fails:    true,
		},
		{
			name:     "array order ignored on request",
			opts:     []Option{WithIgnoreArrayOrder(true)},
			actual:   `[2,1]`,
			expected: `[1,2]`,
		},
		{
			name:     "ignored fields are dropped on both sides",
			opts:     []Option{WithIgnoredFields("ts")},
			actual:   `{"a":1,"ts":5}`,
			expected: `{"a":1,"ts":9}`,
		},
		{
			name:     "value mismatch fails",
			actual:   `{"a":2}`,
			expected: `{"a":1}`,
			fails:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			NewJSONAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)
			if tt.fails {
				assert.NotEmpty(t, rec.errors, "assertion MUST fail")
			} else {
				assert.Empty(t, rec.errors, "assertion MUST pass")
			}
		})
	}
}

func TestTextAsserter_Assert(t *testing.T) {
	t.Run("trailing whitespace and surrounding blank lines ignored by default", func(t *testing.T) {
		rec := &recordingT{}
		NewTextAsserter(rec).Assert("\nline one   \nline two\n\n", "line one\nline two")
		assert.Empty(t, rec.errors)
	})

	t.Run("difference produces a unified diff", func(t *testing.T) {
		rec := &recordingT{}
		NewTextAsserter(rec).Assert("line one\nline 2", "line one\nline two")
		if assert.Len(t, rec.errors, 1) {
			assert.Contains(t, rec.errors[0], "-line two")
			assert.Contains(t, rec.errors[0], "+line 2")
		}
	})

	t.Run("empty lines ignored on request", func(t *testing.T) {
		rec := &recordingT{}
		NewTextAsserter(rec).WithOptions(WithIgnoreEmptyLines(true)).Assert("a\n\nb", "a\nb")
		assert.Empty(t, rec.errors)
	})
}
