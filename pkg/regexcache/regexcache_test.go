package regexcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ReturnsCachedInstance(t *testing.T) {
	t.Parallel()

	re1, err := Get(`^\d+\.\d+\.\d+$`)
	require.NoError(t, err)
	re2, err := Get(`^\d+\.\d+\.\d+$`)
	require.NoError(t, err)
	assert.Same(t, re1, re2)
	assert.True(t, re1.MatchString("7.2.1"))
}

func TestGet_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := Get(`[unterminated`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regexcache")
}

func TestSubmatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		input   string
		want    string
		ok      bool
	}{
		{"group", `(?i)^WordPress\s+([0-9.]+)`, "WordPress 6.4.2", "6.4.2", true},
		{"no group", `\d+\.\d+`, "Drupal 7.98", "7.98", true},
		{"no match", `(?i)^Drupal\s+(\d+)`, "Joomla! 4", "", false},
		{"bad pattern", `(`, "anything", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Submatch(tt.pattern, tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrecompile(t *testing.T) {
	t.Parallel()

	errs := Precompile(`a+`, "", `(`, `b*`)
	assert.Len(t, errs, 1)
	assert.Positive(t, Size())
}
