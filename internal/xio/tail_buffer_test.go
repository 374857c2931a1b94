package xio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBuffer(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		writes    []string
		expected  string
		truncated bool
	}{
		{
			name:     "below limit",
			limit:    10,
			writes:   []string{"abc", "def"},
			expected: "abcdef",
		},
		{
			name:      "keeps the tail",
			limit:     4,
			writes:    []string{"abc", "def"},
			expected:  "cdef",
			truncated: true,
		},
		{
			name:     "no limit",
			limit:    0,
			writes:   []string{"abc", "def"},
			expected: "abcdef",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTailBuffer(tt.limit)
			for _, write := range tt.writes {
				n, err := b.Write([]byte(write))
				assert.NoError(t, err)
				assert.Equal(t, len(write), n)
			}

			assert.Equal(t, tt.expected, b.String())
			assert.Equal(t, tt.truncated, b.Truncated())
		})
	}
}
