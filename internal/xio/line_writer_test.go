package xio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineWriter(t *testing.T) {
	tests := []struct {
		name     string
		writes   []string
		expected string
		flushed  string
	}{
		{
			name:     "single line with newline",
			writes:   []string{"hello world\n"},
			expected: "hello world\n",
			flushed:  "hello world\n",
		},
		{
			name:     "single line without newline is buffered",
			writes:   []string{"hello world"},
			expected: "",
			flushed:  "hello world",
		},
		{
			name:     "multiple lines",
			writes:   []string{"line1\nline2\nline3"},
			expected: "line1\nline2\n",
			flushed:  "line1\nline2\nline3",
		},
		{
			name:     "line split across writes",
			writes:   []string{"li", "ne1\nli", "ne2\n"},
			expected: "line1\nline2\n",
			flushed:  "line1\nline2\n",
		},
		{
			name:     "empty data",
			writes:   []string{""},
			expected: "",
			flushed:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			lineWriter := NewLineWriter(&buf)

			for _, write := range tt.writes {
				n, err := lineWriter.Write([]byte(write))
				require.NoError(t, err)
				assert.Equal(t, len(write), n)
			}

			assert.Equal(t, tt.expected, buf.String())
			require.NoError(t, lineWriter.Flush())
			assert.Equal(t, tt.flushed, buf.String())
		})
	}
}

func TestLineWriterMaxLineLength(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		writes   []string
		expected string
	}{
		{
			name:     "long line is split",
			max:      4,
			writes:   []string{"abcdefghij\n"},
			expected: "abcd\nefgh\nij\n",
		},
		{
			name:     "line of exactly max length",
			max:      4,
			writes:   []string{"abcd\n"},
			expected: "abcd\n",
		},
		{
			name:     "unterminated long line is split while buffering",
			max:      3,
			writes:   []string{"ab", "cdefg"},
			expected: "abc\ndef\n",
		},
		{
			name:     "no limit",
			max:      0,
			writes:   []string{"abcdefghij\n"},
			expected: "abcdefghij\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			lineWriter := NewLineWriter(&buf).WithMaxLineLength(tt.max)

			for _, write := range tt.writes {
				n, err := lineWriter.Write([]byte(write))
				require.NoError(t, err)
				assert.Equal(t, len(write), n)
			}

			assert.Equal(t, tt.expected, buf.String())
		})
	}
}
