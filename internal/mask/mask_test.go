package mask

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	tests := []struct {
		name     string
		secrets  []string
		writes   []string
		expected string
	}{
		{
			name:     "no secrets",
			writes:   []string{"hello world\n"},
			expected: "hello world\n",
		},
		{
			name:     "secret within a line",
			secrets:  []string{"s3cr3t"},
			writes:   []string{"token=s3cr3t\n"},
			expected: "token=***\n",
		},
		{
			name:     "secret split across writes",
			secrets:  []string{"s3cr3t"},
			writes:   []string{"token=s3", "cr3t\nnext\n"},
			expected: "token=***\nnext\n",
		},
		{
			name:     "overlapping secrets",
			secrets:  []string{"abc", "abcdef"},
			writes:   []string{"abcdef abc\n"},
			expected: "*** ***\n",
		},
		{
			name:     "trailing data without newline is flushed",
			secrets:  []string{"s3cr3t"},
			writes:   []string{"s3cr3t"},
			expected: "***",
		},
		{
			name:     "empty secret is ignored",
			secrets:  []string{""},
			writes:   []string{"value\n"},
			expected: "value\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewSecretStore(nil)
			store.AddSecrets(tt.secrets...)

			var buf bytes.Buffer
			w := store.Writer(&buf)
			for _, write := range tt.writes {
				n, err := w.Write([]byte(write))
				require.NoError(t, err)
				assert.Equal(t, len(write), n)
			}

			require.NoError(t, w.Flush())
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestMask(t *testing.T) {
	store := NewSecretStore([]byte("[masked]"))
	store.AddSecrets("token", "token")

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, "my [masked]", store.Mask("my token"))
}
