package provider

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFile(t *testing.T) {
	tests := []struct {
		name        string
		setupFile   func(t *testing.T) string
		expectError bool
		errorMsg    string
	}{
		{
			name: "successful file read",
			setupFile: func(t *testing.T) string {
				filePath := filepath.Join(t.TempDir(), "pipeline.yaml")
				require.NoError(t, os.WriteFile(filePath, []byte("test file content\nwith multiple lines"), 0644))
				return filePath
			},
		},
		{
			name: "file scheme",
			setupFile: func(t *testing.T) string {
				filePath := filepath.Join(t.TempDir(), "pipeline.yaml")
				require.NoError(t, os.WriteFile(filePath, []byte("test file content\nwith multiple lines"), 0644))
				return "file://" + filePath
			},
		},
		{
			name: "directory with rigor file",
			setupFile: func(t *testing.T) string {
				dir := t.TempDir()
				require.NoError(t, os.WriteFile(filepath.Join(dir, "rigor.yml"), []byte("test file content\nwith multiple lines"), 0644))
				return dir
			},
		},
		{
			name: "directory without rigor file",
			setupFile: func(t *testing.T) string {
				return t.TempDir()
			},
			expectError: true,
			errorMsg:    "rigorfile: none of",
		},
		{
			name: "file not found",
			setupFile: func(t *testing.T) string {
				return "/nonexistent/file.yaml"
			},
			expectError: true,
			errorMsg:    "no such file or directory",
		},
		{
			name: "empty ref",
			setupFile: func(t *testing.T) string {
				return ""
			},
			expectError: true,
			errorMsg:    "no path given",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := WithFile()(context.Background(), tt.setupFile(t))

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}

			require.NoError(t, err)
			defer reader.(io.Closer).Close()

			data, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Equal(t, "test file content\nwith multiple lines", string(data))
		})
	}
}
