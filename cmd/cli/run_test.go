package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func TestRecordResult(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		entries  int
	}{
		{
			name:    "empty history",
			entries: 1,
		},
		{
			name:     "unreadable history is still appended to",
			existing: "{not json}\n",
			entries:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "results.jsonl")
			if tt.existing != "" {
				require.NoError(t, os.WriteFile(path, []byte(tt.existing), 0644))
			}

			previous := runArgs.resultsFile
			runArgs.resultsFile = path
			defer func() {
				runArgs.resultsFile = previous
			}()

			// The run was interrupted.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := recordResult(ctx, logr.Discard(), v1beta1.PipelineResult{
				Pipeline: "pallas",
				Outcome:  v1beta1.OutcomeCancelled,
			})
			require.NoError(t, err)

			b, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.entries, bytes.Count(b, []byte("\n")))
			assert.Contains(t, string(b), `"pipeline":"pallas"`)
		})
	}
}
