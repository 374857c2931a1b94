package pipeline

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func TestEventOptions(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		env      map[string]string
		expected v1beta1.Event
		wantErr  bool
	}{
		{
			name:     "defaults to push",
			expected: v1beta1.Event{Kind: v1beta1.EventKindPush},
		},
		{
			name: "flags",
			args: []string{"--event=pull_request", "--branch=feature", "--base-branch=main", "--sha=abc", "--changed-path=src/lib.rs", "--changed-path=README.md"},
			expected: v1beta1.Event{
				Kind:         v1beta1.EventKindPullRequest,
				Branch:       "feature",
				BaseBranch:   "main",
				SHA:          "abc",
				ChangedPaths: []string{"src/lib.rs", "README.md"},
			},
		},
		{
			name: "branch from ref",
			args: []string{"--ref=refs/heads/main"},
			expected: v1beta1.Event{
				Kind:   v1beta1.EventKindPush,
				Ref:    "refs/heads/main",
				Branch: "main",
			},
		},
		{
			name: "github environment",
			env: map[string]string{
				"GITHUB_EVENT_NAME": "push",
				"GITHUB_REF":        "refs/heads/main",
				"GITHUB_SHA":        "def",
			},
			expected: v1beta1.Event{
				Kind:   v1beta1.EventKindPush,
				Ref:    "refs/heads/main",
				Branch: "main",
				SHA:    "def",
			},
		},
		{
			name: "flags override the environment",
			args: []string{"--sha=abc"},
			env: map[string]string{
				"GITHUB_EVENT_NAME": "push",
				"GITHUB_SHA":        "def",
			},
			expected: v1beta1.Event{Kind: v1beta1.EventKindPush, SHA: "abc"},
		},
		{
			name:    "unknown kind",
			args:    []string{"--event=release"},
			wantErr: true,
		},
		{
			name:    "unknown kind from environment",
			env:     map[string]string{"GITHUB_EVENT_NAME": "schedule"},
			wantErr: true,
		},
		{
			name: "kind overrides unsupported environment kind",
			args: []string{"--event=push"},
			env: map[string]string{
				"GITHUB_EVENT_NAME": "schedule",
				"GITHUB_REF":        "refs/heads/main",
				"GITHUB_SHA":        "def",
				"GITHUB_REPOSITORY": "org/repo",
			},
			expected: v1beta1.Event{
				Kind:       v1beta1.EventKindPush,
				Ref:        "refs/heads/main",
				Branch:     "main",
				SHA:        "def",
				Repository: "org/repo",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := EventOptions{}
			set := pflag.NewFlagSet("test", pflag.ContinueOnError)
			opts.BindFlags(set)
			require.NoError(t, set.Parse(tt.args))

			event, err := opts.Event(func(name string) string {
				return tt.env[name]
			})

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, event)
		})
	}
}
