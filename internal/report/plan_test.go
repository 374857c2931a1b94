package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

func samplePlan() Plan {
	return Plan{
		Pipeline:  "pallas",
		Event:     v1beta1.Event{Kind: v1beta1.EventKindPullRequest},
		Triggered: true,
		Jobs: []PlannedJob{
			{ID: "a1", Name: "check", Stage: "check", Environment: "ubuntu-latest", Steps: []string{"checkout", "check"}},
			{ID: "b1", Name: "test (ubuntu-latest)", Stage: "test", Environment: "ubuntu-latest", Steps: []string{"test"}},
			{ID: "b2", Name: "test (macOS-latest)", Stage: "test", Environment: "macOS-latest", Steps: []string{"test"}},
		},
	}
}

func TestWritePlan(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		plan     Plan
		contains []string
		err      string
	}{
		{
			name:     "table",
			format:   FormatTable,
			plan:     samplePlan(),
			contains: []string{"STAGE", "test (macOS-latest)", "checkout, check", "3 jobs in 2 stages"},
		},
		{
			name:     "not triggered",
			format:   FormatTable,
			plan:     Plan{Pipeline: "pallas", Event: v1beta1.Event{Kind: v1beta1.EventKindPush}},
			contains: []string{"not triggered by push event"},
		},
		{
			name:     "yaml",
			format:   FormatYAML,
			plan:     samplePlan(),
			contains: []string{"pipeline: pallas", "- name: test (ubuntu-latest)"},
		},
		{
			name:   "markdown is not supported",
			format: FormatMarkdown,
			plan:   samplePlan(),
			err:    "report format `markdown` not supported for plans",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			err := WritePlan(buf, test.format, test.plan)
			if test.err != "" {
				require.EqualError(t, err, test.err)
				return
			}

			require.NoError(t, err)
			for _, s := range test.contains {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestWritePlanJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, WritePlan(buf, FormatJSON, samplePlan()))

	var plan Plan
	require.NoError(t, json.Unmarshal(buf.Bytes(), &plan))
	assert.Len(t, plan.Jobs, 3)
	assert.True(t, plan.Triggered)
}
