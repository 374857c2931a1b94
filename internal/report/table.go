package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/raffis/rigor/internal/styles"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

var summaryOrder = []v1beta1.Outcome{
	v1beta1.OutcomeSucceeded,
	v1beta1.OutcomeFailed,
	v1beta1.OutcomeErrored,
	v1beta1.OutcomeCancelled,
}

func Table(w io.Writer, result v1beta1.PipelineResult) error {
	if !result.Triggered {
		_, err := fmt.Fprintln(w, Summary(result))
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderColumn(false).
		BorderLeft(false).
		BorderRight(false).
		BorderTop(false).
		BorderBottom(false).
		Headers("STAGE", "JOB", "OUTCOME", "FAILED STEP", "DURATION", "ERROR").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}

			return styles.Cell
		})

	for _, r := range rows(result) {
		t.Row(r.stage, r.job, styles.Outcome(r.outcome), r.failedStep, r.durationString(), r.err)
	}

	_, err := fmt.Fprintf(w, "%s\n\n%s\n", t.String(), Summary(result))
	return err
}

// Summary is a one line description of the pipeline outcome.
func Summary(result v1beta1.PipelineResult) string {
	name := result.Pipeline
	if name == "" {
		name = "pipeline"
	}

	if !result.Triggered {
		return fmt.Sprintf("%s: not triggered by %s event", styles.Bold.Render(name), result.Event.Kind)
	}

	jobs := counts(result)
	var parts []string
	for _, outcome := range summaryOrder {
		if n := jobs[outcome]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(outcome.String())))
		}
	}

	if len(parts) == 0 {
		parts = append(parts, "no jobs")
	}

	duration := result.EndedAt.Sub(result.StartedAt).Round(time.Millisecond * 10)
	return fmt.Sprintf("%s: %s in %s (%s)", styles.Bold.Render(name), styles.Outcome(result.Outcome), duration, strings.Join(parts, ", "))
}
