package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

var markdownSymbols = map[v1beta1.Outcome]string{
	v1beta1.OutcomeSucceeded: ":white_check_mark:",
	v1beta1.OutcomeFailed:    ":x:",
	v1beta1.OutcomeErrored:   ":warning:",
	v1beta1.OutcomeCancelled: ":no_entry_sign:",
	v1beta1.OutcomeSkipped:   ":fast_forward:",
}

// Markdown renders result as a job summary suitable for $GITHUB_STEP_SUMMARY.
func Markdown(w io.Writer, result v1beta1.PipelineResult) error {
	name := result.Pipeline
	if name == "" {
		name = "pipeline"
	}

	if !result.Triggered {
		_, err := fmt.Fprintf(w, "### %s\n\nNot triggered by %s event.\n", name, result.Event.Kind)
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "### %s %s\n\n", markdownOutcome(result.Outcome), name)

	if result.Event.SHA != "" {
		fmt.Fprintf(&b, "Validated `%s` (%s)\n\n", result.Event.SHA, result.Event.Kind)
	}

	fmt.Fprintln(&b, "| Stage | Job | Outcome | Failed step | Duration | Error |")
	fmt.Fprintln(&b, "| --- | --- | --- | --- | --- | --- |")

	for _, r := range rows(result) {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			escapeCell(r.stage),
			escapeCell(r.job),
			markdownOutcome(r.outcome),
			escapeCell(r.failedStep),
			r.durationString(),
			escapeCell(r.err),
		)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func markdownOutcome(outcome v1beta1.Outcome) string {
	symbol, ok := markdownSymbols[outcome]
	if !ok {
		return outcome.String()
	}

	return symbol + " " + outcome.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
