package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/raffis/rigor/internal/styles"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

const (
	defaultWidth = 80
	minBarWidth  = 20
)

// Timeline draws one bar per job relative to the pipeline start.
func Timeline(w io.Writer, result v1beta1.PipelineResult, width int) error {
	var jobs []row
	labelWidth := 0
	for _, r := range rows(result) {
		if r.startedAt.IsZero() {
			continue
		}

		jobs = append(jobs, r)
		labelWidth = max(labelWidth, len(r.job))
	}

	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, Summary(result))
		return err
	}

	start := jobs[0].startedAt
	end := start
	for _, r := range jobs {
		if r.startedAt.Before(start) {
			start = r.startedAt
		}

		if e := r.startedAt.Add(r.duration); e.After(end) {
			end = e
		}
	}

	total := end.Sub(start)
	if total <= 0 {
		total = time.Millisecond
	}

	barWidth := max(width-labelWidth-3, minBarWidth)
	scale := float64(barWidth) / float64(total)

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n", strings.Repeat(" ", labelWidth+3), styles.Faint.Render(fmt.Sprintf("0 .. %s", total.Round(time.Millisecond*10))))

	for _, r := range jobs {
		offset := int(float64(r.startedAt.Sub(start)) * scale)
		length := max(int(float64(r.duration)*scale), 1)
		if offset+length > barWidth {
			length = max(barWidth-offset, 1)
		}

		bar := styles.ForOutcome(r.outcome).Render(strings.Repeat("█", length))
		fmt.Fprintf(&b, "%-*s │ %s%s\n", labelWidth, r.job, strings.Repeat(" ", offset), bar)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
