package report

import (
	"strings"
	"time"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

type row struct {
	stage      string
	job        string
	outcome    v1beta1.Outcome
	failedStep string
	startedAt  time.Time
	duration   time.Duration
	err        string
}

// rows flattens result into one row per job in declaration order.
// A stage without jobs is represented by a single row.
func rows(result v1beta1.PipelineResult) []row {
	var rows []row
	for _, stage := range result.Stages {
		if len(stage.Jobs) == 0 {
			rows = append(rows, row{
				stage:   stage.Name,
				outcome: stage.Outcome,
				err:     oneLine(stage.Error),
			})
			continue
		}

		for _, job := range stage.Jobs {
			rows = append(rows, row{
				stage:      stage.Name,
				job:        job.Name,
				outcome:    job.Outcome,
				failedStep: job.FailedStep,
				startedAt:  job.StartedAt,
				duration:   job.Duration(),
				err:        oneLine(job.Error),
			})
		}
	}

	return rows
}

func (r row) durationString() string {
	if r.duration == 0 {
		return ""
	}

	return r.duration.Round(time.Millisecond * 10).String()
}

// counts returns the number of jobs per outcome.
func counts(result v1beta1.PipelineResult) map[v1beta1.Outcome]int {
	counts := make(map[v1beta1.Outcome]int)
	for _, stage := range result.Stages {
		for _, job := range stage.Jobs {
			counts[job.Outcome]++
		}
	}

	return counts
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
