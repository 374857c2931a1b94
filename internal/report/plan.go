package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"sigs.k8s.io/yaml"

	"github.com/raffis/rigor/internal/styles"
	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

// Plan lists the jobs a run would execute for an event.
type Plan struct {
	Pipeline  string        `json:"pipeline,omitempty"`
	Event     v1beta1.Event `json:"event"`
	Triggered bool          `json:"triggered"`
	Jobs      []PlannedJob  `json:"jobs,omitempty"`
}

type PlannedJob struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Stage       string              `json:"stage"`
	Environment string              `json:"environment,omitempty"`
	Matrix      []v1beta1.AxisValue `json:"matrix,omitempty"`
	Steps       []string            `json:"steps,omitempty"`
}

func (p Plan) stages() int {
	var (
		n    int
		last string
	)

	for _, job := range p.Jobs {
		if job.Stage != last {
			n++
			last = job.Stage
		}
	}

	return n
}

// WritePlan renders plan to w. Only table, json and yaml are supported.
func WritePlan(w io.Writer, format Format, plan Plan) error {
	switch format {
	case FormatNone:
		return nil
	case FormatTable, "":
		return planTable(w, plan)
	case FormatJSON:
		b, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	case FormatYAML:
		b, err := yaml.Marshal(plan)
		if err != nil {
			return err
		}

		_, err = w.Write(b)
		return err
	default:
		return fmt.Errorf("report format `%s` not supported for plans", format)
	}
}

func planTable(w io.Writer, plan Plan) error {
	name := plan.Pipeline
	if name == "" {
		name = "pipeline"
	}

	if !plan.Triggered {
		_, err := fmt.Fprintf(w, "%s: not triggered by %s event\n", styles.Bold.Render(name), plan.Event.Kind)
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderColumn(false).
		BorderLeft(false).
		BorderRight(false).
		BorderTop(false).
		BorderBottom(false).
		Headers("STAGE", "JOB", "ENVIRONMENT", "STEPS", "ID").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}

			return styles.Cell
		})

	for _, job := range plan.Jobs {
		t.Row(job.Stage, job.Name, job.Environment, strings.Join(job.Steps, ", "), styles.Faint.Render(job.ID))
	}

	_, err := fmt.Fprintf(w, "%s\n\n%s: %d jobs in %d stages\n", t.String(), styles.Bold.Render(name), len(plan.Jobs), plan.stages())
	return err
}
