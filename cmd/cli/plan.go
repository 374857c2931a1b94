package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/raffis/rigor/internal/pipeline"
	"github.com/raffis/rigor/internal/report"
)

var planCmd = &cobra.Command{
	Use:   "plan [ref]",
	Short: "Print the jobs a run would execute without executing them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlan,
}

type planFlags struct {
	load   loadFlags
	event  pipeline.EventOptions
	format report.Format `env:"FORMAT"`
}

var planArgs = planFlags{
	load:   newLoadFlags(),
	format: report.FormatTable,
}

func init() {
	planCmd.Flags().VarP(&planArgs.format, "format", "f", "Output format. One of [table, json, yaml].")
	planArgs.load.BindFlags(planCmd.Flags())
	planArgs.event.BindFlags(planCmd.Flags())

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	event, err := planArgs.event.Event(os.Getenv)
	if err != nil {
		return &pipeline.ConfigError{Errs: []error{err}}
	}

	definition, err := planArgs.load.load(cmd.Context(), refFromArgs(args))
	if err != nil {
		return err
	}

	p, err := pipeline.NewBuilder(pipeline.WithLogger(logger)).Build(definition)
	if err != nil {
		return err
	}

	plan := report.Plan{
		Pipeline: p.Name(),
		Event:    event,
	}

	plan.Triggered, err = p.ShouldRun(event)
	if err != nil {
		return err
	}

	if plan.Triggered {
		stages, err := p.Plan(event)
		if err != nil {
			return err
		}

		for _, stage := range stages {
			for _, job := range stage.Jobs {
				planned := report.PlannedJob{
					ID:          job.ID,
					Name:        job.Name,
					Stage:       job.Stage,
					Environment: job.Environment,
					Matrix:      job.Matrix,
				}

				for _, step := range job.Steps {
					planned.Steps = append(planned.Steps, step.Name)
				}

				plan.Jobs = append(plan.Jobs, planned)
			}
		}
	}

	return report.WritePlan(stdout(), planArgs.format, plan)
}
