package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/raffis/rigor/internal/output"
	"github.com/raffis/rigor/internal/report"
)

// githubActionsProfile adjusts the defaults of flags not set explicitly when running
// inside a GitHub Actions workflow.
func (f *runFlags) githubActionsProfile(cmd *cobra.Command) {
	if !cmd.Flags().Changed("output") {
		f.output = string(output.ModeGroup)
	}

	if !cmd.Flags().Changed("report") {
		f.report = report.FormatMarkdown
	}

	if !cmd.Flags().Changed("report-output") && os.Getenv("GITHUB_STEP_SUMMARY") != "" {
		f.reportOutput = os.Getenv("GITHUB_STEP_SUMMARY")
	}

	if !cmd.Flags().Changed("source-path") && os.Getenv("GITHUB_WORKSPACE") != "" {
		f.sourcePath = os.Getenv("GITHUB_WORKSPACE")
	}
}
