package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raffis/rigor/internal/styles"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	RunE:  runVersion,
}

type versionFlags struct {
	json bool `env:"JSON"`
}

var versionArgs = versionFlags{}

func init() {
	versionCmd.Flags().BoolVarP(&versionArgs.json, "json", "", !isTerminal(os.Stdout), "Print the version as json.")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	if versionArgs.json {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), `{"version":"%s","sha":"%s","date":"%s"}`+"\n", version, commit, date)
		return err
	}

	_, err := fmt.Fprintf(stdout(), "%s\n%s\n\n%s\t%s\n%s\t%s\n%s\t%s\n",
		styles.Bold.Render("RIGOR"),
		"Continuous validation pipelines",
		styles.Bold.Render("Version:"),
		version,
		styles.Bold.Render("Commit SHA:"),
		commit,
		styles.Bold.Render("Build date:"),
		date,
	)

	return err
}
