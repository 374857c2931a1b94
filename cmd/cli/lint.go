package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raffis/rigor/internal/pipeline"
	"github.com/raffis/rigor/internal/styles"
)

var lintCmd = &cobra.Command{
	Use:   "lint [ref...]",
	Short: "Validate pipeline definitions without running them",
	RunE:  runLint,
}

type lintFlags struct {
	load loadFlags
}

var lintArgs = lintFlags{
	load: newLoadFlags(),
}

func init() {
	lintArgs.load.BindFlags(lintCmd.Flags())
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	refs := args
	if len(refs) == 0 {
		refs = []string{""}
	}

	w := stdout()
	var errs []error

	for _, ref := range refs {
		name := ref
		if name == "" {
			name = "."
		}

		err := lint(cmd, ref)
		if err == nil {
			fmt.Fprintf(w, "%s %s\n", styles.Succeeded.Render("✓"), name)
			continue
		}

		errs = append(errs, err)
		fmt.Fprintf(w, "%s %s\n", styles.Failed.Render("✗"), name)

		var configErr *pipeline.ConfigError
		if errors.As(err, &configErr) {
			for _, e := range configErr.Errs {
				fmt.Fprintf(w, "  - %s\n", e)
			}

			continue
		}

		fmt.Fprintf(w, "  - %s\n", err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d pipeline definitions invalid: %w", len(errs), len(refs), errors.Join(errs...))
	}

	return nil
}

func lint(cmd *cobra.Command, ref string) error {
	definition, err := lintArgs.load.load(cmd.Context(), ref)
	if err != nil {
		return err
	}

	_, err = pipeline.NewBuilder(pipeline.WithLogger(logger)).Build(definition)
	return err
}
