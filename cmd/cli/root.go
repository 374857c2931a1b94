package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/raffis/rigor/internal/logsetup"
	"github.com/raffis/rigor/internal/pipeline"
)

var (
	version = "0.0.0-dev"
	commit  = "none"
	date    = "unknown"
)

const (
	exitSucceeded     = 0
	exitFailed        = 1
	exitConfiguration = 2
)

type rootFlags struct {
	noColor    bool `env:"NO_COLOR"`
	logOptions *logsetup.Options
}

var rootArgs = rootFlags{
	logOptions: logsetup.DefaultOptions(),
}

var logger logr.Logger
var zapConfig zap.Config

var rootCmd = &cobra.Command{
	Use:               "rigor",
	Short:             "Continuous validation pipelines for every push and pull request",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: runRoot,
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
	}

	os.Exit(exitCode(err))
}

func init() {
	_, noColor := os.LookupEnv("NO_COLOR")
	rootCmd.PersistentFlags().BoolVarP(&rootArgs.noColor, "no-color", "", noColor, "Disable all color output to the terminal.")
	rootArgs.logOptions.BindFlags(rootCmd.PersistentFlags())
}

func runRoot(cmd *cobra.Command, args []string) error {
	var err error
	logger, zapConfig, err = rootArgs.logOptions.Build()
	return err
}

// exitCode maps err to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSucceeded
	case errors.Is(err, pipeline.ErrConfiguration):
		return exitConfiguration
	default:
		return exitFailed
	}
}

// stdout downsamples colors to what the terminal supports.
func stdout() *colorprofile.Writer {
	w := colorprofile.NewWriter(os.Stdout, os.Environ())
	if rootArgs.noColor {
		w.Profile = colorprofile.NoTTY
	}

	return w
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
