package output

import (
	"fmt"
	"io"

	"github.com/raffis/rigor/internal/processor"
)

// Closer is called once the job finished. It flushes pending output.
type Closer func() error

// Factory creates the live stdout and stderr writers of a job.
// Writers returned for different jobs may be used concurrently.
type Factory func(job processor.JobInfo) (io.Writer, io.Writer, Closer)

type Mode string

var (
	ModePrefix  Mode = "prefix"
	ModeRaw     Mode = "raw"
	ModeGroup   Mode = "group"
	ModeJSON    Mode = "json"
	ModeDiscard Mode = "discard"
)

var Modes = []Mode{ModePrefix, ModeRaw, ModeGroup, ModeJSON, ModeDiscard}

type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Color  bool
}

// New returns the factory for the given output mode.
func New(mode Mode, opts Options) (Factory, error) {
	switch mode {
	case ModePrefix:
		return Prefix(opts.Stdout, opts.Stderr, opts.Color), nil
	case ModeRaw:
		return Passthrough(opts.Stdout, opts.Stderr), nil
	case ModeGroup:
		return Buffer(DefaultGroupTemplate, opts.Stdout), nil
	case ModeJSON:
		return JSON(opts.Stdout)
	case ModeDiscard:
		return Discard(), nil
	default:
		return nil, fmt.Errorf("unknown output mode `%s`", mode)
	}
}

// Discard drops all job output. Captured step output is unaffected.
func Discard() Factory {
	return func(job processor.JobInfo) (io.Writer, io.Writer, Closer) {
		return io.Discard, io.Discard, noopCloser
	}
}

func noopCloser() error {
	return nil
}
