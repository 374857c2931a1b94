package output

import (
	"errors"
	"io"

	"github.com/raffis/rigor/internal/processor"
	"github.com/raffis/rigor/internal/xio"
)

// Passthrough writes job output as is. Lines of concurrent jobs are not interleaved.
func Passthrough(stdout, stderr io.Writer) Factory {
	stdout, stderr = xio.NewSafeWriter(stdout), xio.NewSafeWriter(stderr)

	return func(job processor.JobInfo) (io.Writer, io.Writer, Closer) {
		jobStdout, jobStderr := xio.NewLineWriter(stdout), xio.NewLineWriter(stderr)

		return jobStdout, jobStderr, func() error {
			return errors.Join(jobStdout.Flush(), jobStderr.Flush())
		}
	}
}
