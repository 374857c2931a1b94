package output

import (
	"errors"
	"fmt"
	"io"

	"github.com/raffis/rigor/internal/processor"
	"github.com/raffis/rigor/internal/styles"
	"github.com/raffis/rigor/internal/xio"
)

// Prefix prepends the job name to every output line.
func Prefix(stdout, stderr io.Writer, color bool) Factory {
	stdout, stderr = xio.NewSafeWriter(stdout), xio.NewSafeWriter(stderr)

	return func(job processor.JobInfo) (io.Writer, io.Writer, Closer) {
		prefix := fmt.Sprintf("%s | ", job.Name)

		if color {
			prefix = styles.ForJob(job.ID).Render(prefix)
		}

		jobStdout := xio.NewLineWriter(xio.NewPrefixWriter(stdout, []byte(prefix)))
		jobStderr := xio.NewLineWriter(xio.NewPrefixWriter(stderr, []byte(prefix)))

		return jobStdout, jobStderr, func() error {
			return errors.Join(jobStdout.Flush(), jobStderr.Flush())
		}
	}
}
