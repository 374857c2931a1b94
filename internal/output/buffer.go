package output

import (
	"bytes"
	"io"
	"sync"
	"text/template"

	"github.com/raffis/rigor/internal/processor"
)

// DefaultGroupTemplate renders a collapsible log group as understood by GitHub Actions.
var DefaultGroupTemplate = template.Must(template.New("group").Parse(
	"::group::{{ .Job.Name }}\n{{ .Buffer }}{{ if .Unterminated }}\n{{ end }}::endgroup::\n",
))

type bufferVars struct {
	Job          processor.JobInfo
	Buffer       *bytes.Buffer
	Unterminated bool
}

// Buffer holds back the output of a job until it finished and renders it with tmpl.
func Buffer(tmpl *template.Template, stdout io.Writer) Factory {
	mu := sync.Mutex{}

	return func(job processor.JobInfo) (io.Writer, io.Writer, Closer) {
		buffer := &syncBuffer{}

		return buffer, buffer, func() error {
			mu.Lock()
			defer mu.Unlock()

			b := buffer.bytes()
			return tmpl.Execute(stdout, bufferVars{
				Job:          job,
				Buffer:       bytes.NewBuffer(b),
				Unterminated: len(b) > 0 && b[len(b)-1] != '\n',
			})
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}
