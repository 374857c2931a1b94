package xio

import (
	"bytes"
	"io"
)

func NewPrefixWriter(w io.Writer, prefix []byte) *PrefixWriter {
	return &PrefixWriter{
		w:           w,
		prefix:      bytes.Clone(prefix),
		lineStarted: false,
	}
}

// PrefixWriter prepends prefix to every line written to w.
type PrefixWriter struct {
	w           io.Writer
	prefix      []byte
	lineStarted bool
	buf         bytes.Buffer
}

func (w *PrefixWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	w.buf.Reset()
	for _, b := range p {
		if !w.lineStarted {
			w.buf.Write(w.prefix)
			w.lineStarted = true
		}

		w.buf.WriteByte(b)
		if b == '\n' {
			w.lineStarted = false
		}
	}

	_, err := w.w.Write(w.buf.Bytes())
	return len(p), err
}
