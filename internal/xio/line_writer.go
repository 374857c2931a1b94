package xio

import (
	"bytes"
	"io"
)

// DefaultMaxLineLength bounds the bytes buffered for a single line.
const DefaultMaxLineLength = 64 * 1024

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{
		w:       w,
		maxLine: DefaultMaxLineLength,
	}
}

// LineWriter forwards complete lines only. Remaining bytes are written on Flush.
// A line exceeding the maximum line length is forwarded in chunks, each terminated by a newline.
type LineWriter struct {
	w       io.Writer
	buf     bytes.Buffer
	maxLine int
}

// WithMaxLineLength changes the maximum line length. n <= 0 disables the limit.
func (w *LineWriter) WithMaxLineLength(n int) *LineWriter {
	w.maxLine = n
	return w
}

func (w *LineWriter) Write(p []byte) (int, error) {
	total := len(p)

	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.buf.Write(p)
			return total, w.split()
		}

		w.buf.Write(p[:i+1])
		p = p[i+1:]

		if err := w.split(); err != nil {
			return total - len(p), err
		}

		if w.buf.Len() == 0 {
			continue
		}

		if _, err := w.w.Write(w.buf.Bytes()); err != nil {
			return total - len(p), err
		}

		w.buf.Reset()
	}

	return total, nil
}

// split forwards chunks of the pending line while it exceeds the maximum line length.
func (w *LineWriter) split() error {
	if w.maxLine <= 0 {
		return nil
	}

	for {
		n := w.buf.Len()
		if n > 0 && w.buf.Bytes()[n-1] == '\n' {
			n--
		}

		if n <= w.maxLine {
			return nil
		}

		chunk := append(bytes.Clone(w.buf.Next(w.maxLine)), '\n')
		if _, err := w.w.Write(chunk); err != nil {
			return err
		}
	}
}

func (w *LineWriter) Flush() error {
	if w.buf.Len() == 0 {
		return nil
	}

	_, err := w.w.Write(w.buf.Bytes())
	if err != nil {
		return err
	}

	w.buf.Reset()
	return nil
}
