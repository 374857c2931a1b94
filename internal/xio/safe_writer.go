package xio

import (
	"io"
	"sync"
)

func NewSafeWriter(w io.Writer) *SafeWriter {
	return &SafeWriter{
		w: w,
	}
}

// SafeWriter serializes writes from concurrent producers.
type SafeWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *SafeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
