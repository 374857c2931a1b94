package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/raffis/rigor/pkg/apis/core/v1beta1"
)

const lockRetryDelay = 50 * time.Millisecond

// Entry is a recorded pipeline run.
type Entry struct {
	RecordedAt time.Time              `json:"recordedAt"`
	Result     v1beta1.PipelineResult `json:"result"`
}

// History is an append only file of pipeline results, one json document per line.
// Concurrent runs sharing a history file are serialized through a lock file.
type History struct {
	path string
	lock *flock.Flock
}

func NewHistory(path string) *History {
	return &History{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (h *History) Append(ctx context.Context, result v1beta1.PipelineResult) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer func() {
		_ = h.lock.Unlock()
	}()

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}

	b, err := json.Marshal(Entry{
		RecordedAt: time.Now(),
		Result:     result,
	})
	if err != nil {
		_ = f.Close()
		return err
	}

	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write history: %w", err)
	}

	return f.Close()
}

// Load returns all recorded runs, oldest first. A missing history is empty.
func (h *History) Load(ctx context.Context) ([]Entry, error) {
	if err := h.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() {
		_ = h.lock.Unlock()
	}()

	f, err := os.Open(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var entries []Entry
	dec := json.NewDecoder(f)

	for n := 1; ; n++ {
		var entry Entry
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}

		if err != nil {
			return nil, fmt.Errorf("history entry %d: %w", n, err)
		}

		entries = append(entries, entry)
	}
}

// Last returns the most recent run of the named pipeline.
func (h *History) Last(ctx context.Context, pipeline string) (Entry, bool, error) {
	entries, err := h.Load(ctx)
	if err != nil {
		return Entry{}, false, err
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Result.Pipeline == pipeline {
			return entries[i], true, nil
		}
	}

	return Entry{}, false, nil
}

func (h *History) acquire(ctx context.Context) error {
	locked, err := h.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock history: %w", err)
	}

	if !locked {
		return errors.New("lock history: not acquired")
	}

	return nil
}
