package output

import (
	"bytes"

	"github.com/go-logr/logr"
)

// LogWriter logs every write as one record. Trailing line breaks are removed.
type LogWriter struct {
	logger logr.Logger
}

func NewLogWriter(logger logr.Logger) *LogWriter {
	return &LogWriter{
		logger: logger,
	}
}

func (l *LogWriter) Write(payload []byte) (int, error) {
	line := bytes.TrimRight(payload, "\r\n")
	l.logger.Info(string(line))
	return len(payload), nil
}
