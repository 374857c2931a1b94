package output

import (
	"io"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/raffis/rigor/internal/processor"
	"github.com/raffis/rigor/internal/xio"
)

// JSON emits every output line as a structured log record.
func JSON(w io.Writer) (Factory, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(zapcore.AddSync(w)), zapcore.InfoLevel)
	logger := zapr.NewLogger(zap.New(core))

	return func(job processor.JobInfo) (io.Writer, io.Writer, Closer) {
		jobLogger := logger.WithValues("job", job.Name, "job-id", job.ID, "stage", job.Stage)
		stdout := xio.NewLineWriter(NewLogWriter(jobLogger.WithValues("stream", "stdout")))
		stderr := xio.NewLineWriter(NewLogWriter(jobLogger.WithValues("stream", "stderr")))

		return stdout, stderr, func() error {
			if err := stdout.Flush(); err != nil {
				return err
			}

			return stderr.Flush()
		}
	}, nil
}
