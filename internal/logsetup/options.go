package logsetup

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Verbose int8
	Log     struct {
		Encoding string
	}
}

func DefaultOptions() *Options {
	var level int8

	if os.Getenv("RUNNER_DEBUG") != "" {
		level = 10
	}

	o := &Options{
		Verbose: level,
	}

	o.Log.Encoding = "console"
	return o
}

func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.Int8VarP(&o.Verbose, "verbose", "v", o.Verbose, "Log verbosity level. With `0` only info logs are visible while 127 is the most verbose level.")
	fs.StringVar(&o.Log.Encoding, "log-encoding", o.Log.Encoding, "Log encoding format. One of [console, json].")
}

// Build returns a logger writing to stderr. Entries are also written to every given core.
func (o *Options) Build(cores ...zapcore.Core) (logr.Logger, zap.Config, error) {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Encoding = o.Log.Encoding
	zapConfig.Level = zap.NewAtomicLevelAt(zapcore.Level(-1 * o.Verbose))
	zapConfig.OutputPaths = []string{"stderr"}

	zapConfig.EncoderConfig.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendInt(int(l) * -1)
	}

	zapConfig.DisableStacktrace = true

	var opts []zap.Option
	if len(cores) > 0 {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(append([]zapcore.Core{core}, cores...)...)
		}))
	}

	zapLog, err := zapConfig.Build(opts...)
	if err != nil {
		return logr.Discard(), zapConfig, err
	}

	return zapr.NewLogger(zapLog), zapConfig, nil
}
