package logbridge

import (
	"context"
	"fmt"
	"slices"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// OtelCore returns a zapcore.Core forwarding the entries enabled by level to an
// OpenTelemetry logger. A nil logger results in a no-op core.
func OtelCore(logger otellog.Logger, level zapcore.LevelEnabler) zapcore.Core {
	if logger == nil {
		return zapcore.NewNopCore()
	}

	return &otelCore{logger: logger, LevelEnabler: level}
}

type otelCore struct {
	zapcore.LevelEnabler
	logger otellog.Logger
	attrs  []otellog.KeyValue
}

func (c *otelCore) With(fields []zapcore.Field) zapcore.Core {
	return &otelCore{
		LevelEnabler: c.LevelEnabler,
		logger:       c.logger,
		attrs:        append(slices.Clip(c.attrs), encodeFields(fields)...),
	}
}

func (c *otelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}

	return ce.AddCore(ent, c)
}

func (c *otelCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	var r otellog.Record
	r.SetTimestamp(ent.Time)
	r.SetObservedTimestamp(time.Now())
	r.SetSeverity(zapLevelToOtel(ent.Level))
	r.SetSeverityText(ent.Level.CapitalString())
	r.SetBody(otellog.StringValue(ent.Message))
	r.AddAttributes(c.attrs...)
	r.AddAttributes(encodeFields(fields)...)

	if ent.LoggerName != "" {
		r.AddAttributes(otellog.String("logger", ent.LoggerName))
	}

	if ent.Caller.Defined {
		r.AddAttributes(
			otellog.String("caller", ent.Caller.TrimmedPath()),
			otellog.String("function", ent.Caller.Function),
		)
	}

	if ent.Stack != "" {
		r.AddAttributes(otellog.String("stack", ent.Stack))
	}

	c.logger.Emit(context.Background(), r)
	return nil
}

func (c *otelCore) Sync() error {
	return nil
}

func zapLevelToOtel(l zapcore.Level) otellog.Severity {
	switch {
	case l < zapcore.DebugLevel:
		// logr verbosity beyond V(1)
		return otellog.SeverityTrace1
	case l == zapcore.DebugLevel:
		return otellog.SeverityDebug1
	case l == zapcore.WarnLevel:
		return otellog.SeverityWarn1
	case l == zapcore.ErrorLevel:
		return otellog.SeverityError1
	case l >= zapcore.DPanicLevel && l <= zapcore.FatalLevel:
		return otellog.SeverityError2
	default:
		return otellog.SeverityInfo1
	}
}

// encodeFields lets zap encode the fields and converts the result to log attributes.
// Attributes are sorted by key.
func encodeFields(fields []zapcore.Field) []otellog.KeyValue {
	if len(fields) == 0 {
		return nil
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	attrs := make([]otellog.KeyValue, 0, len(enc.Fields))
	for key, v := range enc.Fields {
		attrs = append(attrs, otellog.KeyValue{Key: key, Value: toValue(v)})
	}

	slices.SortFunc(attrs, func(a, b otellog.KeyValue) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		default:
			return 0
		}
	})

	return attrs
}

func toValue(v any) otellog.Value {
	switch v := v.(type) {
	case string:
		return otellog.StringValue(v)
	case bool:
		return otellog.BoolValue(v)
	case int:
		return otellog.IntValue(v)
	case int8:
		return otellog.Int64Value(int64(v))
	case int16:
		return otellog.Int64Value(int64(v))
	case int32:
		return otellog.Int64Value(int64(v))
	case int64:
		return otellog.Int64Value(v)
	case uint:
		return otellog.Int64Value(int64(v))
	case uint8:
		return otellog.Int64Value(int64(v))
	case uint16:
		return otellog.Int64Value(int64(v))
	case uint32:
		return otellog.Int64Value(int64(v))
	case uint64:
		return otellog.Int64Value(int64(v))
	case float32:
		return otellog.Float64Value(float64(v))
	case float64:
		return otellog.Float64Value(v)
	case time.Duration:
		return otellog.Int64Value(int64(v))
	case time.Time:
		return otellog.Int64Value(v.UnixNano())
	case []byte:
		return otellog.BytesValue(v)
	case map[string]string:
		kvs := make([]otellog.KeyValue, 0, len(v))
		for key, value := range v {
			kvs = append(kvs, otellog.String(key, value))
		}

		return otellog.MapValue(kvs...)
	case map[string]any:
		kvs := make([]otellog.KeyValue, 0, len(v))
		for key, value := range v {
			kvs = append(kvs, otellog.KeyValue{Key: key, Value: toValue(value)})
		}

		return otellog.MapValue(kvs...)
	case []any:
		values := make([]otellog.Value, 0, len(v))
		for _, value := range v {
			values = append(values, toValue(value))
		}

		return otellog.SliceValue(values...)
	case nil:
		return otellog.Value{}
	default:
		return otellog.StringValue(fmt.Sprint(v))
	}
}
