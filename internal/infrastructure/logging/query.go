package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// QueryLogger writes pgx trace log entries through zap.
type QueryLogger struct {
	logger *zap.Logger
}

// NewQueryLogger returns a tracelog.Logger backed by logger.
func NewQueryLogger(logger *zap.Logger) *QueryLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryLogger{logger: logger.Named("query")}
}

// Log implements tracelog.Logger.
func (l *QueryLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]zap.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, queryField(k, v))
	}
	l.logger.Log(zapLevel(level), msg, fields...)
}

func queryField(key string, value any) zap.Field {
	switch v := value.(type) {
	case time.Duration:
		return zap.Duration(key, v)
	case error:
		return zap.NamedError(key, v)
	case string:
		return zap.String(key, v)
	case fmt.Stringer:
		return zap.Stringer(key, v)
	default:
		return zap.Any(key, v)
	}
}

func zapLevel(level tracelog.LogLevel) zapcore.Level {
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		return zapcore.DebugLevel
	case tracelog.LogLevelInfo:
		return zapcore.InfoLevel
	case tracelog.LogLevelWarn:
		return zapcore.WarnLevel
	case tracelog.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
