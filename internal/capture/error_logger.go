package capture

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorLogger logs errors with zap and forwards them to the Client when it
// has a backend.
type ErrorLogger struct {
	logger *zap.Logger
	client *Client
}

// NewErrorLogger creates an error logger. client may be nil.
func NewErrorLogger(logger *zap.Logger, client *Client) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{logger: logger, client: client}
}

// Client returns the capture client, or nil.
func (l *ErrorLogger) Client() *Client {
	return l.client
}

// LogException logs err and captures it.
func (l *ErrorLogger) LogException(ctx context.Context, err error, req *http.Request, includeTrace bool) {
	if err == nil {
		return
	}

	fields := append(requestFields(req), zap.Error(err))
	if includeTrace {
		fields = append(fields, zap.StackSkip("stacktrace", 1))
	}
	l.logger.Error("Exception", fields...)

	if l.client.Enabled() {
		l.client.CaptureException(ctx, err, req, nil)
	}
}

// LogError logs a runtime error and captures it.
func (l *ErrorLogger) LogError(ctx context.Context, rerr *RuntimeError, req *http.Request, includeTrace bool) {
	if rerr == nil {
		return
	}

	fields := append(requestFields(req),
		zap.String("level", string(rerr.Level)),
		zap.String("file", rerr.File),
		zap.Int("line", rerr.Line),
	)
	if includeTrace && len(rerr.Trace) > 0 {
		trace := make([]string, 0, len(rerr.Trace))
		for _, f := range rerr.Trace {
			trace = append(trace, f.Function+" "+f.File+":"+f.Line)
		}
		fields = append(fields, zap.Strings("trace", trace))
	}
	l.logger.Error(rerr.Message, fields...)

	if l.client.Enabled() {
		l.client.CaptureError(ctx, rerr, req, nil)
	}
}

// Log writes a plain log entry.
func (l *ErrorLogger) Log(level zapcore.Level, msg string, fields ...zap.Field) {
	if ce := l.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// LogMessage is the single-message entry point of older error loggers. It
// is not supported: use LogException, LogError or Log.
func (l *ErrorLogger) LogMessage(level zapcore.Level, msg string) {
	panic("capture: ErrorLogger.LogMessage is not supported, use LogException, LogError or Log")
}

func requestFields(req *http.Request) []zap.Field {
	if req == nil {
		return nil
	}
	return []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("client_ip", req.RemoteAddr),
	}
}
