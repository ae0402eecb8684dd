package tracing

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Trace continuation headers.
const (
	SentryTraceHeader  = "sentry-trace"
	BaggageHeader      = "baggage"
	TraceparentHeader  = "traceparent"
	RequestStartHeader = "X-Request-Start"
)

// maxUnixSeconds is the last second representable as int64 nanoseconds.
const maxUnixSeconds = math.MaxInt64 / int64(time.Second)

var continuationHeaders = []string{SentryTraceHeader, BaggageHeader, TraceparentHeader}

// ContinuationHeaders copies the trace continuation headers out of h.
func ContinuationHeaders(h http.Header) http.Header {
	out := make(http.Header, len(continuationHeaders))
	for _, name := range continuationHeaders {
		if v := h.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	return out
}

// ParseRequestStart parses an upstream request start header.
//
// Accepted forms are "t=1700000000.123", "1700000000.123" (seconds),
// "t=1700000000123456" (microseconds) and "t=1700000000123" (milliseconds),
// as written by nginx, HAProxy and Heroku routers.
func ParseRequestStart(value string) (time.Time, bool) {
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "t="))
	if value == "" {
		return time.Time{}, false
	}

	if strings.Contains(value, ".") {
		secs, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(secs) || secs <= 0 || secs >= float64(maxUnixSeconds) {
			return time.Time{}, false
		}
		return time.Unix(0, int64(secs*float64(time.Second))), true
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	switch {
	case n > 1e15:
		return time.UnixMicro(n), true
	case n > 1e12:
		return time.UnixMilli(n), true
	case n > maxUnixSeconds:
		return time.Time{}, false
	default:
		return time.Unix(n, 0), true
	}
}
