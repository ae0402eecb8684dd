package memory

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

// Span is a recorded span.
type Span struct {
	backend *Backend

	mu          sync.Mutex
	TraceID     string
	SpanID      string
	ParentID    string
	Name        string
	Op          string
	Description string
	Source      string
	Status      tracing.Status
	HTTPStatus  int
	Data        map[string]any
	Sampled     bool
	StartTime   time.Time
	EndTime     time.Time
	Finished    bool
	Transaction bool
	// Continued is set on transactions started from inbound trace headers.
	Continued bool
}

// StartChild implements tracing.Span.
func (s *Span) StartChild(opts tracing.SpanOptions) tracing.Span {
	start := opts.Start
	if start.IsZero() {
		start = s.backend.clock.Now()
	}

	s.mu.Lock()
	child := &Span{
		backend:     s.backend,
		TraceID:     s.TraceID,
		SpanID:      newSpanID(),
		ParentID:    s.SpanID,
		Op:          opts.Op,
		Description: opts.Description,
		Data:        copyData(opts.Data),
		Sampled:     s.Sampled,
		StartTime:   start,
	}
	s.mu.Unlock()

	s.backend.started(child)
	return child
}

// SetStatus implements tracing.Span.
func (s *Span) SetStatus(status tracing.Status) {
	s.mu.Lock()
	s.Status = status
	s.mu.Unlock()
}

// SetHTTPStatus implements tracing.Span.
func (s *Span) SetHTTPStatus(code int) {
	s.mu.Lock()
	s.HTTPStatus = code
	s.Status = tracing.HTTPStatus(code)
	s.mu.Unlock()
}

// SetData implements tracing.Span.
func (s *Span) SetData(key string, value any) {
	s.mu.Lock()
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	s.Data[key] = value
	s.mu.Unlock()
}

// SetSampled implements tracing.Span.
func (s *Span) SetSampled(sampled bool) {
	s.mu.Lock()
	s.Sampled = sampled
	s.mu.Unlock()
}

// Finish implements tracing.Span.
func (s *Span) Finish() {
	s.FinishAt(s.backend.clock.Now())
}

// FinishAt implements tracing.Span.
func (s *Span) FinishAt(end time.Time) {
	s.mu.Lock()
	s.EndTime = end
	s.Finished = true
	s.mu.Unlock()

	s.backend.recordFinished(s)
}

// TraceHeaders implements tracing.Span.
func (s *Span) TraceHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()

	sampled := "0"
	if s.Sampled {
		sampled = "1"
	}
	h := make(http.Header)
	h.Set(tracing.SentryTraceHeader, s.TraceID+"-"+s.SpanID+"-"+sampled)
	h.Set(tracing.TraceparentHeader, "00-"+s.TraceID+"-"+s.SpanID+"-0"+sampled)
	return h
}

// Duration returns EndTime - StartTime.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EndTime.Sub(s.StartTime)
}

// IsFinished reports whether the span has been finished.
func (s *Span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Finished
}

// IsSampled reports the sampling decision.
func (s *Span) IsSampled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Sampled
}

// StatusValue returns the span status.
func (s *Span) StatusValue() tracing.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// Datum returns one data value.
func (s *Span) Datum(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Data[key]
}

func (s *Span) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	label := s.Op
	if s.Transaction {
		label = s.Name
	}
	return label + " [" + s.SpanID + "] status=" + string(s.Status) + " http=" + strconv.Itoa(s.HTTPStatus)
}

func copyData(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
