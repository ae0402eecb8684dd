package tracing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// TimerEntry is a finished named interval, relative to the request start.
type TimerEntry struct {
	Name  string
	Start time.Duration
	End   time.Duration
}

// Timers records named intervals during a request, later flushed as spans.
type Timers struct {
	clock clockz.Clock
	start time.Time

	mu   sync.Mutex
	open map[string]time.Duration
	done []TimerEntry
}

// NewTimers creates timers for a request that started at start.
func NewTimers(clock clockz.Clock, start time.Time) *Timers {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &Timers{
		clock: clock,
		start: start,
		open:  make(map[string]time.Duration),
	}
}

// RequestStart returns the reference time of all offsets.
func (t *Timers) RequestStart() time.Time {
	return t.start
}

// Start opens the named timer. Starting an open timer restarts it.
func (t *Timers) Start(name string) {
	offset := t.clock.Since(t.start)
	t.mu.Lock()
	t.open[name] = offset
	t.mu.Unlock()
}

// Stop closes the named timer. It reports false if the timer was not open.
func (t *Timers) Stop(name string) bool {
	offset := t.clock.Since(t.start)
	t.mu.Lock()
	defer t.mu.Unlock()

	begin, ok := t.open[name]
	if !ok {
		return false
	}
	delete(t.open, name)
	t.done = append(t.done, TimerEntry{Name: name, Start: begin, End: offset})
	return true
}

// Entries returns the finished timers ordered by start offset.
func (t *Timers) Entries() []TimerEntry {
	t.mu.Lock()
	entries := make([]TimerEntry, len(t.done))
	copy(entries, t.done)
	t.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Start < entries[j].Start
	})
	return entries
}

// StartTimer opens a named timer on the request in ctx. No-op when untraced.
func StartTimer(ctx context.Context, name string) {
	if hub := HubFromContext(ctx); hub != nil {
		if timers := hub.Timers(); timers != nil {
			timers.Start(name)
		}
	}
}

// StopTimer closes a named timer on the request in ctx.
func StopTimer(ctx context.Context, name string) {
	if hub := HubFromContext(ctx); hub != nil {
		if timers := hub.Timers(); timers != nil {
			timers.Stop(name)
		}
	}
}

// TimerOp classifies a timer name into a span operation.
func TimerOp(name string) string {
	switch {
	case strings.HasPrefix(name, "View:"),
		strings.HasPrefix(name, "Event: View."),
		strings.HasPrefix(name, "Render File:"):
		return OpViewRender
	default:
		return OpDefault
	}
}

// AddEventSpans turns the finished timers into finished children of parent.
func AddEventSpans(parent Span, timers *Timers) int {
	if parent == nil || timers == nil {
		return 0
	}

	entries := timers.Entries()
	for _, entry := range entries {
		span := parent.StartChild(SpanOptions{
			Op:          TimerOp(entry.Name),
			Description: entry.Name,
			Start:       timers.start.Add(entry.Start),
		})
		span.FinishAt(timers.start.Add(entry.End))
	}
	return len(entries)
}
