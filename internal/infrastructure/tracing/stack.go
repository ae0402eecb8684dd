package tracing

// SpanStack keeps nested spans strictly ordered on a hub.
//
// Every Push must be matched by exactly one Pop before the owning scope ends,
// otherwise the hub keeps a dangling ambient span. Not safe for concurrent use.
type SpanStack struct {
	hub     *Hub
	parents []Span
	active  []Span
}

// NewSpanStack creates an empty stack over hub.
func NewSpanStack(hub *Hub) *SpanStack {
	return &SpanStack{hub: hub}
}

// Push records the current ambient span and makes span ambient.
func (s *SpanStack) Push(span Span) {
	s.parents = append(s.parents, s.hub.Span())
	s.hub.SetSpan(span)
	s.active = append(s.active, span)
}

// Pop restores the span that was ambient before the last Push and returns the
// span pushed there. It returns nil on an empty stack.
func (s *SpanStack) Pop() Span {
	n := len(s.active)
	if n == 0 {
		return nil
	}

	parent := s.parents[n-1]
	span := s.active[n-1]
	s.parents[n-1] = nil
	s.active[n-1] = nil
	s.parents = s.parents[:n-1]
	s.active = s.active[:n-1]

	s.hub.SetSpan(parent)
	return span
}

// Len returns the number of pushed spans.
func (s *SpanStack) Len() int {
	return len(s.active)
}

// Top returns the most recently pushed span, or nil.
func (s *SpanStack) Top() Span {
	if len(s.active) == 0 {
		return nil
	}
	return s.active[len(s.active)-1]
}
