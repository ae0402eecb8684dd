package tracing

import (
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// Transport records an http.client span for every request sent while a
// traced request is in flight.
//
// The span is pushed as the ambient span of the request's Hub for the
// duration of the call, so queries logged meanwhile nest under it. That
// requires calls to be made from the request goroutine. Clients used from
// other goroutines of the same request must set Detached.
type Transport struct {
	Base http.RoundTripper
	// Detached parents the span on the ambient span without making it
	// ambient, leaving the Hub untouched.
	Detached bool
}

// NewTransport wraps base. A nil base uses http.DefaultTransport.
func NewTransport(base http.RoundTripper) *Transport {
	return &Transport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	hub := HubFromContext(req.Context())
	if hub == nil {
		return base.RoundTrip(req)
	}
	parent := hub.Span()
	if parent == nil {
		return base.RoundTrip(req)
	}

	u := req.URL
	fullURL := u.Scheme + "://" + u.Host + u.Path
	span := parent.StartChild(SpanOptions{
		Op:          OpHTTPClient,
		Description: req.Method + " " + fullURL,
		Data: map[string]any{
			"url":                    fullURL,
			"http.query":             u.RawQuery,
			"http.fragment":          u.Fragment,
			"http.request.method":    req.Method,
			"http.request.body.size": req.ContentLength,
		},
	})

	out := req.Clone(req.Context())
	for name, values := range span.TraceHeaders() {
		out.Header[name] = values
	}

	if t.Detached {
		resp, err := base.RoundTrip(out)
		finishClientSpan(span, resp, err)
		return resp, err
	}

	stack := NewSpanStack(hub)
	stack.Push(span)
	resp, err := base.RoundTrip(out)
	if popped := stack.Pop(); popped != nil {
		finishClientSpan(popped, resp, err)
	}
	return resp, err
}

func finishClientSpan(span Span, resp *http.Response, err error) {
	switch {
	case err != nil:
		span.SetStatus(StatusInternalError)
		span.SetData("error", err.Error())
	case resp != nil:
		span.SetHTTPStatus(resp.StatusCode)
		span.SetData("http.response.status_code", resp.StatusCode)
		span.SetData("http.response.body.size", resp.ContentLength)
	}
	span.Finish()
}

// InstrumentResty routes a resty client through Transport.
// Requests must carry the incoming request context (resty's SetContext).
func InstrumentResty(client *resty.Client) *resty.Client {
	return client.SetTransport(NewTransport(client.GetClient().Transport))
}

// InstrumentRetryable routes a retryablehttp client through Transport.
// Each attempt gets its own span.
func InstrumentRetryable(client *retryablehttp.Client) *retryablehttp.Client {
	client.HTTPClient.Transport = NewTransport(client.HTTPClient.Transport)
	return client
}
