package tracing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

func tracedContext(t *testing.T) (context.Context, *tracing.Hub, tracing.Span, func() []string) {
	t.Helper()
	backend := newBackend(t, clockz.RealClock)
	tx := backend.StartTransaction(context.Background(), tracing.TransactionOptions{Name: "GET /feed", Op: tracing.OpHTTPServer})
	hub := tracing.NewHub(backend)
	hub.SetSpan(tx)

	descriptions := func() []string {
		var out []string
		for _, s := range backend.SpansByOp(tracing.OpHTTPClient) {
			out = append(out, s.Description)
		}
		return out
	}
	return tracing.WithHub(context.Background(), hub), hub, tx, descriptions
}

func TestTransportRecordsSpan(t *testing.T) {
	var traceHeader string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceHeader = r.Header.Get(tracing.SentryTraceHeader)
		w.WriteHeader(http.StatusTeapot)
	}))
	defer upstream.Close()

	ctx, hub, tx, spans := tracedContext(t)
	client := &http.Client{Transport: tracing.NewTransport(nil)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstream.URL+"/items?page=2", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"GET " + upstream.URL + "/items"}, spans())
	assert.NotEmpty(t, traceHeader)
	assert.Empty(t, req.Header.Get(tracing.SentryTraceHeader))
	assert.Same(t, tx, hub.Span())
}

func TestTransportSpanIsAmbientDuringCall(t *testing.T) {
	ctx, hub, tx, _ := tracedContext(t)

	var during tracing.Span
	client := &http.Client{Transport: tracing.NewTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		during = hub.Span()
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	}))}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://upstream.local/items", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.NotNil(t, during)
	assert.NotSame(t, tx, during)
	assert.Same(t, tx, hub.Span())
}

func TestDetachedTransportLeavesHubAlone(t *testing.T) {
	ctx, hub, tx, spans := tracedContext(t)

	var (
		mu     sync.Mutex
		during []tracing.Span
	)
	transport := &tracing.Transport{
		Detached: true,
		Base: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			mu.Lock()
			during = append(during, hub.Span())
			mu.Unlock()
			assert.NotEmpty(t, r.Header.Get(tracing.SentryTraceHeader))
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
		}),
	}
	client := &http.Client{Transport: transport}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://upstream.local/items", nil)
			if !assert.NoError(t, err) {
				return
			}
			resp, err := client.Do(req)
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	require.Len(t, during, 4)
	for _, span := range during {
		assert.Same(t, tx, span)
	}
	assert.Same(t, tx, hub.Span())
	assert.Len(t, spans(), 4)
}

func TestTransportWithoutTrace(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(tracing.SentryTraceHeader))
	}))
	defer upstream.Close()

	client := &http.Client{Transport: tracing.NewTransport(http.DefaultTransport)}
	resp, err := client.Get(upstream.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestTransportRecordsError(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	ctx, hub, tx, spans := tracedContext(t)
	client := &http.Client{Transport: tracing.NewTransport(nil)}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	require.Error(t, err)
	assert.Len(t, spans(), 1)
	assert.Same(t, tx, hub.Span())
}

func TestInstrumentResty(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	ctx, _, _, spans := tracedContext(t)
	client := tracing.InstrumentResty(resty.New())

	resp, err := client.R().SetContext(ctx).Get(upstream.URL + "/resty")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, []string{"GET " + upstream.URL + "/resty"}, spans())
}

func TestInstrumentRetryable(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	ctx, _, _, spans := tracedContext(t)
	client := retryablehttp.NewClient()
	client.Logger = nil
	tracing.InstrumentRetryable(client)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, upstream.URL+"/retry", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"GET " + upstream.URL + "/retry"}, spans())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
