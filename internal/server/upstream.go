package server

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/LordSimal/gin-sentry/internal/infrastructure/config"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

// upstreamChecker probes HTTP dependencies. Checks run sequentially on the
// request goroutine so each one becomes an http.client span of the request.
type upstreamChecker struct {
	client *resty.Client
	urls   []string
}

func newUpstreamChecker(cfg config.UpstreamConfig, logger *zap.Logger) *upstreamChecker {
	var client *resty.Client
	if cfg.Retries > 0 {
		retry := retryablehttp.NewClient()
		retry.RetryMax = cfg.Retries
		retry.RetryWaitMin = 50 * time.Millisecond
		retry.RetryWaitMax = 500 * time.Millisecond
		retry.Logger = retryLogger{logger.Sugar()}
		tracing.InstrumentRetryable(retry)
		client = resty.NewWithClient(retry.StandardClient())
	} else {
		client = tracing.InstrumentResty(resty.New())
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &upstreamChecker{client: client, urls: cfg.URLs}
}

func (u *upstreamChecker) check(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string, len(u.urls))
	healthy := true
	for _, url := range u.urls {
		resp, err := u.client.R().SetContext(ctx).Get(url)
		switch {
		case err != nil:
			results[url] = "unreachable"
			healthy = false
		case resp.IsError():
			results[url] = fmt.Sprintf("status %d", resp.StatusCode())
			healthy = false
		default:
			results[url] = "ok"
		}
	}
	return results, healthy
}

// retryLogger adapts zap to retryablehttp.LeveledLogger.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
