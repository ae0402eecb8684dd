package tracing

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestStartKey is the gin context key an earlier middleware may set to the
// time.Time the request was accepted.
const RequestStartKey = "tracing.request_start"

// HTTPMiddleware opens one transaction and one handling span per request.
func HTTPMiddleware(backend Backend, opts ...Option) gin.HandlerFunc {
	o := newOptions(opts)

	return func(c *gin.Context) {
		method := c.Request.Method
		if backend == nil || method == http.MethodOptions || method == http.MethodHead {
			c.Next()
			return
		}

		start := o.requestStart(c)
		hub := NewHub(backend)
		hub.SetTimers(NewTimers(o.clock, start))
		ctx := WithHub(backend.NewScope(c.Request.Context()), hub)

		tx := backend.StartTransaction(ctx, TransactionOptions{
			Name:    method + " " + c.Request.URL.Path,
			Op:      OpHTTPServer,
			Source:  SourceRoute,
			Start:   start,
			Headers: ContinuationHeaders(c.Request.Header),
		})
		tx.SetData("http.request.method", method)
		tx.SetData("url.path", c.Request.URL.Path)
		hub.SetSpan(tx)

		span := tx.StartChild(SpanOptions{Op: OpMiddlewareHandle})
		hub.SetSpan(span)

		c.Request = c.Request.WithContext(ctx)
		o.runHooks(ctx, hub)

		completed := false
		defer func() {
			code := c.Writer.Status()
			if !completed {
				code = http.StatusInternalServerError
			}
			finishRequest(hub, tx, span, code)
			o.logger.Debug("request traced",
				zap.String("method", method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", code),
			)
		}()

		c.Next()
		completed = true
	}
}

func finishRequest(hub *Hub, tx, span Span, code int) {
	if code == http.StatusNotFound {
		tx.SetSampled(false)
	}

	AddEventSpans(span, hub.Timers())
	span.SetHTTPStatus(code)
	span.Finish()

	hub.SetSpan(tx)
	tx.SetHTTPStatus(code)
	tx.Finish()
}

func (o *options) requestStart(c *gin.Context) time.Time {
	if v, ok := c.Get(RequestStartKey); ok {
		if t, ok := v.(time.Time); ok && !t.IsZero() {
			return t
		}
	}
	now := o.clock.Now()
	if !o.trustedStart {
		return now
	}
	if t, ok := ParseRequestStart(c.GetHeader(RequestStartHeader)); ok && !t.After(now) {
		return t
	}
	return now
}

// GRPCUnaryInterceptor opens one transaction per unary call.
func GRPCUnaryInterceptor(backend Backend, opts ...Option) grpc.UnaryServerInterceptor {
	o := newOptions(opts)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if backend == nil {
			return handler(ctx, req)
		}

		headers := make(http.Header)
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			for _, name := range continuationHeaders {
				if vals := md.Get(name); len(vals) > 0 {
					headers.Set(name, vals[0])
				}
			}
		}

		start := o.clock.Now()
		hub := NewHub(backend)
		hub.SetTimers(NewTimers(o.clock, start))
		ctx = WithHub(backend.NewScope(ctx), hub)

		tx := backend.StartTransaction(ctx, TransactionOptions{
			Name:    info.FullMethod,
			Op:      OpGRPCServer,
			Source:  SourceCustom,
			Start:   start,
			Headers: headers,
		})
		tx.SetData("rpc.system", "grpc")
		tx.SetData("rpc.method", info.FullMethod)
		hub.SetSpan(tx)
		o.runHooks(ctx, hub)

		var (
			resp      interface{}
			err       error
			completed bool
		)
		defer func() {
			code := codes.Unknown
			if completed {
				code = status.Code(err)
			}
			AddEventSpans(tx, hub.Timers())
			tx.SetData("rpc.grpc.status_code", int(code))
			tx.SetStatus(GRPCStatus(code))
			tx.Finish()
		}()

		resp, err = handler(ctx, req)
		completed = true
		return resp, err
	}
}

// GRPCStatus maps a gRPC code to a span status.
func GRPCStatus(code codes.Code) Status {
	switch code {
	case codes.OK:
		return StatusOK
	case codes.Canceled:
		return StatusCancelled
	case codes.InvalidArgument:
		return StatusInvalidArgument
	case codes.NotFound:
		return StatusNotFound
	case codes.PermissionDenied:
		return StatusPermissionDenied
	case codes.Unauthenticated:
		return StatusUnauthenticated
	case codes.Aborted:
		return StatusAborted
	case codes.Unavailable:
		return StatusUnavailable
	case codes.Unknown:
		return StatusUnknown
	default:
		return StatusInternalError
	}
}
