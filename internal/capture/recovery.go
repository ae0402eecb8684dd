package capture

import (
	"context"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Recovery recovers panics into RuntimeErrors and answers 500. Errors
// attached to the gin context are logged as exceptions once the handlers
// return.
func Recovery(l *ErrorLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if r == http.ErrAbortHandler {
					panic(r)
				}
				rerr := NewRuntimeError(r, debug.Stack())
				l.LogError(c.Request.Context(), rerr, c.Request, true)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()

		c.Next()

		for _, ginErr := range c.Errors {
			l.LogException(c.Request.Context(), ginErr.Err, c.Request, false)
		}
	}
}

// UnaryRecovery is Recovery for unary gRPC calls: a panic becomes a
// RuntimeError and the call fails with codes.Internal.
func UnaryRecovery(l *ErrorLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				rerr := NewRuntimeError(r, debug.Stack())
				l.LogError(ctx, rerr, nil, true)
				resp, err = nil, status.Errorf(codes.Internal, "%s: internal error", info.FullMethod)
			}
		}()
		return handler(ctx, req)
	}
}
