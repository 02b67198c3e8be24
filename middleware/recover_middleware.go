package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pipemsg/message"
)

// RecoverMiddleware keeps a panicking dispatcher from taking the listener down.
// The connection gets an empty response.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp string) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("dispatcher panicked",
						zap.String("endpoint", req.Endpoint),
						zap.String("conn", req.ConnID),
						zap.String("panic", fmt.Sprint(r)),
						zap.Stack("stack"),
					)
					resp = ""
				}
			}()
			return next(ctx, req)
		}
	}
}
