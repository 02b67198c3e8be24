package middleware

import (
	"context"
	"time"

	"pipemsg/message"
)

// TimeoutMiddleware bounds how long the dispatcher may run. When it overruns,
// fallback is sent instead and the dispatcher's eventual result is discarded.
// It does not bound frame reads or writes.
func TimeoutMiddleware(timeout time.Duration, fallback string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) string {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan string, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return fallback
			}
		}
	}
}
