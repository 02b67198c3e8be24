// Package middleware wraps dispatch logic with cross-cutting behavior.
//
// Chain(A, B, C)(handler) builds A(B(C(handler))), so A runs first on the way in
// and last on the way out:
//
//	A.before → B.before → C.before → handler → C.after → B.after → A.after
package middleware

import (
	"context"

	"pipemsg/message"
)

// HandlerFunc turns one request into the response text written back to the client.
type HandlerFunc func(ctx context.Context, req *message.Request) string

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
