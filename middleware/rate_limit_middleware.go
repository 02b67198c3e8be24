package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"pipemsg/message"
)

// RateLimitMiddleware 创建一个基于令牌桶算法的限流中间件
// Requests over the limit are answered with rejected without reaching the dispatcher.
func RateLimitMiddleware(r float64, burst int, rejected string) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) string {
			if !limiter.Allow() {
				return rejected
			}
			return next(ctx, req)
		}
	}
}
