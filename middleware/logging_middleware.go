package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pipemsg/message"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) string {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("endpoint", req.Endpoint),
				zap.String("conn", req.ConnID),
				zap.Bool("success", req.Success),
				zap.Int("request_len", len(req.Text)),
				zap.Int("response_len", len(resp)),
				zap.Duration("duration", time.Since(start)),
			}
			if req.Err != nil {
				logger.Warn("dispatched failed read", append(fields, zap.Error(req.Err))...)
				return resp
			}
			logger.Debug("dispatched", fields...)
			return resp
		}
	}
}
