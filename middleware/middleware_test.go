package middleware

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pipemsg/message"
)

// 模拟一个简单的 handler：直接返回成功响应
func echoHandler(ctx context.Context, req *message.Request) string {
	return "echo:" + req.Text
}

// 模拟一个慢 handler：睡 200ms
func slowHandler(ctx context.Context, req *message.Request) string {
	time.Sleep(200 * time.Millisecond)
	return "late"
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := LoggingMiddleware(zap.New(core))(echoHandler)

	resp := handler(context.Background(), &message.Request{Text: "ping", Success: true, ConnID: "c1"})
	assert.Equal(t, "echo:ping", resp)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	assert.Equal(t, "c1", entry.ContextMap()["conn"])

	handler(context.Background(), message.NewRequest("", errors.New("boom")))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
}

func TestTimeoutPass(t *testing.T) {
	// 超时 500ms，handler 很快，应该正常返回
	handler := TimeoutMiddleware(500*time.Millisecond, "timeout")(echoHandler)

	resp := handler(context.Background(), &message.Request{Text: "ping", Success: true})
	assert.Equal(t, "echo:ping", resp)
}

func TestTimeoutExceeded(t *testing.T) {
	// 超时 50ms，handler 需要 200ms，应该超时
	handler := TimeoutMiddleware(50*time.Millisecond, "timeout")(slowHandler)

	start := time.Now()
	resp := handler(context.Background(), &message.Request{Text: "ping", Success: true})
	assert.Equal(t, "timeout", resp)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2 → 前 2 个立刻放行，第 3 个被拒
	handler := RateLimitMiddleware(1, 2, "busy")(echoHandler)
	req := &message.Request{Text: "ping", Success: true}

	for i := 0; i < 2; i++ {
		assert.Equal(t, "echo:ping", handler(context.Background(), req), "request %d should pass", i)
	}

	assert.Equal(t, "busy", handler(context.Background(), req))
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoverMiddleware(zap.New(core))(func(ctx context.Context, req *message.Request) string {
		panic("dispatcher exploded")
	})

	var resp string
	require.NotPanics(t, func() {
		resp = handler(context.Background(), &message.Request{Text: "ping", Success: true})
	})
	assert.Equal(t, "", resp)
	require.Equal(t, 1, logs.Len())
	assert.True(t, strings.Contains(logs.All()[0].ContextMap()["panic"].(string), "exploded"))
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) string {
				order = append(order, name+".before")
				resp := next(ctx, req)
				order = append(order, name+".after")
				return resp
			}
		}
	}

	handler := Chain(mark("A"), mark("B"), TimeoutMiddleware(500*time.Millisecond, "timeout"))(echoHandler)
	resp := handler(context.Background(), &message.Request{Text: "ping", Success: true})

	assert.Equal(t, "echo:ping", resp)
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}
