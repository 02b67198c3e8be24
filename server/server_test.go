package server

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pipemsg/codec"
	"pipemsg/middleware"
	"pipemsg/protocol"
	"pipemsg/registry"
	"pipemsg/transport"
)

// roundTrip dials the endpoint, sends msg and reads the single response frame.
func roundTrip(t *testing.T, dir, name, msg string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := transport.Dial(ctx, name, transport.DialConfig{Dir: dir})
	if err != nil {
		return "", err
	}
	defer conn.Close()

	c := &codec.UTF16Codec{}
	if err := protocol.WriteMessage(conn, c, msg); err != nil {
		return "", err
	}
	return protocol.ReadMessage(conn, c, protocol.DefaultLimits())
}

func waitDone(t *testing.T, l *Listener) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("listener did not exit, state=%s", l.State())
	}
}

func pingPong(message string, success bool, err error) string {
	if success && message == "ping" {
		return "pong"
	}
	if !success {
		return "error: " + message
	}
	return "unknown: " + message
}

func TestPingPong(t *testing.T) {
	dir := t.TempDir()
	l := NewListener("pingpong", pingPong, WithSocketDir(dir), WithLogger(zap.NewNop()))
	defer l.Stop()

	resp, err := roundTrip(t, dir, "pingpong", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", resp)

	resp, err = roundTrip(t, dir, "pingpong", "héllo 👋")
	require.NoError(t, err)
	assert.Equal(t, "unknown: héllo 👋", resp)
}

func TestNilDispatcherAnswersEmpty(t *testing.T) {
	dir := t.TempDir()
	l := NewListener("nil", nil, WithSocketDir(dir), WithLogger(zap.NewNop()))
	defer l.Stop()

	resp, err := roundTrip(t, dir, "nil", "anything")
	require.NoError(t, err)
	assert.Equal(t, "", resp)
}

func TestReadFailureReachesDispatcher(t *testing.T) {
	dir := t.TempDir()

	type call struct {
		message string
		success bool
		err     error
	}
	calls := make(chan call, 1)
	l := NewListener("truncated", func(message string, success bool, err error) string {
		calls <- call{message, success, err}
		return "saw failure"
	}, WithSocketDir(dir), WithLogger(zap.NewNop()))
	defer l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "truncated", transport.DialConfig{Dir: dir})
	require.NoError(t, err)
	defer conn.Close()

	// declare 100 bytes, send 10, then stop writing
	prefix := make([]byte, protocol.PrefixSize)
	binary.LittleEndian.PutUint32(prefix, 100)
	_, err = conn.Write(append(prefix, make([]byte, 10)...))
	require.NoError(t, err)
	require.NoError(t, transport.CloseWrite(conn))

	select {
	case c := <-calls:
		assert.False(t, c.success)
		assert.ErrorIs(t, c.err, protocol.ErrTruncatedFrame)
		assert.Equal(t, c.err.Error(), c.message)
	case <-time.After(3 * time.Second):
		t.Fatal("dispatcher not called")
	}

	resp, err := protocol.ReadMessage(conn, &codec.UTF16Codec{}, protocol.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "saw failure", resp)
}

func TestPeerDisconnectMidReadKeepsServing(t *testing.T) {
	dir := t.TempDir()
	l := NewListener("midread", pingPong, WithSocketDir(dir), WithLogger(zap.NewNop()))
	defer l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "midread", transport.DialConfig{Dir: dir})
	require.NoError(t, err)
	prefix := make([]byte, protocol.PrefixSize)
	binary.LittleEndian.PutUint32(prefix, 64)
	_, err = conn.Write(append(prefix, 'p', 0))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	time.Sleep(50 * time.Millisecond)
	assert.True(t, l.Active())
	assert.Equal(t, 0, l.ConsecutiveFailures())

	resp, err := roundTrip(t, dir, "midread", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", resp)
}

func TestPanickingDispatcherIsContained(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	l := NewListener("panics", func(message string, success bool, err error) string {
		if calls.Add(1) == 1 {
			panic("first call blows up")
		}
		return "recovered"
	}, WithSocketDir(dir), WithLogger(zap.NewNop()))
	defer l.Stop()

	resp, err := roundTrip(t, dir, "panics", "one")
	require.NoError(t, err)
	assert.Equal(t, "", resp)

	resp, err = roundTrip(t, dir, "panics", "two")
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp)
}

func TestMiddlewareWrapsDispatcher(t *testing.T) {
	dir := t.TempDir()
	l := NewListener("mw", pingPong,
		WithSocketDir(dir),
		WithLogger(zap.NewNop()),
		WithMiddleware(middleware.RateLimitMiddleware(0.001, 1, "busy")),
	)
	defer l.Stop()

	resp, err := roundTrip(t, dir, "mw", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", resp)

	resp, err = roundTrip(t, dir, "mw", "ping")
	require.NoError(t, err)
	assert.Equal(t, "busy", resp)
}

// scriptedAcceptor fails or succeeds according to script, then blocks until cancelled.
type scriptedAcceptor struct {
	mu       sync.Mutex
	script   []bool // true = succeed
	attempts int
	closed   atomic.Bool
}

var errSimulated = errors.New("simulated accept failure")

func (a *scriptedAcceptor) Accept(ctx context.Context) (net.Conn, error) {
	a.mu.Lock()
	if a.attempts < len(a.script) {
		ok := a.script[a.attempts]
		a.attempts++
		a.mu.Unlock()
		if !ok {
			return nil, errSimulated
		}
		server, client := net.Pipe()
		client.Close()
		return server, nil
	}
	a.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (a *scriptedAcceptor) Close() error {
	a.closed.Store(true)
	return nil
}

func (a *scriptedAcceptor) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestErrorBudgetFaultsListener(t *testing.T) {
	acc := &scriptedAcceptor{script: repeat(false, 100)}
	l := NewListener("budget", pingPong, WithAcceptor(acc), WithLogger(zap.NewNop()))

	waitDone(t, l)
	assert.Equal(t, StateFaulted, l.State())
	assert.False(t, l.Active())
	assert.ErrorIs(t, l.Err(), errSimulated)
	// five failures are tolerated; the sixth exceeds the budget
	assert.Equal(t, DefaultMaxFailures+1, acc.Attempts())
	assert.True(t, acc.closed.Load())

	l.Stop()
	assert.Equal(t, StateFaulted, l.State(), "stop after fault keeps the fault")
}

func TestFiveFailuresAreTolerated(t *testing.T) {
	acc := &scriptedAcceptor{script: append(repeat(false, DefaultMaxFailures), true)}
	l := NewListener("tolerated", pingPong, WithAcceptor(acc), WithLogger(zap.NewNop()))
	defer l.Stop()

	require.Eventually(t, func() bool { return acc.Attempts() == DefaultMaxFailures+1 }, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return l.ConsecutiveFailures() == 0 }, 3*time.Second, 5*time.Millisecond)
	assert.True(t, l.Active())
}

func TestInterleavedSuccessResetsBudget(t *testing.T) {
	var script []bool
	for i := 0; i < 10; i++ {
		script = append(script, repeat(false, DefaultMaxFailures)...)
		script = append(script, true)
	}
	acc := &scriptedAcceptor{script: script}
	l := NewListener("interleaved", pingPong, WithAcceptor(acc), WithLogger(zap.NewNop()))

	require.Eventually(t, func() bool { return acc.Attempts() == len(script) }, 3*time.Second, 5*time.Millisecond)
	assert.True(t, l.Active())
	assert.NotEqual(t, StateFaulted, l.State())

	l.Stop()
	waitDone(t, l)
	assert.Equal(t, StateStopped, l.State())
	assert.NoError(t, l.Err())
}

func TestCustomBudget(t *testing.T) {
	acc := &scriptedAcceptor{script: repeat(false, 100)}
	l := NewListener("custom", nil, WithAcceptor(acc), WithMaxFailures(1), WithLogger(zap.NewNop()))

	waitDone(t, l)
	assert.Equal(t, StateFaulted, l.State())
	assert.Equal(t, 2, acc.Attempts())
}

func TestAcceptBackoffObservesStop(t *testing.T) {
	acc := &scriptedAcceptor{script: repeat(false, 100)}
	l := NewListener("backoff", nil, WithAcceptor(acc), WithAcceptBackoff(time.Hour), WithLogger(zap.NewNop()))

	require.Eventually(t, func() bool { return acc.Attempts() == 1 }, 3*time.Second, 5*time.Millisecond)
	l.Stop()
	waitDone(t, l)
	assert.Equal(t, StateStopped, l.State())
}

func TestStopIsIdempotentAndConcurrent(t *testing.T) {
	dir := t.TempDir()
	l := NewListener("stop", pingPong, WithSocketDir(dir), WithLogger(zap.NewNop()))

	_, err := roundTrip(t, dir, "stop", "ping")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Stop()
		}()
	}
	wg.Wait()
	l.Stop()

	waitDone(t, l)
	assert.Equal(t, StateStopped, l.State())
	assert.NoError(t, l.Err())
	assert.Equal(t, 0, l.ConsecutiveFailures(), "cancellation is not an accept failure")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = transport.Dial(ctx, "stop", transport.DialConfig{Dir: dir})
	assert.Error(t, err, "no new connections after stop")
}

func TestHandlingStateAndGracefulShutdown(t *testing.T) {
	dir := t.TempDir()
	release := make(chan struct{})
	entered := make(chan struct{})
	l := NewListener("slow", func(message string, success bool, err error) string {
		close(entered)
		<-release
		return "finally"
	}, WithSocketDir(dir), WithLogger(zap.NewNop()))

	respc := make(chan string, 1)
	go func() {
		resp, _ := roundTrip(t, dir, "slow", "wait for me")
		respc <- resp
	}()

	<-entered
	assert.Equal(t, StateHandling, l.State())

	shutdown := make(chan error, 1)
	go func() { shutdown <- l.Shutdown(3 * time.Second) }()

	waitDone(t, l)
	assert.Equal(t, StateStopped, l.State())

	close(release)
	require.NoError(t, <-shutdown)
	assert.Equal(t, "finally", <-respc)
}

func TestShutdownTimeout(t *testing.T) {
	dir := t.TempDir()
	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{})
	l := NewListener("stuck", func(message string, success bool, err error) string {
		close(entered)
		<-release
		return ""
	}, WithSocketDir(dir), WithLogger(zap.NewNop()))

	go roundTrip(t, dir, "stuck", "x")
	<-entered

	err := l.Shutdown(50 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "timeout"))
}

func TestRegistryAnnouncement(t *testing.T) {
	dir := t.TempDir()
	reg := registry.NewMemoryRegistry()
	l := NewListener("announced", pingPong,
		WithSocketDir(dir),
		WithLogger(zap.NewNop()),
		WithRegistry(reg, "echo", 3),
	)

	require.Eventually(t, func() bool {
		eps, _ := reg.Discover(context.Background(), "echo")
		return len(eps) == 1
	}, 3*time.Second, 5*time.Millisecond)
	eps, _ := reg.Discover(context.Background(), "echo")
	assert.Equal(t, registry.Endpoint{Name: "announced", Weight: 3}, eps[0])

	l.Stop()
	waitDone(t, l)
	eps, _ = reg.Discover(context.Background(), "echo")
	assert.Empty(t, eps)
}

func TestMetricsRegistered(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	l := NewListener("metered", pingPong, WithSocketDir(dir), WithMetrics(reg), WithLogger(zap.NewNop()))
	defer l.Stop()

	_, err := roundTrip(t, dir, "metered", "ping")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		families, err := reg.Gather()
		if err != nil {
			return false
		}
		for _, f := range families {
			if f.GetName() == "pipemsg_listener_connections_handled_total" {
				return f.GetMetric()[0].GetCounter().GetValue() == 1
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "faulted", StateFaulted.String())
	assert.True(t, StateStopped.Terminal())
	assert.False(t, StateHandling.Terminal())
}
