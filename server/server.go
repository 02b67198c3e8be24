// Package server implements the listener side of a pipe endpoint.
//
// A Listener runs one accept loop on its own goroutine and handles every accepted
// connection on a goroutine of its own, so a slow client never holds up the next accept.
//
//	Accept conn → go handleConn
//	  → protocol.ReadMessage → middleware chain → Dispatcher → protocol.WriteMessage
//	  → CloseWrite → Close
//
// Accept failures other than cancellation count against an error budget. A successful
// accept resets the count; exceeding the budget stops the loop for good and leaves the
// listener Faulted. Nothing is returned to any caller in that case: poll State, Active
// or Done to notice it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pipemsg/logging"
	"pipemsg/message"
	"pipemsg/metrics"
	"pipemsg/middleware"
	"pipemsg/protocol"
	"pipemsg/registry"
	"pipemsg/transport"
)

// Dispatcher turns a received message into the response text.
//
// It is called once per accepted connection. When the request frame could not be
// read, success is false, err says why and message holds err's text.
type Dispatcher func(message string, success bool, err error) string

// Acceptor is the accept primitive the listener drives. Accept must return promptly
// with ctx.Err() once ctx is cancelled.
type Acceptor interface {
	Accept(ctx context.Context) (net.Conn, error)
	Close() error
}

// Listener serves one endpoint name.
type Listener struct {
	name     string
	dispatch Dispatcher
	opts     options
	handler  middleware.HandlerFunc
	acceptor Acceptor
	logger   *zap.Logger
	metrics  *metrics.Listener

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup // in-flight connections

	stateMu  sync.Mutex
	state    State
	inflight int
	lastErr  error

	failures atomic.Int64 // mirrors the loop's counter for observers
}

// NewListener starts serving name and returns immediately; the accept loop runs in
// the background until Stop is called or the error budget is exhausted.
// A nil dispatch answers every request with empty text.
func NewListener(name string, dispatch Dispatcher, opts ...Option) *Listener {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	l := &Listener{
		name:     name,
		dispatch: dispatch,
		opts:     o,
		acceptor: o.acceptor,
		logger:   logging.Named(o.logger, "server").With(zap.String("endpoint", name)),
		done:     make(chan struct{}),
		state:    StateStarting,
	}
	if o.registerer != nil {
		l.metrics = metrics.NewListener(o.registerer, name)
	}
	if l.acceptor == nil {
		l.acceptor = transport.NewAcceptor(name, o.listen)
	}

	// Recover sits outermost so a panicking middleware is contained too.
	mws := append([]middleware.Middleware{middleware.RecoverMiddleware(l.logger)}, o.middlewares...)
	l.handler = middleware.Chain(mws...)(l.dispatchHandler)

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.metrics.SetState(int(StateStarting))
	go l.acceptLoop()
	return l
}

// Name returns the endpoint name being served.
func (l *Listener) Name() string {
	return l.name
}

func (l *Listener) State() State {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.state
}

// Active reports whether the listener may still accept connections.
func (l *Listener) Active() bool {
	return !l.State().Terminal()
}

// Done is closed when the accept loop has exited, whether stopped or faulted.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err returns the accept error that faulted the listener, or nil.
func (l *Listener) Err() error {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.lastErr
}

// ConsecutiveFailures returns the current accept failure count.
func (l *Listener) ConsecutiveFailures() int {
	return int(l.failures.Load())
}

// Stop asks the accept loop to exit at its next accept boundary. Connections already
// being handled run to completion. Stop is idempotent and safe for concurrent use.
func (l *Listener) Stop() {
	l.stopOnce.Do(l.cancel)
}

// Shutdown stops the listener and waits up to timeout for in-flight connections.
func (l *Listener) Shutdown(timeout time.Duration) error {
	l.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// The loop must be gone before wg.Wait: it is the only caller of wg.Add.
	select {
	case <-l.done:
	case <-timer.C:
		return fmt.Errorf("server: timeout waiting for accept loop to exit")
	}

	drained := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-timer.C:
		return fmt.Errorf("server: timeout waiting for ongoing connections to finish")
	}
}

func (l *Listener) acceptLoop() {
	defer close(l.done)
	defer l.acceptor.Close()

	l.setState(StateAccepting)
	l.announce()
	defer l.withdraw()

	failures := 0
	for {
		conn, err := l.acceptor.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				l.finish(StateStopped, nil)
				l.logger.Info("listener stopped")
				return
			}

			failures++
			l.failures.Store(int64(failures))
			l.metrics.AcceptFailed()
			l.logger.Warn("accept failed",
				zap.Int("consecutive_failures", failures),
				zap.Int("budget", l.opts.maxFailures),
				zap.Error(err),
			)
			if failures > l.opts.maxFailures {
				l.finish(StateFaulted, err)
				l.logger.Error("accept error budget exhausted, listener faulted", zap.Error(err))
				return
			}
			if !l.pause() {
				l.finish(StateStopped, nil)
				return
			}
			continue
		}

		failures = 0
		l.failures.Store(0)
		l.metrics.Accepted()
		l.beginHandling()
		l.wg.Add(1)
		go l.handleConn(conn)
	}
}

// pause waits out the accept backoff; false means Stop was called meanwhile.
func (l *Listener) pause() bool {
	if l.opts.acceptBackoff <= 0 {
		return true
	}
	t := time.NewTimer(l.opts.acceptBackoff)
	defer t.Stop()
	select {
	case <-l.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// handleConn serves exactly one request/response exchange, then disconnects.
func (l *Listener) handleConn(conn net.Conn) {
	connID := uuid.NewString()
	log := l.logger.With(zap.String("conn", connID))
	result := metrics.ResultOK

	defer l.wg.Done()
	defer func() {
		l.endHandling()
		l.metrics.Handled(result)
	}()
	defer func() {
		if err := transport.CloseWrite(conn); err != nil {
			log.Debug("half-close failed", zap.Error(err))
		}
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug("close failed", zap.Error(err))
		}
	}()

	text, err := protocol.ReadMessage(conn, l.opts.codec, l.opts.limits)
	req := message.NewRequest(text, err)
	req.Endpoint = l.name
	req.ConnID = connID
	if err != nil {
		result = metrics.ResultReadError
		log.Warn("read request failed", zap.Error(err))
	}

	// Stop does not interrupt a connection that is already being handled.
	start := time.Now()
	resp := l.handler(context.WithoutCancel(l.ctx), req)
	l.metrics.ObserveDispatch(time.Since(start))

	if err := protocol.WriteMessage(conn, l.opts.codec, resp); err != nil {
		result = metrics.ResultWriteError
		log.Warn("write response failed", zap.Error(err))
	}
}

func (l *Listener) dispatchHandler(_ context.Context, req *message.Request) string {
	if l.dispatch == nil {
		return ""
	}
	return l.dispatch(req.Text, req.Success, req.Err)
}

func (l *Listener) announce() {
	if l.opts.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(l.ctx, 5*time.Second)
	defer cancel()
	ep := registry.Endpoint{Name: l.name, Weight: l.opts.weight}
	if err := l.opts.registry.Register(ctx, l.opts.service, ep, l.opts.registryTTL); err != nil {
		l.logger.Warn("register endpoint failed", zap.String("service", l.opts.service), zap.Error(err))
	}
}

func (l *Listener) withdraw() {
	if l.opts.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.opts.registry.Deregister(ctx, l.opts.service, l.name); err != nil {
		l.logger.Warn("deregister endpoint failed", zap.String("service", l.opts.service), zap.Error(err))
	}
}
