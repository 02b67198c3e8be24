// Package client performs request/response exchanges against a pipe endpoint.
//
// Each exchange uses a fresh connection:
//
//	Dial (bounded by the connect timeout) → write request frame → wait for the
//	server to drain it → read response frame → Close
//
// Exchange reports failure only as an absent result: the caller learns that the
// exchange did not complete, not which step failed. TryExchange runs the same steps
// and returns the error instead. Nothing is retried.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pipemsg/loadbalance"
	"pipemsg/logging"
	"pipemsg/protocol"
	"pipemsg/registry"
	"pipemsg/transport"
)

var (
	ErrClosed     = errors.New("client: closed")
	ErrNoRegistry = errors.New("client: no registry configured")
)

// Result is delivered by ExchangeAsync.
type Result struct {
	Response string
	OK       bool
}

type Client struct {
	opts   options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex // orders ExchangeAsync's wg.Add against Close's wg.Wait
	closed bool
	wg     sync.WaitGroup // async exchanges
}

func NewClient(opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:   o,
		logger: logging.Named(o.logger, "client"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Exchange sends msg to the endpoint called name and returns the response.
// The second result is false if any step failed.
func (c *Client) Exchange(ctx context.Context, name, msg string) (string, bool) {
	return c.exchange(ctx, name, msg, c.opts.timeout)
}

func (c *Client) exchange(ctx context.Context, name, msg string, timeout time.Duration) (string, bool) {
	resp, err := c.tryExchange(ctx, name, msg, timeout)
	if err != nil {
		c.logger.Debug("exchange failed", zap.String("endpoint", name), zap.Error(err))
		return "", false
	}
	return resp, true
}

// TryExchange is Exchange with the failure reason: transport.ErrConnectTimeout,
// transport.ErrConnectFailure, protocol.ErrTruncatedFrame, ErrClosed or an I/O error.
func (c *Client) TryExchange(ctx context.Context, name, msg string) (string, error) {
	return c.tryExchange(ctx, name, msg, c.opts.timeout)
}

func (c *Client) tryExchange(ctx context.Context, name, msg string, timeout time.Duration) (string, error) {
	if c.ctx.Err() != nil {
		return "", ErrClosed
	}
	// Close aborts exchanges that are still in flight.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopClose := context.AfterFunc(c.ctx, cancel)
	defer stopClose()

	// The connect deadline stays armed until the server is seen reading: a Unix
	// connect succeeds while still queued in the listen backlog.
	acceptBy := time.Now().Add(timeout)
	dialCtx, dialCancel := context.WithDeadline(ctx, acceptBy)
	conn, err := transport.Dial(dialCtx, name, c.opts.dial)
	dialCancel()
	if err != nil {
		return "", err
	}
	defer conn.Close()
	stopConn := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopConn()

	if err := protocol.WriteMessage(conn, c.opts.codec, msg); err != nil {
		return "", c.ioError("write request", ctx, err)
	}
	if err := transport.DrainAccepted(ctx, conn, acceptBy); err != nil {
		return "", c.ioError("drain request", ctx, err)
	}
	resp, err := protocol.ReadMessage(conn, c.opts.codec, c.opts.limits)
	if err != nil {
		return "", c.ioError("read response", ctx, err)
	}
	return resp, nil
}

func (c *Client) ioError(step string, ctx context.Context, err error) error {
	if c.ctx.Err() != nil {
		return fmt.Errorf("client: %s: %w", step, ErrClosed)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("client: %s: %w", step, ctxErr)
	}
	return fmt.Errorf("client: %s: %w", step, err)
}

// ExchangeAsync runs Exchange on its own goroutine. The channel receives exactly
// one Result and is then closed; on a closed client that Result is absent at once.
func (c *Client) ExchangeAsync(ctx context.Context, name, msg string) <-chan Result {
	out := make(chan Result, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		out <- Result{}
		close(out)
		return out
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer close(out)
		resp, ok := c.Exchange(ctx, name, msg)
		out <- Result{Response: resp, OK: ok}
	}()
	return out
}

// Call discovers the endpoints registered for service, picks one with the
// configured balancer and exchanges msg with it.
func (c *Client) Call(ctx context.Context, service, msg string) (string, bool) {
	endpoints, err := c.discover(ctx, service)
	if err != nil {
		c.logger.Debug("discover failed", zap.String("service", service), zap.Error(err))
		return "", false
	}
	ep, err := c.opts.balancer.Pick(endpoints)
	if err != nil {
		c.logger.Debug("pick failed", zap.String("service", service), zap.Error(err))
		return "", false
	}
	return c.Exchange(ctx, ep.Name, msg)
}

// CallKeyed is Call with consistent hashing on key, so equal keys reach the same
// endpoint while the registered set is unchanged.
func (c *Client) CallKeyed(ctx context.Context, service, key, msg string) (string, bool) {
	endpoints, err := c.discover(ctx, service)
	if err != nil {
		c.logger.Debug("discover failed", zap.String("service", service), zap.Error(err))
		return "", false
	}
	ring := loadbalance.NewConsistentHashBalancer()
	ring.Reset(endpoints)
	ep, err := ring.Pick(key)
	if err != nil {
		c.logger.Debug("pick failed", zap.String("service", service), zap.Error(err))
		return "", false
	}
	return c.Exchange(ctx, ep.Name, msg)
}

func (c *Client) discover(ctx context.Context, service string) ([]registry.Endpoint, error) {
	if c.opts.registry == nil {
		return nil, ErrNoRegistry
	}
	return c.opts.registry.Discover(ctx, service)
}

// Close aborts in-flight exchanges and waits for async ones to deliver their
// result. It is idempotent and safe for concurrent use.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
	return nil
}

var defaultClient = sync.OnceValue(func() *Client { return NewClient() })

// Exchange performs one exchange with a shared default client and the given
// connect timeout.
func Exchange(name, msg string, timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return defaultClient().exchange(context.Background(), name, msg, timeout)
}
