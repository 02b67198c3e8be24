// Package transport provides the local named-pipe endpoint both roles talk over.
//
// An endpoint is identified by a plain name that client and server agree on out-of-band.
// On Windows the name maps to a named pipe (\\.\pipe\<name>) served through go-winio;
// everywhere else it maps to a Unix domain socket (<dir>/<name>.sock).
//
//	server: Listen(name) ─► Acceptor.Accept(ctx) ─► net.Conn (one per client)
//	client: Dial(ctx, name) ─► net.Conn ─► write frame ─► Drain ─► read frame
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrConnectTimeout means no server accepted the connection before the deadline.
	ErrConnectTimeout = errors.New("transport: connect timeout")
	// ErrConnectFailure means dialing failed for a reason other than the deadline.
	ErrConnectFailure = errors.New("transport: connect failure")
	// ErrInstanceLimit is returned by Accept when the endpoint already has its
	// maximum number of open connections.
	ErrInstanceLimit = errors.New("transport: pipe instance limit reached")
	ErrEmptyName     = errors.New("transport: empty endpoint name")
)

// ListenConfig controls how a server endpoint is created.
type ListenConfig struct {
	// Dir holds Unix socket files. Empty means os.TempDir(). Ignored on Windows.
	Dir string
	// MaxInstances caps concurrently open connections. Zero means unlimited.
	MaxInstances int
	// BufferSize sizes the Windows pipe buffers. Zero lets the OS decide.
	BufferSize int32
}

// DialConfig controls how a client reaches an endpoint.
type DialConfig struct {
	Dir     string
	Backoff BackoffConfig
}

func DefaultDialConfig() DialConfig {
	return DialConfig{
		Backoff: BackoffConfig{
			InitialDelay: 10 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     200 * time.Millisecond,
			Jitter:       0.2,
		},
	}
}

// Path resolves an endpoint name to the platform address.
func Path(name, dir string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	return platformPath(name, dir), nil
}

// Listen creates the server side of the endpoint.
func Listen(name string, cfg ListenConfig) (net.Listener, error) {
	path, err := Path(name, cfg.Dir)
	if err != nil {
		return nil, err
	}
	ln, err := listenPipe(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	if cfg.MaxInstances > 0 {
		ln = newInstanceLimitListener(ln, cfg.MaxInstances)
	}
	return ln, nil
}

// Dial connects to the endpoint, waiting for it to appear until ctx is done.
// A server that is not yet listening is polled with exponential backoff, the way a
// pipe client waits for a server to create the pipe.
func Dial(ctx context.Context, name string, cfg DialConfig) (net.Conn, error) {
	path, err := Path(name, cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailure, err)
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = DefaultDialConfig().Backoff
	}

	for attempt := 1; ; attempt++ {
		conn, err := dialPipe(ctx, path)
		if err == nil {
			return conn, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, dialContextError(ctxErr, err)
		}
		if !isRetriableDialError(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailure, path, err)
		}

		timer := time.NewTimer(cfg.Backoff.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, dialContextError(ctx.Err(), err)
		case <-timer.C:
		}
	}
}

func dialContextError(ctxErr, last error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrConnectTimeout, last)
	}
	return fmt.Errorf("%w: %w", ErrConnectFailure, ctxErr)
}
