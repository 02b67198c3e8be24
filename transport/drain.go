package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

const drainPollInterval = 2 * time.Millisecond

var errNotAccepted = fmt.Errorf("%w: peer has not started reading", ErrConnectTimeout)

// Drain blocks until the peer has read everything written to conn, or ctx is done.
// It is the back-pressure point of a client exchange: the request is known to be
// consumed before the response is awaited.
func Drain(ctx context.Context, conn net.Conn) error {
	return DrainAccepted(ctx, conn, time.Time{})
}

// DrainAccepted is Drain for a freshly dialed connection. A Unix connect completes
// once the connection is queued in the listen backlog, so only the peer reading
// proves it accepted. If no read is observed by acceptBy, DrainAccepted returns an
// error matching ErrConnectTimeout; after the first read only ctx bounds the wait.
// A zero acceptBy waits on ctx alone.
func DrainAccepted(ctx context.Context, conn net.Conn, acceptBy time.Time) error {
	// Windows pipe handles flush by waiting for the reader (FlushFileBuffers).
	if f, ok := conn.(interface{ Flush() error }); ok && flushWaitsForReader {
		return flushWithin(ctx, f, acceptBy)
	}
	return drainPlatform(ctx, conn, acceptBy)
}

func flushWithin(ctx context.Context, f interface{ Flush() error }, acceptBy time.Time) error {
	done := make(chan error, 1)
	go func() { done <- f.Flush() }()

	var expired <-chan time.Time
	if !acceptBy.IsZero() {
		t := time.NewTimer(time.Until(acceptBy))
		defer t.Stop()
		expired = t.C
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return errNotAccepted
	}
}
