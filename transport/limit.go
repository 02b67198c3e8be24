package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
)

// instanceLimitListener enforces a cap on open connections for one endpoint.
// Unlike a semaphore that blocks Accept, going over the cap is reported as an
// accept failure, the way the OS refuses a pipe instance beyond its maximum.
type instanceLimitListener struct {
	net.Listener
	max    int64
	active atomic.Int64
}

func newInstanceLimitListener(ln net.Listener, max int) *instanceLimitListener {
	return &instanceLimitListener{Listener: ln, max: int64(max)}
}

func (l *instanceLimitListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if l.active.Add(1) > l.max {
		l.active.Add(-1)
		c.Close()
		return nil, ErrInstanceLimit
	}
	return &trackedConn{Conn: c, release: func() { l.active.Add(-1) }}, nil
}

// Active returns the number of open connections.
func (l *instanceLimitListener) Active() int {
	return int(l.active.Load())
}

// trackedConn releases its instance slot exactly once on Close and keeps the
// optional capabilities of the wrapped conn visible to CloseWrite and Drain.
type trackedConn struct {
	net.Conn
	once    sync.Once
	release func()
}

func (c *trackedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}

func (c *trackedConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

func (c *trackedConn) Flush() error {
	if f, ok := c.Conn.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (c *trackedConn) SyscallConn() (syscall.RawConn, error) {
	if sc, ok := c.Conn.(syscall.Conn); ok {
		return sc.SyscallConn()
	}
	return nil, errors.ErrUnsupported
}

// CloseWrite half-closes conn when the platform supports it, signalling the peer
// that no more data follows.
func CloseWrite(conn net.Conn) error {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
