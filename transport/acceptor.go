package transport

import (
	"context"
	"net"
	"sync"
)

// Acceptor is a cancellable accept primitive over a lazily created listener.
//
// If creating the listener fails (for example the socket directory is missing), the
// error is returned from Accept and creation is retried on the next call, so the
// caller's error budget sees every failed attempt.
type Acceptor struct {
	name string
	cfg  ListenConfig

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

func NewAcceptor(name string, cfg ListenConfig) *Acceptor {
	return &Acceptor{name: name, cfg: cfg}
}

// Accept waits for the next connection. Cancelling ctx closes the listener and
// makes Accept return ctx.Err(); the Acceptor is unusable afterwards.
func (a *Acceptor) Accept(ctx context.Context) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ln, err := a.listener()
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { a.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return conn, nil
}

// Addr returns the resolved endpoint address.
func (a *Acceptor) Addr() string {
	p, _ := Path(a.name, a.cfg.Dir)
	return p
}

// Close stops the listener. It is safe to call more than once.
func (a *Acceptor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.ln == nil {
		return nil
	}
	err := a.ln.Close()
	a.ln = nil
	return err
}

func (a *Acceptor) listener() (net.Listener, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, net.ErrClosed
	}
	if a.ln != nil {
		return a.ln, nil
	}
	ln, err := Listen(a.name, a.cfg)
	if err != nil {
		return nil, err
	}
	a.ln = ln
	return ln, nil
}
