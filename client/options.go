package client

import (
	"time"

	"go.uber.org/zap"

	"pipemsg/codec"
	"pipemsg/loadbalance"
	"pipemsg/protocol"
	"pipemsg/registry"
	"pipemsg/transport"
)

// DefaultTimeout bounds how long a client waits for a server to accept.
const DefaultTimeout = 5000 * time.Millisecond

type options struct {
	timeout  time.Duration
	dial     transport.DialConfig
	codec    codec.TextCodec
	limits   protocol.Limits
	logger   *zap.Logger
	registry registry.Registry
	balancer loadbalance.Balancer
}

func defaultOptions() options {
	return options{
		timeout:  DefaultTimeout,
		dial:     transport.DefaultDialConfig(),
		codec:    &codec.UTF16Codec{},
		limits:   protocol.DefaultLimits(),
		balancer: &loadbalance.RoundRobinBalancer{},
	}
}

type Option func(*options)

// WithTimeout sets the connect timeout. It does not bound the read or write.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithSocketDir(dir string) Option {
	return func(o *options) { o.dial.Dir = dir }
}

func WithDialBackoff(b transport.BackoffConfig) Option {
	return func(o *options) { o.dial.Backoff = b }
}

func WithCodec(c codec.TextCodec) Option {
	return func(o *options) { o.codec = c }
}

func WithLimits(l protocol.Limits) Option {
	return func(o *options) { o.limits = l }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry enables Call and CallKeyed. A nil balancer keeps round robin.
func WithRegistry(reg registry.Registry, bal loadbalance.Balancer) Option {
	return func(o *options) {
		o.registry = reg
		if bal != nil {
			o.balancer = bal
		}
	}
}
