package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"pipemsg/codec"
	"pipemsg/middleware"
	"pipemsg/protocol"
	"pipemsg/registry"
	"pipemsg/transport"
)

// DefaultMaxFailures is the number of consecutive accept failures tolerated.
// The failure after that faults the listener.
const DefaultMaxFailures = 5

type options struct {
	acceptor      Acceptor
	listen        transport.ListenConfig
	codec         codec.TextCodec
	limits        protocol.Limits
	logger        *zap.Logger
	registerer    prometheus.Registerer
	middlewares   []middleware.Middleware
	maxFailures   int
	acceptBackoff time.Duration

	registry    registry.Registry
	service     string
	weight      int
	registryTTL int64
}

func defaultOptions() options {
	return options{
		codec:       &codec.UTF16Codec{},
		limits:      protocol.DefaultLimits(),
		maxFailures: DefaultMaxFailures,
		registryTTL: 10,
	}
}

type Option func(*options)

// WithAcceptor replaces the pipe endpoint with a custom accept primitive.
func WithAcceptor(a Acceptor) Option {
	return func(o *options) { o.acceptor = a }
}

// WithSocketDir sets the directory holding Unix socket files.
func WithSocketDir(dir string) Option {
	return func(o *options) { o.listen.Dir = dir }
}

// WithMaxInstances caps concurrently open connections on the endpoint.
// Accepting beyond the cap counts as an accept failure.
func WithMaxInstances(n int) Option {
	return func(o *options) { o.listen.MaxInstances = n }
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

// WithMetrics registers the listener's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMiddleware wraps the dispatcher. Middlewares run in the order given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithMaxFailures sets the consecutive accept failure budget.
func WithMaxFailures(n int) Option {
	return func(o *options) { o.maxFailures = n }
}

// WithAcceptBackoff pauses between a failed accept and the next attempt.
func WithAcceptBackoff(d time.Duration) Option {
	return func(o *options) { o.acceptBackoff = d }
}

// WithRegistry announces the endpoint under service while the listener runs.
func WithRegistry(reg registry.Registry, service string, weight int) Option {
	return func(o *options) {
		o.registry = reg
		o.service = service
		o.weight = weight
	}
}

// WithRegistryTTL sets the lease TTL, in seconds, of the registry announcement.
func WithRegistryTTL(seconds int64) Option {
	return func(o *options) {
		if seconds > 0 {
			o.registryTTL = seconds
		}
	}
}
