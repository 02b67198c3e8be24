// Package registry lets servers announce the endpoint names they listen on and
// lets clients look them up by service name.
//
// It only answers "which local endpoint name serves this service"; the exchange
// itself always goes straight to that endpoint.
package registry

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("registry: no endpoints for service")

type Endpoint struct {
	Name    string // pipe endpoint name the listener serves
	Weight  int    // Weight for load balancing
	Version string
}

type Registry interface {
	Register(ctx context.Context, service string, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, service string, name string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	Watch(ctx context.Context, service string) <-chan []Endpoint
}
