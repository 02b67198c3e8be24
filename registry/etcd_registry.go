package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/pipemsg/"

// EtcdRegistry stores endpoints in etcd:
//
//	Key:   /pipemsg/{service}/{endpoint}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL leases: if the server dies without deregistering, the
// lease expires and the entry disappears.
type EtcdRegistry struct {
	client *clientv3.Client

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease kept alive for it
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, leases: make(map[string]clientv3.LeaseID)}, nil
}

func serviceKey(service string) string {
	return keyPrefix + service + "/"
}

// Register puts ep under a lease with the given TTL (seconds) and keeps the lease
// alive in the background until Deregister revokes it or the registry is closed.
// Registering the same endpoint again replaces its lease.
func (r *EtcdRegistry) Register(ctx context.Context, service string, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	key := serviceKey(service) + ep.Name
	_, err = r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		r.client.Revoke(context.WithoutCancel(ctx), lease.ID)
		return err
	}

	// KeepAlive must outlive the caller's request-scoped ctx; it ends when the
	// lease is revoked.
	ch, err := r.client.KeepAlive(context.WithoutCancel(ctx), lease.ID)
	if err != nil {
		r.client.Revoke(context.WithoutCancel(ctx), lease.ID)
		return err
	}

	r.mu.Lock()
	prev, replaced := r.leases[key]
	r.leases[key] = lease.ID
	r.mu.Unlock()
	if replaced {
		// the key now hangs off the new lease; dropping the old one leaves it alone
		r.client.Revoke(ctx, prev)
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes the endpoint and revokes its lease, stopping the keepalive.
func (r *EtcdRegistry) Deregister(ctx context.Context, service string, name string) error {
	key := serviceKey(service) + name

	r.mu.Lock()
	id, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		// revoking deletes every key attached to the lease
		_, err := r.client.Revoke(ctx, id)
		return err
	}
	_, err := r.client.Delete(ctx, key)
	return err
}

func (r *EtcdRegistry) leaseFor(service, name string) (clientv3.LeaseID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.leases[serviceKey(service)+name]
	return id, ok
}

// Watch emits the full endpoint list for service whenever it changes.
// The channel is closed when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, serviceKey(service), clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch rather than apply individual events.
			endpoints, err := r.Discover(ctx, service)
			if err != nil {
				continue
			}
			select {
			case ch <- endpoints:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, serviceKey(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // Skip malformed entries
		}
		endpoints = append(endpoints, ep)
	}

	return endpoints, nil
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
