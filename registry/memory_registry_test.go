package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegisterAndDiscover(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	ep1 := Endpoint{Name: "a", Weight: 10}
	ep2 := Endpoint{Name: "b", Weight: 5}
	require.NoError(t, reg.Register(ctx, "svc", ep2, 10))
	require.NoError(t, reg.Register(ctx, "svc", ep1, 10))

	endpoints, err := reg.Discover(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{ep1, ep2}, endpoints)

	require.NoError(t, reg.Deregister(ctx, "svc", "a"))
	endpoints, err = reg.Discover(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, []Endpoint{ep2}, endpoints)

	endpoints, err = reg.Discover(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, endpoints)
}

func TestMemoryWatch(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	updates := reg.Watch(ctx, "svc")
	require.NoError(t, reg.Register(context.Background(), "svc", Endpoint{Name: "a"}, 0))
	require.NoError(t, reg.Register(context.Background(), "svc", Endpoint{Name: "b"}, 0))

	// only the latest list is kept for a slow reader
	select {
	case got := <-updates:
		assert.Len(t, got, 2)
	case <-time.After(time.Second):
		t.Fatal("no watch update")
	}

	cancel()
	select {
	case _, ok := <-updates:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}
