//go:build !linux

package transport

import (
	"context"
	"net"
	"runtime"
	"time"
)

var flushWaitsForReader = runtime.GOOS == "windows"

// drainPlatform has no portable way to observe the peer's read progress outside
// Linux and Windows; the write having completed is the best available signal.
func drainPlatform(ctx context.Context, _ net.Conn, _ time.Time) error {
	return ctx.Err()
}
