//go:build linux

package transport

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const flushWaitsForReader = false

// drainPlatform polls SIOCOUTQ, which for a Unix stream socket reports the bytes
// written but not yet consumed by the receiving end. A falling count is the first
// sign the peer accepted and is reading.
func drainPlatform(ctx context.Context, conn net.Conn, acceptBy time.Time) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	first := -1
	for {
		var pending int
		var ioctlErr error
		if err := raw.Control(func(fd uintptr) {
			pending, ioctlErr = unix.IoctlGetInt(int(fd), unix.SIOCOUTQ)
		}); err != nil {
			return err
		}
		if ioctlErr != nil {
			return ioctlErr
		}
		if pending == 0 {
			return nil
		}

		switch {
		case first < 0:
			first = pending
		case pending < first:
			acceptBy = time.Time{}
		}
		if !acceptBy.IsZero() && !time.Now().Before(acceptBy) {
			return errNotAccepted
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
