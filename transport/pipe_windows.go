//go:build windows

package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/Microsoft/go-winio"
)

const pipePrefix = `\\.\pipe\`

func platformPath(name, _ string) string {
	if strings.HasPrefix(name, pipePrefix) {
		return name
	}
	return pipePrefix + name
}

// winio creates a fresh pipe instance for every Accept, so several clients can
// be connected to the same name at once.
func listenPipe(path string, cfg ListenConfig) (net.Listener, error) {
	return winio.ListenPipe(path, &winio.PipeConfig{
		InputBufferSize:  cfg.BufferSize,
		OutputBufferSize: cfg.BufferSize,
	})
}

func dialPipe(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}

func isRetriableDialError(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
