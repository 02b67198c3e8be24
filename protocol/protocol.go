// Package protocol implements the length-prefixed frame used on a pipe connection.
//
// One frame carries one text message. The receiver reads the prefix first to learn
// the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0          4
//	┌──────────┬──────────────────────────┐
//	│  length  │         body ...         │
//	│ uint32LE │ length bytes of text     │
//	└──────────┴──────────────────────────┘
//
// There is no magic, version, checksum or compression: the pipe is local, reliable
// and ordered, so integrity is left to the transport.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"pipemsg/codec"
)

const PrefixSize = 4

var (
	// ErrTruncatedFrame is returned when the stream ends before the declared
	// number of bytes has been read.
	ErrTruncatedFrame = errors.New("protocol: truncated frame")
	ErrFrameTooLarge  = errors.New("protocol: frame too large")
)

// Limits constrains how much memory a single frame may claim.
type Limits struct {
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 16 * 1024 * 1024}
}

// Encode writes a complete frame (prefix + body) to w in a single Write call,
// so a reader never observes a prefix without its body being on the way.
func Encode(w io.Writer, body []byte) error {
	buf := make([]byte, PrefixSize+len(body))
	binary.LittleEndian.PutUint32(buf[:PrefixSize], uint32(len(body)))
	copy(buf[PrefixSize:], body)

	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

// Decode reads one complete frame body from r.
//
// A stream that ends cleanly before any prefix byte returns io.EOF. A stream that ends
// inside the prefix or the body returns ErrTruncatedFrame. A nil reader is treated as
// not readable and yields an empty body.
func Decode(r io.Reader, limits Limits) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}

	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short length prefix", ErrTruncatedFrame)
		}
		return nil, err
	}

	bodyLen := binary.LittleEndian.Uint32(prefix[:])
	if limits.MaxFrameBytes > 0 && bodyLen > limits.MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFrameTooLarge, bodyLen, limits.MaxFrameBytes)
	}

	body := make([]byte, bodyLen)
	if bodyLen == 0 {
		return body, nil
	}
	n, err := io.ReadFull(r, body)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTruncatedFrame, n, bodyLen)
		}
		return nil, err
	}
	return body, nil
}

// WriteMessage encodes msg with c and writes it as one frame.
func WriteMessage(w io.Writer, c codec.TextCodec, msg string) error {
	body, err := c.Encode(msg)
	if err != nil {
		return fmt.Errorf("protocol: encode message: %w", err)
	}
	if uint64(len(body)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}
	return Encode(w, body)
}

// ReadMessage reads one frame and decodes its body with c.
// A nil reader yields an empty message.
func ReadMessage(r io.Reader, c codec.TextCodec, limits Limits) (string, error) {
	body, err := Decode(r, limits)
	if err != nil {
		return "", err
	}
	msg, err := c.Decode(body)
	if err != nil {
		return "", fmt.Errorf("protocol: decode message: %w", err)
	}
	return msg, nil
}
