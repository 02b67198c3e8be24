// Package codec converts message text to and from the bytes carried inside a frame.
//
// The wire default is UTF-16 little-endian without a byte order mark, which is what
// native named-pipe peers on the local host expect. UTF-8 is available for peers that
// agree on it out-of-band.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

type CodecType byte

const (
	CodecTypeUTF16 CodecType = 0
	CodecTypeUTF8  CodecType = 1
)

var (
	ErrOddLength   = errors.New("codec: utf-16 body has odd length")
	ErrInvalidUTF8 = errors.New("codec: body is not valid utf-8")
)

// TextCodec is the text encoding used for frame bodies.
type TextCodec interface {
	Encode(msg string) ([]byte, error)
	Decode(data []byte) (string, error)
	Type() CodecType
}

// GetCodec returns the codec for codecType. Unknown types fall back to UTF-16.
func GetCodec(codecType CodecType) TextCodec {
	if codecType == CodecTypeUTF8 {
		return &UTF8Codec{}
	}

	return &UTF16Codec{}
}

// ParseCodecType maps a config name ("utf-16", "utf16", "utf-8", "utf8") to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-16", "utf16", "utf-16le", "utf16le":
		return CodecTypeUTF16, nil
	case "utf-8", "utf8":
		return CodecTypeUTF8, nil
	default:
		return 0, fmt.Errorf("codec: unknown encoding %q", name)
	}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeUTF16:
		return "utf-16le"
	case CodecTypeUTF8:
		return "utf-8"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}
