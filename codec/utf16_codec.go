package codec

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// UTF16Codec encodes text as UTF-16LE with no byte order mark.
// Characters outside the BMP become surrogate pairs.
type UTF16Codec struct{}

var utf16LE encoding.Encoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func (c *UTF16Codec) Encode(msg string) ([]byte, error) {
	if msg == "" {
		return []byte{}, nil
	}
	// Encoders carry state, so each call gets its own.
	return utf16LE.NewEncoder().Bytes([]byte(msg))
}

func (c *UTF16Codec) Decode(data []byte) (string, error) {
	if len(data)%2 != 0 {
		return "", ErrOddLength
	}
	if len(data) == 0 {
		return "", nil
	}
	out, err := utf16LE.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c *UTF16Codec) Type() CodecType {
	return CodecTypeUTF16
}
