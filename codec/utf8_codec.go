package codec

import "unicode/utf8"

// UTF8Codec passes text through as UTF-8. Go strings are already UTF-8,
// so the only work is validating what comes off the wire.
type UTF8Codec struct{}

func (c *UTF8Codec) Encode(msg string) ([]byte, error) {
	return []byte(msg), nil
}

func (c *UTF8Codec) Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	return string(data), nil
}

func (c *UTF8Codec) Type() CodecType {
	return CodecTypeUTF8
}
