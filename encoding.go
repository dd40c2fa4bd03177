package wsserial

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// lookupEncoding resolves a WHATWG encoding label such as "utf-8" or "windows-1252"
func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %q: %v", ErrInvalidConfig, name, err)
	}
	return enc, nil
}

// textCodec converts between wire bytes and text in one configured encoding
type textCodec struct {
	enc encoding.Encoding
}

func newTextCodec(name string) (textCodec, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return textCodec{}, err
	}
	return textCodec{enc: enc}, nil
}

func (c textCodec) decode(b []byte) string {
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func (c textCodec) encode(s string) ([]byte, error) {
	return c.enc.NewEncoder().Bytes([]byte(s))
}
