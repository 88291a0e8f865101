package codec

import (
	"math/big"
	"unicode/utf8"

	"github.com/pkg/errors"
)

var (
	ErrEncoding = errors.New("text is not valid utf-8")
	ErrDecoding = errors.New("integer does not decode to utf-8 text")
)

// Encode interprets the UTF-8 bytes of text as a big-endian unsigned integer.
func Encode(text string) (m *big.Int, err error) {
	if !utf8.ValidString(text) {
		err = errors.Wrapf(ErrEncoding, "encode %q", text)
		return
	}
	m = new(big.Int).SetBytes([]byte(text))
	return
}

// Decode is the inverse of Encode. The integer is converted to its minimal
// big-endian form, so zero decodes to the empty string.
func Decode(m *big.Int) (text string, err error) {
	if m == nil || m.Sign() < 0 {
		err = errors.Wrap(ErrDecoding, "negative or missing integer")
		return
	}
	bs := m.Bytes()
	if !utf8.Valid(bs) {
		err = errors.Wrapf(ErrDecoding, "%d bytes", len(bs))
		return
	}
	text = string(bs)
	return
}

// Valid reports whether m decodes to text.
func Valid(m *big.Int) bool {
	_, err := Decode(m)
	return err == nil
}
