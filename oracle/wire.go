package oracle

import (
	"math/big"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ipoluianov/gomisc/crypt_tools"
	"github.com/ipoluianov/rsablind/textbook"
	"github.com/pkg/errors"
)

var ErrWireFormat = errors.New("malformed base58 value")

// EncodeInt renders an integer as base58 of its big-endian bytes. Zero is
// sent as a single zero byte so that it is never an empty string.
func EncodeInt(v *big.Int) string {
	bs := v.Bytes()
	if len(bs) == 0 {
		bs = []byte{0}
	}
	return base58.Encode(bs)
}

func DecodeInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return nil, errors.Wrap(ErrWireFormat, "empty value")
	}
	bs := base58.Decode(s)
	if len(bs) == 0 {
		return nil, errors.Wrapf(ErrWireFormat, "%q", s)
	}
	return new(big.Int).SetBytes(bs), nil
}

// EncodePublicKey renders the key as base58 of its PKCS#1 DER form.
func EncodePublicKey(publicKey textbook.PublicKey) string {
	return base58.Encode(crypt_tools.RSAPublicKeyToDer(publicKey.RSA()))
}

func DecodePublicKey(s string) (publicKey textbook.PublicKey, err error) {
	s = strings.TrimSpace(s)
	bs := base58.Decode(s)
	if len(bs) == 0 {
		err = errors.Wrapf(ErrWireFormat, "public key %q", s)
		return
	}
	rsaPublicKey, err := crypt_tools.RSAPublicKeyFromDer(bs)
	if err != nil {
		err = errors.Wrap(err, "public key der")
		return
	}
	publicKey = textbook.PublicKeyFromRSA(rsaPublicKey)
	return
}
