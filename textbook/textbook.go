package textbook

import (
	"crypto/rsa"
	"math/big"

	"github.com/ipoluianov/rsablind/codec"
	"github.com/pkg/errors"
)

const DefaultExponent = 65537

var (
	ErrMessageTooLarge = errors.New("message does not fit into the modulus")
	ErrInvalidKey      = errors.New("invalid rsa key")

	one = big.NewInt(1)
)

type PublicKey struct {
	N *big.Int
	E *big.Int
}

// KeyPair is an unpadded RSA key together with the primes it was built from.
type KeyPair struct {
	PublicKey
	D *big.Int
	P *big.Int
	Q *big.Int
}

// Encrypt returns m^e mod n.
func Encrypt(m, e, n *big.Int) *big.Int {
	return new(big.Int).Exp(m, e, n)
}

// Decrypt returns c^d mod n.
func Decrypt(c, d, n *big.Int) *big.Int {
	return new(big.Int).Exp(c, d, n)
}

// EncryptInt encrypts m after checking 0 <= m < n.
func (c PublicKey) EncryptInt(m *big.Int) (result *big.Int, err error) {
	if m == nil || m.Sign() < 0 || m.Cmp(c.N) >= 0 {
		err = errors.Wrapf(ErrMessageTooLarge, "modulus has %d bits", c.N.BitLen())
		return
	}
	result = Encrypt(m, c.E, c.N)
	return
}

func (c PublicKey) EncryptText(text string) (result *big.Int, err error) {
	var m *big.Int
	m, err = codec.Encode(text)
	if err != nil {
		return
	}
	return c.EncryptInt(m)
}

// Size returns the modulus size in bytes.
func (c PublicKey) Size() int {
	return (c.N.BitLen() + 7) / 8
}

// RSA converts the key into the standard library representation used for
// DER and PEM serialisation.
func (c PublicKey) RSA() *rsa.PublicKey {
	return &rsa.PublicKey{
		N: new(big.Int).Set(c.N),
		E: int(c.E.Int64()),
	}
}

// PublicKeyFromRSA is the inverse of RSA.
func PublicKeyFromRSA(publicKey *rsa.PublicKey) PublicKey {
	return PublicKey{
		N: new(big.Int).Set(publicKey.N),
		E: big.NewInt(int64(publicKey.E)),
	}
}

func (c *KeyPair) Public() PublicKey {
	return c.PublicKey
}

func (c *KeyPair) DecryptInt(ciphertext *big.Int) *big.Int {
	return Decrypt(ciphertext, c.D, c.N)
}

// Totient returns (p-1)(q-1).
func (c *KeyPair) Totient() *big.Int {
	pMinusOne := new(big.Int).Sub(c.P, one)
	qMinusOne := new(big.Int).Sub(c.Q, one)
	return pMinusOne.Mul(pMinusOne, qMinusOne)
}

// Validate checks n = p*q, gcd(e, phi) = 1 and e*d = 1 mod phi.
func (c *KeyPair) Validate() error {
	if c.N == nil || c.E == nil || c.D == nil || c.P == nil || c.Q == nil {
		return errors.Wrap(ErrInvalidKey, "missing component")
	}
	if c.P.Cmp(one) <= 0 || c.Q.Cmp(one) <= 0 {
		return errors.Wrap(ErrInvalidKey, "primes must be greater than one")
	}
	// with an even modulus some targets blind to themselves for every r
	if c.P.Bit(0) == 0 || c.Q.Bit(0) == 0 {
		return errors.Wrap(ErrInvalidKey, "primes must be odd")
	}
	if new(big.Int).Mul(c.P, c.Q).Cmp(c.N) != 0 {
		return errors.Wrap(ErrInvalidKey, "n != p*q")
	}
	if c.N.Cmp(big.NewInt(3)) <= 0 {
		return errors.Wrap(ErrInvalidKey, "modulus too small")
	}
	totient := c.Totient()
	if new(big.Int).GCD(nil, nil, c.E, totient).Cmp(one) != 0 {
		return errors.Wrap(ErrInvalidKey, "gcd(e, phi) != 1")
	}
	ed := new(big.Int).Mul(c.E, c.D)
	if ed.Mod(ed, totient).Cmp(one) != 0 {
		return errors.Wrap(ErrInvalidKey, "e*d != 1 mod phi")
	}
	return nil
}
