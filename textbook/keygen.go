package textbook

import (
	"crypto/rand"
	"crypto/rsa"
	"io"
	"math/big"

	"github.com/pkg/errors"
)

const MinKeyBits = 32

// GenerateKeyPair draws two primes of bits/2 bits and derives the private
// exponent for DefaultExponent. Sizes far below anything secure are accepted
// on purpose: small moduli make the gated attack observable.
func GenerateKeyPair(random io.Reader, bits int) (*KeyPair, error) {
	if bits < MinKeyBits {
		return nil, errors.Errorf("GenerateKeyPair: %d bits is below the minimum of %d", bits, MinKeyBits)
	}
	if random == nil {
		random = rand.Reader
	}
	e := big.NewInt(DefaultExponent)
	for {
		p, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, errors.Wrap(err, "GenerateKeyPair: p")
		}
		q, err := rand.Prime(random, bits-bits/2)
		if err != nil {
			return nil, errors.Wrap(err, "GenerateKeyPair: q")
		}
		if p.Cmp(q) == 0 {
			continue
		}
		keyPair, err := NewKeyPair(p, q, e)
		if err != nil {
			// gcd(e, phi) != 1
			continue
		}
		return keyPair, nil
	}
}

// NewKeyPair builds a key pair from two primes and a public exponent.
func NewKeyPair(p, q, e *big.Int) (*KeyPair, error) {
	keyPair := &KeyPair{
		PublicKey: PublicKey{
			N: new(big.Int).Mul(p, q),
			E: new(big.Int).Set(e),
		},
		P: new(big.Int).Set(p),
		Q: new(big.Int).Set(q),
	}
	keyPair.D = new(big.Int).ModInverse(keyPair.E, keyPair.Totient())
	if keyPair.D == nil {
		return nil, errors.Wrap(ErrInvalidKey, "e is not invertible mod phi")
	}
	if err := keyPair.Validate(); err != nil {
		return nil, err
	}
	return keyPair, nil
}

// FromRSA adapts a two-prime standard library key. The private exponent is
// recomputed modulo (p-1)(q-1).
func FromRSA(privateKey *rsa.PrivateKey) (*KeyPair, error) {
	if privateKey == nil || len(privateKey.Primes) != 2 {
		return nil, errors.Wrap(ErrInvalidKey, "two-prime key expected")
	}
	return NewKeyPair(privateKey.Primes[0], privateKey.Primes[1], big.NewInt(int64(privateKey.E)))
}

// IsProbablePrime runs Miller-Rabin with the given number of rounds. It is
// used for diagnostics only.
func IsProbablePrime(n *big.Int, rounds int) bool {
	if n == nil || n.Sign() <= 0 {
		return false
	}
	if rounds < 0 {
		rounds = 0
	}
	return n.ProbablyPrime(rounds)
}
