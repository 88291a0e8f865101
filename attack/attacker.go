package attack

import (
	"context"
	"crypto/rand"
	"io"
	"math/big"

	"github.com/ipoluianov/rsablind/oracle"
	"github.com/ipoluianov/rsablind/textbook"
	"github.com/pkg/errors"
)

var (
	ErrCiphertextRange = errors.New("ciphertext out of range [0, n)")
	ErrUnblindable     = errors.New("ciphertext cannot be blinded")
	ErrRejected        = errors.New("oracle rejected the blinded ciphertext")

	one = big.NewInt(1)
	two = big.NewInt(2)
)

// Trace records one blinding round.
type Trace struct {
	R         *big.Int // blinding factor
	Blinded   *big.Int // c' = c * r^e mod n
	Response  *big.Int // m' = m * r mod n, nil when the oracle refused
	Recovered *big.Int // m = m' * r^-1 mod n
}

// Attacker recovers the plaintext of a textbook RSA ciphertext from an oracle
// that decrypts anything except the target itself.
type Attacker struct {
	publicKey textbook.PublicKey
	oracle    oracle.Oracle
	random    io.Reader
}

func NewAttacker(publicKey textbook.PublicKey, o oracle.Oracle) *Attacker {
	var c Attacker
	c.publicKey = publicKey
	c.oracle = o
	c.random = rand.Reader
	return &c
}

// WithRandom replaces the source of blinding factors.
func (c *Attacker) WithRandom(random io.Reader) *Attacker {
	c.random = random
	return c
}

func (c *Attacker) PublicKey() textbook.PublicKey {
	return c.publicKey
}

// DrawBlindingFactor returns r uniformly from [2, n-1] with gcd(r, n) = 1.
func (c *Attacker) DrawBlindingFactor() (*big.Int, error) {
	n := c.publicKey.N
	if n.Cmp(big.NewInt(3)) <= 0 {
		return nil, errors.Errorf("DrawBlindingFactor: modulus %s too small", n)
	}
	span := new(big.Int).Sub(n, two)
	gcd := new(big.Int)
	for {
		r, err := rand.Int(c.random, span)
		if err != nil {
			return nil, errors.Wrap(err, "DrawBlindingFactor")
		}
		r.Add(r, two)
		if gcd.GCD(nil, nil, r, n).Cmp(one) == 0 {
			return r, nil
		}
	}
}

// Blind returns c * r^e mod n, the encryption of m*r mod n.
func (c *Attacker) Blind(ciphertext, r *big.Int) *big.Int {
	blinded := textbook.Encrypt(r, c.publicKey.E, c.publicKey.N)
	blinded.Mul(blinded, ciphertext)
	return blinded.Mod(blinded, c.publicKey.N)
}

// Unblind returns m' * r^-1 mod n.
func (c *Attacker) Unblind(response, r *big.Int) (*big.Int, error) {
	rInv := new(big.Int).ModInverse(r, c.publicKey.N)
	if rInv == nil {
		return nil, errors.Errorf("Unblind: %s is not invertible", r)
	}
	m := rInv.Mul(rInv, response)
	return m.Mod(m, c.publicKey.N), nil
}

func (c *Attacker) checkCiphertext(ciphertext *big.Int) error {
	if ciphertext == nil || ciphertext.Sign() < 0 || ciphertext.Cmp(c.publicKey.N) >= 0 {
		return ErrCiphertextRange
	}
	// every multiple of zero is zero
	if ciphertext.Sign() == 0 {
		return ErrUnblindable
	}
	return nil
}

// blind draws factors until the blinded ciphertext differs from the target.
func (c *Attacker) blind(ctx context.Context, ciphertext *big.Int) (trace Trace, err error) {
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		trace.R, err = c.DrawBlindingFactor()
		if err != nil {
			return
		}
		trace.Blinded = c.Blind(ciphertext, trace.R)
		if trace.Blinded.Cmp(ciphertext) != 0 {
			return
		}
	}
}

// Attempt runs one blinding round. ok is false when the oracle answered
// Invalid; the trace then carries r and c' only.
func (c *Attacker) Attempt(ctx context.Context, ciphertext *big.Int) (trace Trace, ok bool, err error) {
	if err = c.checkCiphertext(ciphertext); err != nil {
		return
	}
	trace, err = c.blind(ctx, ciphertext)
	if err != nil {
		return
	}

	var resp oracle.Response
	resp, err = c.oracle.Respond(ctx, trace.Blinded)
	if err != nil {
		return
	}
	if !resp.Valid() {
		return
	}

	trace.Response = resp.Plaintext()
	trace.Recovered, err = c.Unblind(trace.Response, trace.R)
	if err != nil {
		return
	}
	ok = true
	return
}

// Recover is the single-query break: against an unrestricted oracle it
// returns the exact plaintext integer after one oracle call.
func (c *Attacker) Recover(ctx context.Context, ciphertext *big.Int) (Trace, error) {
	trace, ok, err := c.Attempt(ctx, ciphertext)
	if err != nil {
		return trace, err
	}
	if !ok {
		return trace, ErrRejected
	}
	return trace, nil
}
