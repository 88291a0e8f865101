package oracle

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/ipoluianov/rsablind/codec"
	"github.com/ipoluianov/rsablind/textbook"
)

// Response is either Plain(m) or Invalid.
type Response struct {
	plaintext *big.Int
}

var Invalid = Response{}

func Plain(m *big.Int) Response {
	return Response{plaintext: m}
}

func (r Response) Valid() bool {
	return r.plaintext != nil
}

// Plaintext returns the decrypted integer, nil for Invalid.
func (r Response) Plaintext() *big.Int {
	return r.plaintext
}

func (r Response) String() string {
	if !r.Valid() {
		return "invalid"
	}
	return r.plaintext.String()
}

// Oracle decrypts ciphertexts chosen by the caller. Every call is one complete
// request/response round; implementations hold no per-call state.
type Oracle interface {
	Respond(ctx context.Context, ciphertext *big.Int) (Response, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, ciphertext *big.Int) (Response, error)

func (f Func) Respond(ctx context.Context, ciphertext *big.Int) (Response, error) {
	return f(ctx, ciphertext)
}

// Unrestricted answers every query with the decrypted integer.
type Unrestricted struct {
	keyPair *textbook.KeyPair
}

func NewUnrestricted(keyPair *textbook.KeyPair) *Unrestricted {
	var c Unrestricted
	c.keyPair = keyPair
	return &c
}

func (c *Unrestricted) Respond(_ context.Context, ciphertext *big.Int) (Response, error) {
	return Plain(c.keyPair.DecryptInt(ciphertext)), nil
}

// Gated answers only when the decrypted integer decodes to UTF-8 text. The
// accept/reject signal itself still leaks information.
type Gated struct {
	keyPair *textbook.KeyPair
}

func NewGated(keyPair *textbook.KeyPair) *Gated {
	var c Gated
	c.keyPair = keyPair
	return &c
}

func (c *Gated) Respond(_ context.Context, ciphertext *big.Int) (Response, error) {
	m := c.keyPair.DecryptInt(ciphertext)
	if !codec.Valid(m) {
		return Invalid, nil
	}
	return Plain(m), nil
}

// Counting counts the queries passed to the wrapped oracle.
type Counting struct {
	oracle Oracle
	calls  int64
}

func NewCounting(o Oracle) *Counting {
	var c Counting
	c.oracle = o
	return &c
}

func (c *Counting) Respond(ctx context.Context, ciphertext *big.Int) (Response, error) {
	atomic.AddInt64(&c.calls, 1)
	return c.oracle.Respond(ctx, ciphertext)
}

func (c *Counting) Calls() int64 {
	return atomic.LoadInt64(&c.calls)
}
