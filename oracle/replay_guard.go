package oracle

import (
	"context"
	"crypto/sha256"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrAlreadySeen = errors.New("ciphertext already seen")

// ReplayGuard refuses to decrypt a ciphertext twice. A zero ttl keeps
// entries until the guard is dropped.
type ReplayGuard struct {
	mtx    sync.Mutex
	oracle Oracle
	ttl    time.Duration
	seen   map[[sha256.Size]byte]time.Time
}

func NewReplayGuard(o Oracle, ttl time.Duration) *ReplayGuard {
	var c ReplayGuard
	c.oracle = o
	c.ttl = ttl
	c.seen = make(map[[sha256.Size]byte]time.Time)
	return &c
}

func fingerprint(ciphertext *big.Int) [sha256.Size]byte {
	return sha256.Sum256(ciphertext.Bytes())
}

// Remember marks a ciphertext as already answered, e.g. the one the
// legitimate owner decrypted before.
func (c *ReplayGuard) Remember(ciphertext *big.Int) {
	c.mtx.Lock()
	c.seen[fingerprint(ciphertext)] = time.Now()
	c.mtx.Unlock()
}

func (c *ReplayGuard) Respond(ctx context.Context, ciphertext *big.Int) (Response, error) {
	key := fingerprint(ciphertext)
	now := time.Now()

	c.mtx.Lock()
	if dt, ok := c.seen[key]; ok && !c.expired(dt, now) {
		c.mtx.Unlock()
		return Invalid, ErrAlreadySeen
	}
	c.seen[key] = now
	c.mtx.Unlock()

	return c.oracle.Respond(ctx, ciphertext)
}

func (c *ReplayGuard) expired(dt time.Time, now time.Time) bool {
	return c.ttl > 0 && now.Sub(dt) > c.ttl
}

// Purge removes expired entries and returns how many were removed.
func (c *ReplayGuard) Purge(now time.Time) (removed int) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for key, dt := range c.seen {
		if c.expired(dt, now) {
			delete(c.seen, key)
			removed++
		}
	}
	return
}

func (c *ReplayGuard) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.seen)
}
