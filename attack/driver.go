package attack

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ipoluianov/gomisc/logger"
	"github.com/ipoluianov/rsablind/codec"
	"github.com/pkg/errors"
)

const DefaultMaxAttempts = 100000

var ErrExhausted = errors.New("attempt budget exhausted")

// Result of a bounded run. Found is false when the budget ran out.
type Result struct {
	Text            string
	Found           bool
	Attempts        int
	Inconsistencies int
	Trace           *Trace
}

func (r Result) Err() error {
	if r.Found {
		return nil
	}
	return errors.Wrapf(ErrExhausted, "no plaintext after %d attempts", r.Attempts)
}

// Driver repeats blinding rounds against an oracle that may refuse to answer,
// until one recovered plaintext decodes or the attempt budget is spent.
type Driver struct {
	attacker    *Attacker
	maxAttempts int
}

func NewDriver(attacker *Attacker, maxAttempts int) *Driver {
	var c Driver
	c.attacker = attacker
	c.maxAttempts = maxAttempts
	if c.maxAttempts < 0 {
		c.maxAttempts = 0
	}
	return &c
}

func (c *Driver) MaxAttempts() int {
	return c.maxAttempts
}

// accept decodes a recovered plaintext. A failure here means the oracle and
// the unblinding disagree; the attempt is retried and the event is counted.
func (c *Driver) accept(trace Trace, attempt int) (text string, ok bool) {
	var err error
	text, err = codec.Decode(trace.Recovered)
	if err != nil {
		logger.Println("[WARNING]", "Driver::accept", "attempt", attempt, "unblinded plaintext does not decode:", err)
		return
	}
	ok = true
	return
}

// Run executes attempts one after another. The budget is checked before each
// attempt, so a budget of 0 never calls the oracle.
func (c *Driver) Run(ctx context.Context, ciphertext *big.Int) (result Result, err error) {
	for result.Attempts < c.maxAttempts {
		if err = ctx.Err(); err != nil {
			return
		}
		result.Attempts++

		var trace Trace
		var ok bool
		trace, ok, err = c.attacker.Attempt(ctx, ciphertext)
		if err != nil {
			return
		}
		if !ok {
			continue
		}

		text, accepted := c.accept(trace, result.Attempts)
		if !accepted {
			result.Inconsistencies++
			continue
		}
		result.Text = text
		result.Found = true
		result.Trace = &trace
		logger.Println("[i]", "Driver::Run", "plaintext recovered after", result.Attempts, "attempts")
		return
	}
	logger.Println("[i]", "Driver::Run", "budget exhausted after", result.Attempts, "attempts")
	return
}

// RunParallel keeps up to workers attempts in flight, each with its own
// blinding factor. The first decoded plaintext wins and cancels the rest.
// Attempts cut short by that cancellation are not counted.
func (c *Driver) RunParallel(ctx context.Context, ciphertext *big.Int, workers int) (result Result, err error) {
	if workers <= 1 {
		return c.Run(ctx, ciphertext)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var reserved int64
	var mtx sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for runCtx.Err() == nil {
				attempt := atomic.AddInt64(&reserved, 1)
				if attempt > int64(c.maxAttempts) {
					return
				}

				trace, ok, attemptErr := c.attacker.Attempt(runCtx, ciphertext)

				mtx.Lock()
				if attemptErr == nil || runCtx.Err() == nil {
					result.Attempts++
				}
				switch {
				case attemptErr != nil:
					if runCtx.Err() == nil {
						firstErr = attemptErr
						cancel()
					}
				case ok && !result.Found:
					if text, accepted := c.accept(trace, int(attempt)); accepted {
						result.Text = text
						result.Found = true
						t := trace
						result.Trace = &t
						cancel()
					} else {
						result.Inconsistencies++
					}
				}
				mtx.Unlock()
			}
		}()
	}
	wg.Wait()

	switch {
	case result.Found:
		logger.Println("[i]", "Driver::RunParallel", "plaintext recovered after", result.Attempts, "attempts,", workers, "workers")
	case firstErr != nil:
		err = firstErr
	case ctx.Err() != nil:
		err = ctx.Err()
	default:
		logger.Println("[i]", "Driver::RunParallel", "budget exhausted after", result.Attempts, "attempts")
	}
	return
}
