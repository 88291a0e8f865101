package http_server

import (
	"math/big"
	"net/http"

	"github.com/ipoluianov/gomisc/logger"
	"github.com/ipoluianov/rsablind/oracle"
	"github.com/pkg/errors"
)

// take applies the per-IP limiter and answers 429 when it is exhausted.
func (c *HttpServer) take(w http.ResponseWriter, r *http.Request) bool {
	ipAddr := c.getRealAddr(r)
	_, _, _, limiterOK, _ := c.limiterStore.Take(r.Context(), ipAddr)
	if !limiterOK {
		c.mtx.Lock()
		c.statistics.Limited++
		c.mtx.Unlock()
		c.writeError(w, http.StatusTooManyRequests, oracle.ErrRateLimited)
		return false
	}
	return true
}

func (c *HttpServer) writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(200)
	_, _ = w.Write([]byte(text))
}

func (c *HttpServer) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(err.Error()))
}

func (c *HttpServer) processKey(w http.ResponseWriter, r *http.Request) {
	if !c.take(w, r) {
		return
	}
	c.writeText(w, oracle.EncodePublicKey(c.keyPair.Public()))
}

func (c *HttpServer) processTarget(w http.ResponseWriter, r *http.Request) {
	if !c.take(w, r) {
		return
	}
	if c.target == nil {
		c.writeError(w, http.StatusNotFound, errors.New("no target published"))
		return
	}
	c.writeText(w, oracle.EncodeInt(c.target))
}

func (c *HttpServer) processDecrypt(w http.ResponseWriter, r *http.Request) {
	if !c.take(w, r) {
		return
	}

	c.mtx.Lock()
	c.statistics.Received++
	c.mtx.Unlock()

	ciphertext, err := oracle.DecodeInt(r.FormValue(oracle.FormCiphertext))
	if err == nil && ciphertext.Cmp(c.keyPair.N) >= 0 {
		err = errors.New("ciphertext out of range")
	}
	if err != nil {
		c.mtx.Lock()
		c.statistics.BadRequests++
		c.mtx.Unlock()
		c.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := c.respond(r, ciphertext)
	if err != nil {
		status := http.StatusInternalServerError
		c.mtx.Lock()
		if errors.Is(err, oracle.ErrAlreadySeen) {
			status = http.StatusConflict
			c.statistics.Replayed++
		}
		c.mtx.Unlock()
		logger.Println("[i]", "HttpServer::processDecrypt", "refused from", c.getRealAddr(r), err)
		c.writeError(w, status, err)
		return
	}

	if !resp.Valid() {
		c.mtx.Lock()
		c.statistics.Invalid++
		c.mtx.Unlock()
		c.writeError(w, http.StatusUnprocessableEntity, errors.New("invalid"))
		return
	}

	c.mtx.Lock()
	c.statistics.Decrypted++
	c.mtx.Unlock()
	c.writeText(w, oracle.EncodeInt(resp.Plaintext()))
}

// respond refuses the published target regardless of replay expiry.
func (c *HttpServer) respond(r *http.Request, ciphertext *big.Int) (oracle.Response, error) {
	if c.target != nil && ciphertext.Cmp(c.target) == 0 {
		return oracle.Invalid, oracle.ErrAlreadySeen
	}
	return c.guard.Respond(r.Context(), ciphertext)
}
