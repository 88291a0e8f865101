package oracle

import (
	"context"
	"io"
	"io/ioutil"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ipoluianov/rsablind/textbook"
	"github.com/pkg/errors"
)

var ErrRateLimited = errors.New("too frequent requests")

const (
	PathKey     = "/api/key"
	PathTarget  = "/api/target"
	PathDecrypt = "/api/decrypt"
	PathStat    = "/api/stat"

	FormCiphertext = "c"

	maxResponseSize = 1024 * 1024
)

// Remote is an Oracle served by http_server. Each query is a separate,
// cancellable request bounded by the client timeout.
type Remote struct {
	baseURL string
	client  *http.Client
}

func NewRemote(baseURL string, timeout time.Duration) *Remote {
	var c Remote
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.client = &http.Client{
		Timeout: timeout,
	}
	return &c
}

func (c *Remote) Respond(ctx context.Context, ciphertext *big.Int) (Response, error) {
	form := url.Values{}
	form.Set(FormCiphertext, EncodeInt(ciphertext))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PathDecrypt, strings.NewReader(form.Encode()))
	if err != nil {
		return Invalid, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := c.do(req)
	if err != nil {
		return Invalid, err
	}

	switch status {
	case http.StatusOK:
		var m *big.Int
		m, err = DecodeInt(body)
		if err != nil {
			return Invalid, err
		}
		return Plain(m), nil
	case http.StatusUnprocessableEntity:
		return Invalid, nil
	case http.StatusConflict:
		return Invalid, ErrAlreadySeen
	case http.StatusTooManyRequests:
		return Invalid, ErrRateLimited
	}
	return Invalid, errors.Errorf("oracle: status %d: %s", status, body)
}

// PublicKey fetches the public key of the oracle service.
func (c *Remote) PublicKey(ctx context.Context) (publicKey textbook.PublicKey, err error) {
	var body string
	body, err = c.get(ctx, PathKey)
	if err != nil {
		return
	}
	return DecodePublicKey(body)
}

// Target fetches the ciphertext the service published as the attack target.
func (c *Remote) Target(ctx context.Context) (*big.Int, error) {
	body, err := c.get(ctx, PathTarget)
	if err != nil {
		return nil, err
	}
	return DecodeInt(body)
}

func (c *Remote) get(ctx context.Context, path string) (body string, err error) {
	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return
	}
	var status int
	status, body, err = c.do(req)
	if err != nil {
		return
	}
	if status == http.StatusTooManyRequests {
		err = ErrRateLimited
		return
	}
	if status != http.StatusOK {
		err = errors.Errorf("GET %s: status %d: %s", path, status, body)
	}
	return
}

func (c *Remote) do(req *http.Request) (status int, body string, err error) {
	var resp *http.Response
	resp, err = c.client.Do(req)
	if err != nil {
		err = errors.Wrap(err, "oracle request")
		return
	}
	defer resp.Body.Close()

	var bs []byte
	bs, err = ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		err = errors.Wrap(err, "oracle response")
		return
	}
	status = resp.StatusCode
	body = strings.TrimSpace(string(bs))
	return
}
