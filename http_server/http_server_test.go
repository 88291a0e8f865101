package http_server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io/ioutil"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ipoluianov/rsablind/attack"
	"github.com/ipoluianov/rsablind/codec"
	"github.com/ipoluianov/rsablind/config"
	"github.com/ipoluianov/rsablind/oracle"
	"github.com/ipoluianov/rsablind/textbook"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const message = "Hallo Alice"

func startServer(t *testing.T, bits int, mode string, perSecond uint64) (*HttpServer, *httptest.Server, *textbook.KeyPair, *big.Int) {
	keyPair, err := textbook.GenerateKeyPair(rand.Reader, bits)
	require.NoError(t, err)
	target, err := keyPair.EncryptText(message)
	require.NoError(t, err)

	conf := config.Default()
	conf.Http.OracleMode = mode
	conf.Http.MaxRequestsPerIPInSecond = perSecond

	srv, err := NewHttpServer(conf, keyPair, target)
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Stop()
	})
	return srv, ts, keyPair, target
}

func TestRemoteSingleQueryBreak(t *testing.T) {
	srv, ts, keyPair, target := startServer(t, 512, config.OracleModeUnrestricted, 1000)
	remote := oracle.NewRemote(ts.URL, 5*time.Second)
	ctx := context.Background()

	publicKey, err := remote.PublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, publicKey.N.Cmp(keyPair.N))

	published, err := remote.Target(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, published.Cmp(target))

	_, err = remote.Respond(ctx, published)
	assert.True(t, errors.Is(err, oracle.ErrAlreadySeen))
	assert.Equal(t, int64(0), srv.OracleCalls())

	trace, err := attack.NewAttacker(publicKey, remote).Recover(ctx, published)
	require.NoError(t, err)
	text, err := codec.Decode(trace.Recovered)
	require.NoError(t, err)
	assert.Equal(t, message, text)
	assert.Equal(t, int64(1), srv.OracleCalls())

	// the same blinded ciphertext is not answered twice
	_, err = remote.Respond(ctx, trace.Blinded)
	assert.True(t, errors.Is(err, oracle.ErrAlreadySeen))

	statistics := srv.Statistics()
	assert.Equal(t, int64(3), statistics.Received)
	assert.Equal(t, int64(1), statistics.Decrypted)
	assert.Equal(t, int64(2), statistics.Replayed)
	assert.Equal(t, 2, statistics.ReplayEntries)
}

func TestRemoteGatedDriver(t *testing.T) {
	srv, ts, _, _ := startServer(t, 96, config.OracleModeGated, 1000000)
	remote := oracle.NewRemote(ts.URL, 5*time.Second)
	ctx := context.Background()

	publicKey, err := remote.PublicKey(ctx)
	require.NoError(t, err)
	target, err := remote.Target(ctx)
	require.NoError(t, err)

	driver := attack.NewDriver(attack.NewAttacker(publicKey, remote), attack.DefaultMaxAttempts)
	result, err := driver.RunParallel(ctx, target, 4)
	require.NoError(t, err)
	require.True(t, result.Found)
	assert.Equal(t, message, result.Text)
	assert.GreaterOrEqual(t, result.Attempts, 1)

	statistics := srv.Statistics()
	assert.GreaterOrEqual(t, statistics.Decrypted, int64(1))
	assert.GreaterOrEqual(t, statistics.OracleCalls, statistics.Decrypted)
}

func TestRateLimit(t *testing.T) {
	srv, ts, _, _ := startServer(t, 128, config.OracleModeGated, 2)
	remote := oracle.NewRemote(ts.URL, 5*time.Second)
	ctx := context.Background()

	var limited bool
	for i := 0; i < 5; i++ {
		_, err := remote.Respond(ctx, big.NewInt(int64(1000+i)))
		if errors.Is(err, oracle.ErrRateLimited) {
			limited = true
			break
		}
		require.NoError(t, err)
	}
	assert.True(t, limited)
	assert.GreaterOrEqual(t, srv.Statistics().Limited, int64(1))
}

func TestBadRequests(t *testing.T) {
	srv, ts, keyPair, _ := startServer(t, 128, config.OracleModeGated, 1000)

	for _, value := range []string{"", "0OIl", oracle.EncodeInt(keyPair.N)} {
		resp, err := http.PostForm(ts.URL+oracle.PathDecrypt, url.Values{oracle.FormCiphertext: {value}})
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, value)
	}
	assert.Equal(t, int64(3), srv.Statistics().BadRequests)
	assert.Equal(t, int64(0), srv.OracleCalls())

	resp, err := http.Get(ts.URL + "/api/unknown")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGatedInvalidAnswer(t *testing.T) {
	_, ts, keyPair, _ := startServer(t, 128, config.OracleModeGated, 1000)
	c := textbook.Encrypt(big.NewInt(0xff), keyPair.E, keyPair.N)

	resp, err := http.Get(ts.URL + oracle.PathDecrypt + "?" + oracle.FormCiphertext + "=" + oracle.EncodeInt(c))
	require.NoError(t, err)
	body, _ := ioutil.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid", strings.TrimSpace(string(body)))
}

func TestStat(t *testing.T) {
	_, ts, _, _ := startServer(t, 128, config.OracleModeGated, 1000)

	resp, err := http.Get(ts.URL + oracle.PathStat)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var statistics Statistics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statistics))
	assert.Equal(t, int64(0), statistics.Received)
	assert.Equal(t, 1, statistics.ReplayEntries)
}

func TestNoTarget(t *testing.T) {
	keyPair, err := textbook.GenerateKeyPair(rand.Reader, 64)
	require.NoError(t, err)
	srv, err := NewHttpServer(config.Default(), keyPair, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	_, err = oracle.NewRemote(ts.URL, time.Second).Target(context.Background())
	assert.Error(t, err)
}

func TestUnknownMode(t *testing.T) {
	keyPair, err := textbook.GenerateKeyPair(rand.Reader, 64)
	require.NoError(t, err)
	conf := config.Default()
	conf.Http.OracleMode = "padded"
	_, err = NewHttpServer(conf, keyPair, nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	keyPair, err := textbook.GenerateKeyPair(rand.Reader, 64)
	require.NoError(t, err)
	conf := config.Default()
	conf.Http.HttpPort = 0
	conf.Core.PurgeIntervalMs = 10
	srv, err := NewHttpServer(conf, keyPair, nil)
	require.NoError(t, err)

	srv.Start()
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, srv.Stop())
}

func TestStopTwice(t *testing.T) {
	keyPair, err := textbook.GenerateKeyPair(rand.Reader, 64)
	require.NoError(t, err)
	conf := config.Default()
	conf.Http.HttpPort = 0
	srv, err := NewHttpServer(conf, keyPair, nil)
	require.NoError(t, err)

	srv.Start()
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, srv.Stop())
	assert.NotPanics(t, func() {
		assert.NoError(t, srv.Stop())
	})
}

func TestGetRealAddr(t *testing.T) {
	keyPair, err := textbook.GenerateKeyPair(rand.Reader, 64)
	require.NoError(t, err)
	srv, err := NewHttpServer(config.Default(), keyPair, nil)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, oracle.PathStat, nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2")
	assert.Equal(t, "10.0.0.1", srv.getRealAddr(r))

	srv.config.Http.UsingProxy = true
	assert.Equal(t, "2.2.2.2", srv.getRealAddr(r))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-Ip", "3.3.3.3")
	assert.Equal(t, "3.3.3.3", srv.getRealAddr(r))
}
