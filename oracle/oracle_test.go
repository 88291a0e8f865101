package oracle

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ipoluianov/rsablind/textbook"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *textbook.KeyPair {
	keyPair, err := textbook.GenerateKeyPair(rand.Reader, 128)
	require.NoError(t, err)
	return keyPair
}

func TestUnrestricted(t *testing.T) {
	keyPair := testKey(t)
	o := NewUnrestricted(keyPair)

	for _, m := range []int64{0, 1, 0xff, 0x41} {
		c := textbook.Encrypt(big.NewInt(m), keyPair.E, keyPair.N)
		resp, err := o.Respond(context.Background(), c)
		require.NoError(t, err)
		require.True(t, resp.Valid())
		assert.Equal(t, m, resp.Plaintext().Int64())
	}
}

func TestGated(t *testing.T) {
	keyPair := testKey(t)
	o := NewGated(keyPair)
	ctx := context.Background()

	c, err := keyPair.EncryptText("ok")
	require.NoError(t, err)
	resp, err := o.Respond(ctx, c)
	require.NoError(t, err)
	require.True(t, resp.Valid())
	assert.Equal(t, "ok", string(resp.Plaintext().Bytes()))

	c = textbook.Encrypt(big.NewInt(0xff), keyPair.E, keyPair.N)
	resp, err = o.Respond(ctx, c)
	require.NoError(t, err)
	assert.False(t, resp.Valid())
	assert.Nil(t, resp.Plaintext())
	assert.Equal(t, "invalid", resp.String())
}

func TestCounting(t *testing.T) {
	keyPair := testKey(t)
	o := NewCounting(NewUnrestricted(keyPair))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = o.Respond(context.Background(), big.NewInt(int64(i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(16), o.Calls())
}

func TestReplayGuard(t *testing.T) {
	keyPair := testKey(t)
	guard := NewReplayGuard(NewUnrestricted(keyPair), 0)
	ctx := context.Background()

	target, err := keyPair.EncryptText("secret")
	require.NoError(t, err)
	guard.Remember(target)

	_, err = guard.Respond(ctx, target)
	assert.True(t, errors.Is(err, ErrAlreadySeen))

	other := big.NewInt(12345)
	_, err = guard.Respond(ctx, other)
	require.NoError(t, err)
	_, err = guard.Respond(ctx, other)
	assert.True(t, errors.Is(err, ErrAlreadySeen))

	assert.Equal(t, 2, guard.Len())
	assert.Equal(t, 0, guard.Purge(time.Now().Add(time.Hour)))
}

func TestReplayGuardExpiry(t *testing.T) {
	keyPair := testKey(t)
	guard := NewReplayGuard(NewUnrestricted(keyPair), time.Minute)
	guard.Remember(big.NewInt(7))

	assert.Equal(t, 0, guard.Purge(time.Now()))
	assert.Equal(t, 1, guard.Purge(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, guard.Len())

	_, err := guard.Respond(context.Background(), big.NewInt(7))
	assert.NoError(t, err)
}

func TestWireInt(t *testing.T) {
	for _, v := range []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(256), new(big.Int).Lsh(big.NewInt(1), 1000)} {
		s := EncodeInt(v)
		assert.NotEmpty(t, s)
		got, err := DecodeInt(s)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Cmp(v))
	}

	_, err := DecodeInt("")
	assert.True(t, errors.Is(err, ErrWireFormat))
	_, err = DecodeInt("0OIl")
	assert.True(t, errors.Is(err, ErrWireFormat))
}

func TestWirePublicKey(t *testing.T) {
	keyPair := testKey(t)
	publicKey, err := DecodePublicKey(EncodePublicKey(keyPair.Public()))
	require.NoError(t, err)
	assert.Equal(t, 0, publicKey.N.Cmp(keyPair.N))
	assert.Equal(t, 0, publicKey.E.Cmp(keyPair.E))

	_, err = DecodePublicKey("")
	assert.Error(t, err)
}

func TestRemoteStatusMapping(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathDecrypt, r.URL.Path)
		c, err := DecodeInt(r.FormValue(FormCiphertext))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(EncodeInt(c.Add(c, big.NewInt(1)))))
	}))
	defer srv.Close()

	o := NewRemote(srv.URL+"/", time.Second)
	ctx := context.Background()

	resp, err := o.Respond(ctx, big.NewInt(41))
	require.NoError(t, err)
	require.True(t, resp.Valid())
	assert.Equal(t, int64(42), resp.Plaintext().Int64())

	status = http.StatusUnprocessableEntity
	resp, err = o.Respond(ctx, big.NewInt(41))
	require.NoError(t, err)
	assert.False(t, resp.Valid())

	status = http.StatusConflict
	_, err = o.Respond(ctx, big.NewInt(41))
	assert.True(t, errors.Is(err, ErrAlreadySeen))

	status = http.StatusTooManyRequests
	_, err = o.Respond(ctx, big.NewInt(41))
	assert.True(t, errors.Is(err, ErrRateLimited))

	status = http.StatusInternalServerError
	_, err = o.Respond(ctx, big.NewInt(41))
	assert.Error(t, err)
}

func TestRemoteCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewRemote(srv.URL, 10*time.Second).Respond(ctx, big.NewInt(1))
	assert.Error(t, err)
}
