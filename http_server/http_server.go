package http_server

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/ipoluianov/gomisc/logger"
	"github.com/ipoluianov/rsablind/config"
	"github.com/ipoluianov/rsablind/oracle"
	"github.com/ipoluianov/rsablind/textbook"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
)

// HttpServer exposes a textbook RSA decryption oracle. The published target
// ciphertext is registered with the replay guard, so it can never be
// decrypted directly.
type HttpServer struct {
	mtx          sync.Mutex
	srv          *http.Server
	r            *mux.Router
	limiterStore limiter.Store
	config       config.Config

	keyPair  *textbook.KeyPair
	target   *big.Int
	guard    *oracle.ReplayGuard
	counting *oracle.Counting

	statistics Statistics

	stopPurgeRoutineCh chan struct{}
}

func NewHttpServer(conf config.Config, keyPair *textbook.KeyPair, target *big.Int) (*HttpServer, error) {
	var err error
	var c HttpServer

	c.config = conf
	c.keyPair = keyPair
	c.target = target

	var base oracle.Oracle
	switch conf.Http.OracleMode {
	case config.OracleModeUnrestricted:
		base = oracle.NewUnrestricted(keyPair)
	case config.OracleModeGated:
		base = oracle.NewGated(keyPair)
	default:
		return nil, errors.Errorf("unknown oracle mode %q", conf.Http.OracleMode)
	}
	c.counting = oracle.NewCounting(base)
	c.guard = oracle.NewReplayGuard(c.counting, conf.KeepDataTime())
	if target != nil {
		c.guard.Remember(target)
	}

	// Setup limiter
	c.limiterStore, err = memorystore.New(&memorystore.Config{
		Tokens:   c.config.Http.MaxRequestsPerIPInSecond,
		Interval: 1 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "limiter")
	}

	c.r = mux.NewRouter()
	c.r.HandleFunc(oracle.PathKey, c.processKey).Methods(http.MethodGet)
	c.r.HandleFunc(oracle.PathTarget, c.processTarget).Methods(http.MethodGet)
	c.r.HandleFunc(oracle.PathDecrypt, c.processDecrypt).Methods(http.MethodGet, http.MethodPost)
	c.r.HandleFunc(oracle.PathStat, c.processStat).Methods(http.MethodGet)
	c.r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(404)
	})

	return &c, nil
}

func (c *HttpServer) Start() {
	srv := &http.Server{
		Addr:    ":" + fmt.Sprint(c.config.Http.HttpPort),
		Handler: c,
	}
	stopCh := make(chan struct{})

	c.mtx.Lock()
	c.srv = srv
	c.stopPurgeRoutineCh = stopCh
	c.mtx.Unlock()

	go c.purgeRoutine(stopCh)
	go func() {
		logger.Println("[i]", "HttpServer::Start", "listening on", srv.Addr, "mode", c.config.Http.OracleMode)
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logger.Println("[HttpServer]", "[error]", "HttpServer thListen error: ", err)
		}
	}()
}

// Stop may be called more than once.
func (c *HttpServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	_ = c.limiterStore.Close(ctx)
	c.mtx.Lock()
	stopCh := c.stopPurgeRoutineCh
	c.stopPurgeRoutineCh = nil
	srv := c.srv
	c.srv = nil
	c.mtx.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (c *HttpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.r.ServeHTTP(w, r)
}

func (c *HttpServer) OracleCalls() int64 {
	return c.counting.Calls()
}
