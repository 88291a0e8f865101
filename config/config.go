package config

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
)

const (
	OracleModeUnrestricted = "unrestricted"
	OracleModeGated        = "gated"
)

type Key struct {
	Bits int `json:"bits"`
}

type Attack struct {
	Message     string `json:"message"`
	MaxAttempts int    `json:"max_attempts"`
	Workers     int    `json:"workers"`
}

type Http struct {
	HttpPort                 int    `json:"http_port"`
	UsingProxy               bool   `json:"using_proxy"`
	MaxRequestsPerIPInSecond uint64 `json:"max_requests_per_ip_in_second"`
	RequestTimeoutMs         int    `json:"request_timeout_ms"`
	OracleMode               string `json:"oracle_mode"`
}

type Core struct {
	PurgeIntervalMs int `json:"purge_interval_ms"`
	KeepDataTimeMs  int `json:"keep_data_time_ms"`
}

type Config struct {
	Key    Key    `json:"key"`
	Attack Attack `json:"attack"`
	Core   Core   `json:"core"`
	Http   Http   `json:"http"`
}

func Default() (conf Config) {
	conf.Key.Bits = 1024

	conf.Attack.Message = "Hallo Alice"
	conf.Attack.MaxAttempts = 100000
	conf.Attack.Workers = 4

	conf.Core.PurgeIntervalMs = 5000
	conf.Core.KeepDataTimeMs = 3600000

	conf.Http.HttpPort = 8987
	conf.Http.UsingProxy = false
	conf.Http.MaxRequestsPerIPInSecond = 1000
	conf.Http.RequestTimeoutMs = 10000
	conf.Http.OracleMode = OracleModeGated
	return
}

func LoadFromFile(filePath string) (conf Config, err error) {
	conf = Default()

	var fi os.FileInfo
	var bs []byte
	fi, err = os.Stat(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return
		}

		// write config to file for user convenience if the file is not exist
		bs, err = json.MarshalIndent(conf, "", " ")
		_ = ioutil.WriteFile(filePath, bs, 0660) // it is just helper. ignore errors

	} else {
		if fi.IsDir() {
			err = errors.New("config.json is directory")
			return
		}
		bs, err = ioutil.ReadFile(filePath)
		if err != nil {
			return
		}
		err = json.Unmarshal(bs, &conf)
		if err != nil {
			err = errors.Wrap(err, filePath)
			return
		}
	}

	err = conf.Validate()
	return
}

func (c Config) Validate() error {
	if c.Key.Bits < 32 || c.Key.Bits > 8192 {
		return errors.New("wrong conf.Key.Bits (32..8192)")
	}

	if c.Attack.MaxAttempts < 0 {
		return errors.New("wrong conf.Attack.MaxAttempts")
	}

	if c.Attack.Workers < 1 || c.Attack.Workers > 1024 {
		return errors.New("wrong conf.Attack.Workers (1..1024)")
	}

	if c.Core.PurgeIntervalMs < 1 || c.Core.PurgeIntervalMs > 3600000 {
		return errors.New("wrong conf.Core.PurgeIntervalMs")
	}

	if c.Core.KeepDataTimeMs < 0 {
		return errors.New("wrong conf.Core.KeepDataTimeMs")
	}

	if c.Http.HttpPort < 1 || c.Http.HttpPort > 65535 {
		return errors.New("wrong conf.Http.HttpPort")
	}

	if c.Http.MaxRequestsPerIPInSecond < 1 || c.Http.MaxRequestsPerIPInSecond > 1000000 {
		return errors.New("wrong conf.Http.MaxRequestsPerIPInSecond")
	}

	if c.Http.RequestTimeoutMs < 100 || c.Http.RequestTimeoutMs > 600000 {
		return errors.New("wrong conf.Http.RequestTimeoutMs (100..600000)")
	}

	if c.Http.OracleMode != OracleModeGated && c.Http.OracleMode != OracleModeUnrestricted {
		return errors.Errorf("wrong conf.Http.OracleMode %q", c.Http.OracleMode)
	}

	return nil
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Http.RequestTimeoutMs) * time.Millisecond
}

func (c Config) PurgeInterval() time.Duration {
	return time.Duration(c.Core.PurgeIntervalMs) * time.Millisecond
}

func (c Config) KeepDataTime() time.Duration {
	return time.Duration(c.Core.KeepDataTimeMs) * time.Millisecond
}
