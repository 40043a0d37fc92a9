package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultAPIHost        = "0.0.0.0"
	defaultAPIPort        = 9652
	defaultServiceFeeRate = 0.5
	defaultMinAmount      = 100000
	defaultMaxAmount      = 100000000
	defaultDataDir        = "~/submarine-swap/data"
	defaultLndHost        = "https://127.0.0.1:8080"
	defaultRedisHost      = "127.0.0.1"
	defaultRedisPort      = 6379
	defaultLogLevel       = "info"
)

// config describes the configuration of the broker. Every option can be set
// through the environment, matching the deployment surface of the daemon.
type config struct {
	APIHost string `long:"apihost" env:"API_HOST" description:"Address the HTTP API listens on"`
	APIPort int    `long:"apiport" env:"API_PORT" description:"Port the HTTP API listens on"`

	ServiceFeeRate float64 `long:"servicefeerate" env:"SWAP_SERVICE_FEERATE" description:"Service fee in percent of the swap value"`
	MinAmount      int64   `long:"minamount" env:"SWAP_MIN_AMOUNT" description:"Minimum swap value in satoshi"`
	MaxAmount      int64   `long:"maxamount" env:"SWAP_MAX_AMOUNT" description:"Maximum swap value in satoshi"`

	BitcoinURL      string `long:"btcurl" env:"BTC_URL" description:"Bitcoin node RPC URL including credentials"`
	BitcoinZMQRawTx string `long:"btczmqrawtx" env:"BTC_ZMQ_RAW_TX" description:"Bitcoin node rawtx ZMQ publisher address"`

	LndHost        string `long:"lndhost" env:"LND_HOST" description:"Lightning node REST host"`
	LndMacaroon    string `long:"lndmacaroon" env:"LND_MACAROON" description:"Hex encoded macaroon for the Lightning node"`
	LndCertificate string `long:"lndcertificate" env:"LND_CERTIFICATE" description:"Path to the Lightning node TLS certificate"`

	RedisHost string `long:"redishost" env:"REDIS_HOST" description:"Cache host"`
	RedisPort int    `long:"redisport" env:"REDIS_PORT" description:"Cache port"`
	RedisPass string `long:"redispass" env:"REDIS_PASS" description:"Cache password"`

	DataDir  string `long:"datadir" env:"DATA_DIR" description:"Directory holding the durable swap store"`
	LogLevel string `long:"loglevel" env:"LOG_LEVEL" description:"Logging level {trace, debug, info, warn, error, critical}"`
}

// loadConfig parses the environment and command line into a config,
// applying defaults and creating the data directory.
func loadConfig() (*config, error) {
	cfg := &config{
		APIHost:        defaultAPIHost,
		APIPort:        defaultAPIPort,
		ServiceFeeRate: defaultServiceFeeRate,
		MinAmount:      defaultMinAmount,
		MaxAmount:      defaultMaxAmount,
		LndHost:        defaultLndHost,
		RedisHost:      defaultRedisHost,
		RedisPort:      defaultRedisPort,
		DataDir:        defaultDataDir,
		LogLevel:       defaultLogLevel,
	}

	if _, err := flags.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.BitcoinURL == "" {
		return nil, fmt.Errorf("BTC_URL is required")
	}
	if cfg.BitcoinZMQRawTx == "" {
		return nil, fmt.Errorf("BTC_ZMQ_RAW_TX is required")
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, err
	}

	return cfg, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, then cleans the result.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := ""
		if u, err := user.Current(); err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
