// subswapd is a non-custodial submarine swap broker: it exchanges an
// off-chain Lightning payment for an on-chain payment locked behind a hash
// time-locked contract. Two workers share nothing but the swap store and
// the node façades: the request-driven coordinator behind the HTTP API, and
// the chain watcher settling swaps as preimages are revealed on-chain.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/lightningswap/subswapd/bitcoind"
	"github.com/lightningswap/subswapd/lightning"
	"github.com/lightningswap/subswapd/swap"
	"github.com/lightningswap/subswapd/swapdb"
)

func main() {
	if err := subswapdMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// subswapdMain wires the collaborators together and runs both workers
// until an interrupt arrives.
func subswapdMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setLogLevels(cfg.LogLevel)

	// The chain view is required to operate; fail fast when the node is
	// unreachable.
	chainClient, err := bitcoind.New(bitcoind.Config{
		URL: cfg.BitcoinURL,
	})
	if err != nil {
		swpdLog.Criticalf("%v", err)
		return err
	}
	defer chainClient.Close()

	var tlsCert []byte
	if cfg.LndCertificate != "" {
		tlsCert, err = os.ReadFile(
			cleanAndExpandPath(cfg.LndCertificate),
		)
		if err != nil {
			return err
		}
	}
	lndClient, err := lightning.New(cfg.LndHost, cfg.LndMacaroon, tlsCert)
	if err != nil {
		return err
	}

	cache := redis.NewClient(&redis.Options{
		Addr: net.JoinHostPort(
			cfg.RedisHost, strconv.Itoa(cfg.RedisPort),
		),
		Password: cfg.RedisPass,
	})
	defer cache.Close()

	store, err := swapdb.Open(cfg.DataDir, cache)
	if err != nil {
		return err
	}
	defer store.Close()

	coordinator := swap.NewCoordinator(swap.Config{
		Store:          store,
		Lightning:      lndClient,
		Chain:          chainClient,
		ChainParams:    chainClient.ChainParams(),
		MinAmount:      cfg.MinAmount,
		MaxAmount:      cfg.MaxAmount,
		ServiceFeeRate: cfg.ServiceFeeRate,
	})

	watcher := swap.NewWatcher(swap.WatcherConfig{
		Store:     store,
		Lightning: lndClient,
		Chain:     chainClient,
	})
	watcher.Start()
	defer watcher.Stop()

	reader := bitcoind.NewRawTxReader(cfg.BitcoinZMQRawTx)
	reader.Start(watcher.Deliver)
	defer reader.Stop()

	listenAddr := net.JoinHostPort(cfg.APIHost, strconv.Itoa(cfg.APIPort))
	server := newRESTServer(listenAddr, coordinator)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.start()
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err

	case <-interrupt:
		swpdLog.Infof("Received interrupt, shutting down")
		return server.stop()
	}
}
