package main

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/lightningswap/subswapd/bitcoind"
	"github.com/lightningswap/subswapd/lightning"
	"github.com/lightningswap/subswapd/swap"
	"github.com/lightningswap/subswapd/swapdb"
)

// backendLog is the logging backend used to create all subsystem loggers.
var backendLog = btclog.NewBackend(os.Stdout)

// Loggers per subsystem. A single backend is used for all of them, so the
// daemon's output interleaves in one stream.
var (
	swpdLog = backendLog.Logger("SWPD")
	swapLog = backendLog.Logger("SWAP")
	swdbLog = backendLog.Logger("SWDB")
	lndcLog = backendLog.Logger("LNDC")
	btcdLog = backendLog.Logger("BTCD")
	restLog = backendLog.Logger("REST")
)

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"SWPD": swpdLog,
	"SWAP": swapLog,
	"SWDB": swdbLog,
	"LNDC": lndcLog,
	"BTCD": btcdLog,
	"REST": restLog,
}

// Initialize package-global logger variables.
func init() {
	swap.UseLogger(swapLog)
	swapdb.UseLogger(swdbLog)
	lightning.UseLogger(lndcLog)
	bitcoind.UseLogger(btcdLog)
}

// setLogLevels sets the log level for all subsystem loggers. Invalid levels
// fall back to info.
func setLogLevels(logLevel string) {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		level = btclog.LevelInfo
	}

	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}
