package swap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"
)

const (
	testFundingTxid = "aa11223344556677889900aabbccddeeff" +
		"00112233445566778899aabbccddeeff"
	testSweepTxid = "bb11223344556677889900aabbccddeeff" +
		"00112233445566778899aabbccddeeff"
)

// watcherHarness bundles a watcher with its scripted collaborators and one
// accepted swap in the durable tier.
type watcherHarness struct {
	watcher *Watcher
	store   *fakeStore
	lnd     *fakeLightning
	chain   *fakeChain
	swap    *Swap
}

func newWatcherHarness(t *testing.T) *watcherHarness {
	t.Helper()

	vout := uint32(1)
	digest := sha256.Sum256(testPreimage)
	accepted := &Swap{
		ID:          "0011223344556677889900aabbccddee",
		Status:      StatusAccepted,
		Value:       testValue,
		PaymentHash: hex.EncodeToString(digest[:]),
		FundingTxid: testFundingTxid,
		FundingVout: &vout,
	}

	h := &watcherHarness{
		store: newFakeStore(),
		lnd:   &fakeLightning{settleOnce: true},
		chain: &fakeChain{
			decoded: make(map[string]*btcjson.TxRawResult),
		},
		swap: accepted,
	}
	require.NoError(t,
		h.store.UpdateDurable(context.Background(), accepted))

	h.watcher = NewWatcher(WatcherConfig{
		Store:     h.store,
		Lightning: h.lnd,
		Chain:     h.chain,
		Clock:     clock.NewTestClock(testTime),
	})

	return h
}

// sweepTx returns a decoded sweep of the harness swap's funding outpoint
// with the standard five element witness stack.
func (h *watcherHarness) sweepTx() *btcjson.TxRawResult {
	return &btcjson.TxRawResult{
		Txid: testSweepTxid,
		Vin: []btcjson.Vin{{
			Txid: testFundingTxid,
			Vout: 1,
			Witness: []string{
				"aabb", "02cc",
				hex.EncodeToString(testPreimage),
				"01", "deadbeef",
			},
		}},
	}
}

// deliver registers the decoded tx under a raw body and runs the handler on
// the matching publication message.
func (h *watcherHarness) deliver(raw string, tx *btcjson.TxRawResult) {
	h.chain.mu.Lock()
	h.chain.decoded[raw] = tx
	h.chain.mu.Unlock()

	h.watcher.processMessage([][]byte{
		[]byte("rawtx"), []byte(raw), {0x01},
	})
}

// TestWatcherSettles verifies the happy path: a matching sweep settles the
// invoice with the witness preimage and persists the settled swap.
func TestWatcherSettles(t *testing.T) {
	t.Parallel()

	h := newWatcherHarness(t)
	h.deliver("rawsweep", h.sweepTx())

	require.Equal(t, [][]byte{testPreimage}, h.lnd.settled)

	settled := h.store.stored(h.swap.ID)
	require.Equal(t, StatusSettled, settled.Status)
	require.Equal(t, hex.EncodeToString(testPreimage), settled.Preimage)
	require.Equal(t, testTime.Unix(), settled.UpdatedAt)
}

// TestWatcherIdempotent verifies that replaying the same sweep any number
// of times yields the same final state as processing it once.
func TestWatcherIdempotent(t *testing.T) {
	t.Parallel()

	h := newWatcherHarness(t)
	for i := 0; i < 3; i++ {
		h.deliver("rawsweep", h.sweepTx())
	}

	require.Len(t, h.lnd.settled, 1)
	require.Equal(t, StatusSettled, h.store.stored(h.swap.ID).Status)
}

// TestWatcherDiscards covers the filters: every malformed or unrelated
// publication must leave the swap untouched.
func TestWatcherDiscards(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(tx *btcjson.TxRawResult) *btcjson.TxRawResult
	}{{
		name: "two inputs",
		mutate: func(tx *btcjson.TxRawResult) *btcjson.TxRawResult {
			tx.Vin = append(tx.Vin, tx.Vin[0])
			return tx
		},
	}, {
		name: "coinbase input",
		mutate: func(tx *btcjson.TxRawResult) *btcjson.TxRawResult {
			tx.Vin[0].Coinbase = "04ffff001d0104"
			return tx
		},
	}, {
		name: "unknown outpoint",
		mutate: func(tx *btcjson.TxRawResult) *btcjson.TxRawResult {
			tx.Vin[0].Vout = 0
			return tx
		},
	}, {
		name: "wrong witness size",
		mutate: func(tx *btcjson.TxRawResult) *btcjson.TxRawResult {
			tx.Vin[0].Witness = tx.Vin[0].Witness[:3]
			return tx
		},
	}, {
		name: "preimage does not match payment hash",
		mutate: func(tx *btcjson.TxRawResult) *btcjson.TxRawResult {
			tx.Vin[0].Witness[2] = hex.EncodeToString(
				make([]byte, 32),
			)
			return tx
		},
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newWatcherHarness(t)
			h.deliver("rawsweep", tc.mutate(h.sweepTx()))

			require.Empty(t, h.lnd.settled)
			require.Equal(t, StatusAccepted,
				h.store.stored(h.swap.ID).Status)
		})
	}
}

// TestWatcherIgnoresOtherTopics verifies the topic filter and that a
// malformed short message is dropped without decoding.
func TestWatcherIgnoresOtherTopics(t *testing.T) {
	t.Parallel()

	h := newWatcherHarness(t)

	h.watcher.processMessage([][]byte{[]byte("rawblock"), {0x00}, {0x01}})
	h.watcher.processMessage([][]byte{[]byte("rawtx")})

	require.Empty(t, h.lnd.settled)
	require.Equal(t, StatusAccepted, h.store.stored(h.swap.ID).Status)
}

// TestWatcherLifecycle runs a message end to end through the queue to make
// sure Start, Deliver and Stop compose.
func TestWatcherLifecycle(t *testing.T) {
	t.Parallel()

	h := newWatcherHarness(t)

	h.chain.mu.Lock()
	h.chain.decoded["rawsweep"] = h.sweepTx()
	h.chain.mu.Unlock()

	h.watcher.Start()
	h.watcher.Deliver([][]byte{[]byte("rawtx"), []byte("rawsweep"), {1}})

	require.Eventually(t, func() bool {
		return h.store.stored(h.swap.ID).Status == StatusSettled
	}, 5*time.Second, 10*time.Millisecond)

	h.watcher.Stop()
}
