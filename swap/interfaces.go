package swap

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcjson"
)

// InvoiceState mirrors the hold invoice states reported by the Lightning
// node.
type InvoiceState string

const (
	// InvoiceOpen means the invoice has not been paid yet.
	InvoiceOpen InvoiceState = "OPEN"

	// InvoiceAccepted means the customer's HTLC is locked in but the
	// invoice has not been settled: the broker now controls settlement.
	InvoiceAccepted InvoiceState = "ACCEPTED"

	InvoiceSettled  InvoiceState = "SETTLED"
	InvoiceCanceled InvoiceState = "CANCELED"
)

// Utxo is a single unspent output of the Lightning node's on-chain wallet.
type Utxo struct {
	Txid          string
	Vout          uint32
	AmountSat     int64
	Confirmations int64
}

// FeeEstimate is the node's estimate for a hypothetical send.
type FeeEstimate struct {
	FeeSat            int64
	FeeRateSatPerByte int64
}

// LightningClient is the hold-invoice and on-chain wallet surface of the
// Lightning node the coordinator depends on.
type LightningClient interface {
	// CreateHoldInvoice generates an invoice locked to the passed
	// payment hash. It will not auto-settle: settlement happens through
	// SettleInvoice once the preimage is known.
	CreateHoldInvoice(ctx context.Context, paymentHash []byte,
		value, expiry int64) (string, error)

	// LookupInvoice returns the current state of the invoice locked to
	// the passed payment hash.
	LookupInvoice(ctx context.Context,
		paymentHash []byte) (InvoiceState, error)

	// SettleInvoice settles an accepted hold invoice with its preimage.
	// Settling an already settled invoice returns an error that callers
	// may treat as a no-op.
	SettleInvoice(ctx context.Context, preimage []byte) error

	// CancelInvoice cancels an open or accepted hold invoice, returning
	// the customer's HTLC.
	CancelInvoice(ctx context.Context, paymentHash []byte) error

	// SendCoins broadcasts an on-chain send from the node's wallet.
	SendCoins(ctx context.Context, addr string, value int64) (string, error)

	// ListUnspent lists wallet utxos with at least minConfs
	// confirmations.
	ListUnspent(ctx context.Context, minConfs int32) ([]Utxo, error)

	// WalletBalance returns the effective on-chain liquidity: the total
	// balance minus the anchor channel reserve.
	WalletBalance(ctx context.Context) (int64, error)

	// EstimateFee asks the node what a send of value to addr would cost
	// if it were to confirm within targetConf blocks.
	EstimateFee(ctx context.Context, addr string, value int64,
		targetConf int32) (FeeEstimate, error)
}

// ChainClient is the Bitcoin node surface the coordinator and watcher
// depend on.
type ChainClient interface {
	// NewPubKey derives a fresh wallet address and returns its
	// compressed pubkey, used as the broker key in the swap contract.
	NewPubKey(ctx context.Context) ([]byte, error)

	// BlockCount returns the current best block height.
	BlockCount(ctx context.Context) (int64, error)

	// DecodeRawTx decodes a serialised transaction through the node.
	DecodeRawTx(ctx context.Context,
		rawTx []byte) (*btcjson.TxRawResult, error)

	// WatchAddress imports the address as a watch-only descriptor so
	// that spends of its outputs become visible to the node.
	WatchAddress(ctx context.Context, addr string) error
}

// Store is the dual-tier swap store: a TTL cache for pending records and a
// durable document store for accepted and settled ones. A record is never
// meant to live in both tiers; Promote tolerates the brief window where it
// does.
type Store interface {
	// PutPending writes a pending swap into the cache tier under the
	// given TTL. The record vanishes when the TTL lapses.
	PutPending(ctx context.Context, s *Swap, ttl time.Duration) error

	// Get fetches a swap by id, preferring the cache tier.
	Get(ctx context.Context, id string) (*Swap, error)

	// GetDurable fetches a swap from the durable tier only.
	GetDurable(ctx context.Context, id string) (*Swap, error)

	// Promote inserts the swap durably, then deletes the cache entry.
	// It is idempotent so that a lost cache delete can be retried.
	Promote(ctx context.Context, s *Swap) error

	// UpdateDurable overwrites the durable copy of the swap.
	UpdateDurable(ctx context.Context, s *Swap) error

	// CancelPending rewrites the cache entry of a canceled swap with a
	// short TTL.
	CancelPending(ctx context.Context, s *Swap, ttl time.Duration) error

	// FindAccepted locates the accepted swap funded by the given
	// outpoint, as used by the chain watcher.
	FindAccepted(ctx context.Context, fundingTxid string,
		fundingVout uint32) (*Swap, error)
}
