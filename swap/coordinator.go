package swap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/lightningswap/subswapd/htlc"
)

const (
	// dustLimit is the smallest payout the broker will fund. Outputs at
	// or below this value are non-standard.
	dustLimit = 565

	// locktimeDelta is the number of blocks between the creation height
	// and the height at which the refund branch matures.
	locktimeDelta = 6

	// blockIntervalSeconds is the expected block interval used to derive
	// the pending record's cache TTL from the locktime window. The 2x
	// factor gives the customer twice the refund horizon to pay the
	// invoice.
	blockIntervalSeconds = 600

	// invoiceExpirySeconds is the hold invoice expiry requested from the
	// Lightning node.
	invoiceExpirySeconds = 3600

	// fundingCancelTTL is how long a canceled swap stays visible in the
	// cache after a failed funding broadcast.
	fundingCancelTTL = 600 * time.Second

	// feeConfTarget is the confirmation target used when estimating the
	// funding fee.
	feeConfTarget = 1
)

// Config packages the collaborators and policy knobs of the coordinator.
// The node handles are process-wide singletons supplied at construction.
type Config struct {
	Store     Store
	Lightning LightningClient
	Chain     ChainClient

	// ChainParams selects the network the P2WSH addresses are encoded
	// for.
	ChainParams *chaincfg.Params

	// MinAmount and MaxAmount bound the accepted payout value, in
	// satoshi.
	MinAmount int64
	MaxAmount int64

	// ServiceFeeRate is the broker's service fee in percent of the
	// payout value.
	ServiceFeeRate float64

	// Clock stamps created_at/updated_at. Nil defaults to the wall
	// clock.
	Clock clock.Clock
}

// Coordinator drives a swap through its lifecycle: creation, the funding
// transition once the hold invoice locks, and settlement. All swap state
// mutation goes through the store; the coordinator itself is stateless and
// safe for concurrent use.
type Coordinator struct {
	cfg Config
}

// NewCoordinator returns a coordinator using the passed collaborators.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Coordinator{cfg: cfg}
}

// Create validates the request, builds the swap contract and registers a
// pending swap: a fresh broker key, the witness script and its P2WSH
// address, a hold invoice locked to the customer's payment hash, and a
// cache record bounded by the locktime-derived TTL.
func (c *Coordinator) Create(ctx context.Context, pubKeyHex string,
	value int64, paymentHashHex string) (*Swap, error) {

	if len(pubKeyHex) < 64 {
		return nil, ErrInvalidPubKey
	}
	if value <= dustLimit {
		return nil, ErrBelowDust
	}
	if value < c.cfg.MinAmount {
		return nil, ErrBelowMinimum
	}
	if value > c.cfg.MaxAmount {
		return nil, ErrAboveMaximum
	}
	if len(paymentHashHex) != 64 {
		return nil, ErrInvalidPaymentHash
	}

	paymentHash, err := hex.DecodeString(paymentHashHex)
	if err != nil {
		return nil, ErrInvalidPaymentHash
	}
	customerKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, ErrInvalidPubKey
	}

	brokerKey, err := c.cfg.Chain.NewPubKey(ctx)
	if err != nil {
		return nil, err
	}
	height, err := c.cfg.Chain.BlockCount(ctx)
	if err != nil {
		return nil, err
	}
	locktime := height + locktimeDelta

	witnessScript, err := htlc.WitnessScript(
		paymentHash, brokerKey, customerKey, uint32(locktime),
	)
	if err != nil {
		return nil, ErrInvalidPubKey
	}
	addr, err := htlc.P2WSHAddress(witnessScript, c.cfg.ChainParams)
	if err != nil {
		return nil, err
	}

	fee, err := c.cfg.Lightning.EstimateFee(
		ctx, addr.String(), value, feeConfTarget,
	)
	if err != nil || fee.FeeRateSatPerByte == 0 {
		return nil, ErrFeeEstimation
	}

	feeNetwork := fee.FeeSat / fee.FeeRateSatPerByte
	feeService := int64(float64(value) * c.cfg.ServiceFeeRate / 100)

	// The funding send comes out of the Lightning node's on-chain
	// wallet, so the payout plus its network fee must fit within the
	// effective balance. A balance query failure reads as zero.
	balance, err := c.cfg.Lightning.WalletBalance(ctx)
	if err != nil {
		balance = 0
	}
	if value+feeNetwork > balance {
		return nil, ErrInsufficientLiquidity
	}

	// The customer releases the payout plus both fees off-chain.
	invoice, err := c.cfg.Lightning.CreateHoldInvoice(
		ctx, paymentHash, value+feeNetwork+feeService,
		invoiceExpirySeconds,
	)
	if err != nil {
		return nil, ErrInvoiceCreation
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}

	expiry := 2 * blockIntervalSeconds * (locktime - height)
	now := c.cfg.Clock.Now().Unix()

	s := &Swap{
		ID:           id,
		Status:       StatusPending,
		Value:        value,
		Invoice:      invoice,
		PaymentHash:  paymentHashHex,
		Address:      addr.String(),
		RedeemScript: hex.EncodeToString(witnessScript),
		Locktime:     locktime,
		FeeNetwork:   feeNetwork,
		FeeService:   feeService,
		Expiry:       expiry,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ttl := time.Duration(expiry) * time.Second
	if err := c.cfg.Store.PutPending(ctx, s, ttl); err != nil {
		return nil, err
	}

	log.Infof("Created swap %v: value=%d address=%v locktime=%d",
		s.ID, s.Value, s.Address, s.Locktime)
	swapsCreated.Inc()

	return s, nil
}

// Lookup fetches a swap by id. When the swap is still pending and the
// Lightning node reports its invoice as accepted, Lookup performs the
// funding transition before returning.
func (c *Coordinator) Lookup(ctx context.Context, id string) (*Swap, error) {
	s, err := c.cfg.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPending {
		return s, nil
	}

	paymentHash, err := hex.DecodeString(s.PaymentHash)
	if err != nil {
		return nil, err
	}
	state, err := c.cfg.Lightning.LookupInvoice(ctx, paymentHash)
	if err != nil {
		return nil, err
	}
	if state != InvoiceAccepted {
		return s, nil
	}

	return c.fund(ctx, s)
}

// fund performs the funding transition of a pending swap whose invoice has
// been accepted: watch the contract address, broadcast the funding send,
// record the funding outpoint and promote the record to the durable store.
// The transition is not transactional across the two nodes; if a later step
// fails, the next Lookup reconciles.
func (c *Coordinator) fund(ctx context.Context, s *Swap) (*Swap, error) {
	// A durable copy of this id means a previous transition already
	// broadcast the funding transaction but lost the race to clear the
	// cache entry. Finish the promotion instead of funding twice.
	if dur, err := c.cfg.Store.GetDurable(ctx, s.ID); err == nil {
		if err := c.cfg.Store.Promote(ctx, dur); err != nil {
			return nil, err
		}

		return dur, nil
	}

	// The descriptor import must land before the send so that the
	// watch-only wallet observes the funding output, and any later
	// spend of it, from the outset.
	if err := c.cfg.Chain.WatchAddress(ctx, s.Address); err != nil {
		return nil, err
	}

	txid, err := c.cfg.Lightning.SendCoins(ctx, s.Address, s.Value)
	if err != nil || txid == "" {
		return c.cancelFunding(ctx, s)
	}

	vout, err := c.locateFundingVout(ctx, txid)
	if err != nil {
		return nil, err
	}

	s.Status = StatusAccepted
	s.FundingTxid = txid
	s.FundingVout = &vout
	s.UpdatedAt = c.cfg.Clock.Now().Unix()

	if err := c.cfg.Store.Promote(ctx, s); err != nil {
		return nil, err
	}

	log.Infof("Swap %v accepted: funding %v:%d", s.ID, txid, vout)

	return s, nil
}

// cancelFunding transitions a swap whose funding broadcast failed to
// canceled: the cache entry is rewritten on a short TTL and the hold
// invoice is cancelled, returning the customer's HTLC.
func (c *Coordinator) cancelFunding(ctx context.Context,
	s *Swap) (*Swap, error) {

	s.Status = StatusCanceled
	s.UpdatedAt = c.cfg.Clock.Now().Unix()

	if err := c.cfg.Store.CancelPending(ctx, s, fundingCancelTTL); err != nil {
		return nil, err
	}

	paymentHash, err := hex.DecodeString(s.PaymentHash)
	if err != nil {
		return nil, err
	}
	if err := c.cfg.Lightning.CancelInvoice(ctx, paymentHash); err != nil {
		log.Errorf("Unable to cancel invoice of swap %v: %v", s.ID, err)
	}

	log.Warnf("Swap %v canceled: funding broadcast failed", s.ID)
	swapsCanceled.Inc()

	return s, nil
}

// locateFundingVout finds the HTLC output index of the funding transaction.
// The wallet reports the change output through listunspent, so the contract
// output is the other output of the same transaction: utxo index 0 puts the
// HTLC at vout 1, anything else at vout 0.
func (c *Coordinator) locateFundingVout(ctx context.Context,
	txid string) (uint32, error) {

	utxos, err := c.cfg.Lightning.ListUnspent(ctx, 0)
	if err != nil {
		return 0, err
	}

	for _, utxo := range utxos {
		if utxo.Txid != txid {
			continue
		}
		if utxo.Vout == 0 {
			return 1, nil
		}

		return 0, nil
	}

	return 0, fmt.Errorf("funding output of %v not found", txid)
}

// Settle is the manual settlement path, the fallback for when the chain
// watcher has not yet observed the sweep. It is only valid on an accepted
// swap and requires the preimage of the swap's payment hash.
func (c *Coordinator) Settle(ctx context.Context, id,
	preimageHex string) (*Swap, error) {

	s, err := c.cfg.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusAccepted {
		return nil, ErrSwapNotFound
	}

	preimage, err := hex.DecodeString(preimageHex)
	if err != nil {
		return nil, ErrInvalidPreimage
	}
	digest := sha256.Sum256(preimage)
	if hex.EncodeToString(digest[:]) != s.PaymentHash {
		return nil, ErrInvalidPreimage
	}

	if err := c.cfg.Lightning.SettleInvoice(ctx, preimage); err != nil {
		return nil, ErrInvalidPreimage
	}

	s.Status = StatusSettled
	s.Preimage = preimageHex
	s.UpdatedAt = c.cfg.Clock.Now().Unix()

	if err := c.cfg.Store.UpdateDurable(ctx, s); err != nil {
		return nil, err
	}

	log.Infof("Swap %v settled manually", s.ID)
	swapsSettled.Inc()

	return s, nil
}
