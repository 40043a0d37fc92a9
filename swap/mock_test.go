package swap

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcjson"
)

// copySwap returns a value copy of the passed swap, so that fakes hand out
// records the caller can mutate freely.
func copySwap(s *Swap) *Swap {
	c := *s
	if s.FundingVout != nil {
		vout := *s.FundingVout
		c.FundingVout = &vout
	}

	return &c
}

// fakeStore is an in-memory rendition of the dual-tier store. TTLs are
// recorded, not enforced.
type fakeStore struct {
	mu      sync.Mutex
	cache   map[string]*Swap
	ttl     map[string]time.Duration
	durable map[string]*Swap
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cache:   make(map[string]*Swap),
		ttl:     make(map[string]time.Duration),
		durable: make(map[string]*Swap),
	}
}

func (f *fakeStore) PutPending(_ context.Context, s *Swap,
	ttl time.Duration) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.cache[s.ID] = copySwap(s)
	f.ttl[s.ID] = ttl

	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Swap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.cache[id]; ok {
		return copySwap(s), nil
	}
	if s, ok := f.durable[id]; ok {
		return copySwap(s), nil
	}

	return nil, ErrSwapNotFound
}

func (f *fakeStore) GetDurable(_ context.Context, id string) (*Swap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.durable[id]; ok {
		return copySwap(s), nil
	}

	return nil, ErrSwapNotFound
}

func (f *fakeStore) Promote(_ context.Context, s *Swap) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.durable[s.ID] = copySwap(s)
	delete(f.cache, s.ID)
	delete(f.ttl, s.ID)

	return nil
}

func (f *fakeStore) UpdateDurable(_ context.Context, s *Swap) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.durable[s.ID] = copySwap(s)

	return nil
}

func (f *fakeStore) CancelPending(_ context.Context, s *Swap,
	ttl time.Duration) error {

	return f.PutPending(context.Background(), s, ttl)
}

func (f *fakeStore) FindAccepted(_ context.Context, fundingTxid string,
	fundingVout uint32) (*Swap, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.durable {
		if s.Status != StatusAccepted {
			continue
		}
		if s.FundingTxid != fundingTxid || s.FundingVout == nil ||
			*s.FundingVout != fundingVout {

			continue
		}

		return copySwap(s), nil
	}

	return nil, ErrSwapNotFound
}

// cached returns the cache copy of id, or nil.
func (f *fakeStore) cached(id string) *Swap {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.cache[id]; ok {
		return copySwap(s)
	}

	return nil
}

// stored returns the durable copy of id, or nil.
func (f *fakeStore) stored(id string) *Swap {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.durable[id]; ok {
		return copySwap(s)
	}

	return nil
}

// fakeLightning scripts the Lightning node façade.
type fakeLightning struct {
	mu sync.Mutex

	invoiceState InvoiceState
	balance      int64
	fee          FeeEstimate
	feeErr       error
	createErr    error

	sendTxid string
	sendErr  error
	utxos    []Utxo

	// settleErr, when set, fails every settle attempt. settleOnce makes
	// only the first settle succeed, emulating a node that rejects
	// replays against an already settled invoice.
	settleErr  error
	settleOnce bool

	invoiceValue int64
	settled      [][]byte
	canceled     [][]byte
}

func (f *fakeLightning) CreateHoldInvoice(_ context.Context, _ []byte,
	value, _ int64) (string, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return "", f.createErr
	}
	f.invoiceValue = value

	return "lnbcrt1testinvoice", nil
}

func (f *fakeLightning) LookupInvoice(_ context.Context,
	_ []byte) (InvoiceState, error) {

	return f.invoiceState, nil
}

func (f *fakeLightning) SettleInvoice(_ context.Context,
	preimage []byte) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.settleErr != nil {
		return f.settleErr
	}
	if f.settleOnce && len(f.settled) > 0 {
		return ErrInvalidPreimage
	}
	f.settled = append(f.settled, preimage)

	return nil
}

func (f *fakeLightning) CancelInvoice(_ context.Context,
	paymentHash []byte) error {

	f.mu.Lock()
	defer f.mu.Unlock()

	f.canceled = append(f.canceled, paymentHash)

	return nil
}

func (f *fakeLightning) SendCoins(_ context.Context, _ string,
	_ int64) (string, error) {

	return f.sendTxid, f.sendErr
}

func (f *fakeLightning) ListUnspent(_ context.Context,
	_ int32) ([]Utxo, error) {

	return f.utxos, nil
}

func (f *fakeLightning) WalletBalance(_ context.Context) (int64, error) {
	return f.balance, nil
}

func (f *fakeLightning) EstimateFee(_ context.Context, _ string, _ int64,
	_ int32) (FeeEstimate, error) {

	return f.fee, f.feeErr
}

// fakeChain scripts the Bitcoin node façade. Raw transactions map to
// decoded results by their serialised body.
type fakeChain struct {
	mu sync.Mutex

	pubKey  []byte
	height  int64
	decoded map[string]*btcjson.TxRawResult

	watched  []string
	watchErr error
}

func (f *fakeChain) NewPubKey(_ context.Context) ([]byte, error) {
	return f.pubKey, nil
}

func (f *fakeChain) BlockCount(_ context.Context) (int64, error) {
	return f.height, nil
}

func (f *fakeChain) DecodeRawTx(_ context.Context,
	rawTx []byte) (*btcjson.TxRawResult, error) {

	f.mu.Lock()
	defer f.mu.Unlock()

	tx, ok := f.decoded[string(rawTx)]
	if !ok {
		return nil, ErrSwapNotFound
	}

	return tx, nil
}

func (f *fakeChain) WatchAddress(_ context.Context, addr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watchErr != nil {
		return f.watchErr
	}
	f.watched = append(f.watched, addr)

	return nil
}
