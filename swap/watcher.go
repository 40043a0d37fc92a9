package swap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"
)

// rawTxTopic is the only publication topic the watcher reacts to.
const rawTxTopic = "rawtx"

// htlcWitnessItems is the witness stack size of a sweep taking the success
// branch of the swap contract: signature, pubkey, preimage, the branch
// selector and the witness script itself.
const htlcWitnessItems = 5

// WatcherConfig packages the collaborators of the chain watcher.
type WatcherConfig struct {
	Store     Store
	Lightning LightningClient
	Chain     ChainClient

	// Clock stamps settlement updates. Nil defaults to the wall clock.
	Clock clock.Clock
}

// Watcher is the settlement engine: it consumes the node's raw-transaction
// stream, matches single-input spends against accepted swaps, extracts the
// revealed preimage from the witness and settles the corresponding hold
// invoice. Per-message failures are logged and dropped; the watcher never
// surfaces errors to clients.
type Watcher struct {
	started int32 // atomic
	stopped int32 // atomic

	cfg WatcherConfig

	// msgQueue decouples the blocking pub/sub receive loop from the
	// per-message handler.
	msgQueue *queue.ConcurrentQueue

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewWatcher returns an unstarted watcher around the passed collaborators.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Watcher{
		cfg:      cfg,
		msgQueue: queue.NewConcurrentQueue(16),
		quit:     make(chan struct{}),
	}
}

// Start launches the handler goroutine.
func (w *Watcher) Start() {
	if !atomic.CompareAndSwapInt32(&w.started, 0, 1) {
		return
	}

	w.msgQueue.Start()

	w.wg.Add(1)
	go w.txHandler()
}

// Stop halts the handler and waits for it to exit.
func (w *Watcher) Stop() {
	if !atomic.CompareAndSwapInt32(&w.stopped, 0, 1) {
		return
	}

	close(w.quit)
	w.msgQueue.Stop()
	w.wg.Wait()
}

// Deliver hands a multipart publication message to the watcher. It is the
// producer side of the internal queue, called by the ZMQ reader.
func (w *Watcher) Deliver(frames [][]byte) {
	select {
	case w.msgQueue.ChanIn() <- frames:
	case <-w.quit:
	}
}

// txHandler drains the message queue until the watcher is stopped.
func (w *Watcher) txHandler() {
	defer w.wg.Done()

	for {
		select {
		case msg := <-w.msgQueue.ChanOut():
			w.processMessage(msg.([][]byte))

		case <-w.quit:
			return
		}
	}
}

// processMessage inspects one raw-transaction publication. Every check that
// fails simply discards the message: most transactions on the network are
// unrelated to any swap. The handler is idempotent with respect to replays;
// settling an already settled invoice errors and is ignored.
func (w *Watcher) processMessage(frames [][]byte) {
	ctx := context.Background()

	// Publications arrive as [topic, body, sequence].
	if len(frames) < 2 || string(frames[0]) != rawTxTopic {
		return
	}

	tx, err := w.cfg.Chain.DecodeRawTx(ctx, frames[1])
	if err != nil {
		log.Debugf("Unable to decode raw tx: %v", err)
		return
	}

	// A swap sweep spends exactly the single HTLC input.
	if len(tx.Vin) != 1 {
		return
	}
	vin := tx.Vin[0]
	if vin.IsCoinBase() {
		return
	}

	s, err := w.cfg.Store.FindAccepted(ctx, vin.Txid, vin.Vout)
	if err != nil {
		return
	}

	if len(vin.Witness) != htlcWitnessItems {
		log.Debugf("Spend of swap %v has witness size %d, ignoring",
			s.ID, len(vin.Witness))
		return
	}

	preimage, err := hex.DecodeString(vin.Witness[2])
	if err != nil {
		return
	}
	digest := sha256.Sum256(preimage)
	if hex.EncodeToString(digest[:]) != s.PaymentHash {
		log.Debugf("Witness preimage of swap %v does not match "+
			"payment hash", s.ID)
		return
	}

	log.Infof("Observed preimage reveal for swap %v in tx %v",
		s.ID, tx.Txid)

	if err := w.cfg.Lightning.SettleInvoice(ctx, preimage); err != nil {
		// Replays of an already settled spend land here.
		log.Debugf("Settle of swap %v returned: %v", s.ID, err)
		return
	}

	s.Status = StatusSettled
	s.Preimage = hex.EncodeToString(preimage)
	s.UpdatedAt = w.cfg.Clock.Now().Unix()

	if err := w.cfg.Store.UpdateDurable(ctx, s); err != nil {
		log.Errorf("Unable to persist settlement of swap %v: %v",
			s.ID, err)
		return
	}

	log.Infof("Swap %v settled", s.ID)
	swapsSettled.Inc()
}
