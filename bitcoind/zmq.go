package bitcoind

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightninglabs/gozmq"
)

const (
	// rawTxTopic is the publication topic carrying serialised
	// transactions as the node accepts them.
	rawTxTopic = "rawtx"

	// rawTxReadDeadline bounds each blocking read so the reader can
	// notice a shutdown request.
	rawTxReadDeadline = 5 * time.Second

	// reconnectDelay is the pause before redialling a broken
	// subscription.
	reconnectDelay = 5 * time.Second
)

// RawTxReader subscribes to the node's rawtx ZeroMQ publisher and hands
// each multipart message to a consumer. Messages arrive as three frames:
// topic, transaction body and sequence number.
type RawTxReader struct {
	started int32 // atomic
	stopped int32 // atomic

	addr string

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewRawTxReader returns an unstarted reader for the publisher at addr.
func NewRawTxReader(addr string) *RawTxReader {
	return &RawTxReader{
		addr: addr,
		quit: make(chan struct{}),
	}
}

// Start launches the subscription loop, delivering every message to the
// passed callback until Stop is called.
func (r *RawTxReader) Start(deliver func(frames [][]byte)) {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return
	}

	r.wg.Add(1)
	go r.readLoop(deliver)
}

// Stop halts the subscription loop and waits for it to exit.
func (r *RawTxReader) Stop() {
	if !atomic.CompareAndSwapInt32(&r.stopped, 0, 1) {
		return
	}

	close(r.quit)
	r.wg.Wait()
}

// readLoop dials the publisher and receives until shutdown, redialling on
// broken connections. Read timeouts are expected: they only exist to keep
// the loop responsive to Stop.
func (r *RawTxReader) readLoop(deliver func(frames [][]byte)) {
	defer r.wg.Done()

	for {
		conn, err := gozmq.Subscribe(
			r.addr, []string{rawTxTopic}, rawTxReadDeadline,
		)
		if err != nil {
			log.Errorf("Unable to subscribe to %v: %v", r.addr, err)

			select {
			case <-time.After(reconnectDelay):
				continue
			case <-r.quit:
				return
			}
		}

		log.Infof("Listening for raw transactions on %v", r.addr)

		if !r.receive(conn, deliver) {
			conn.Close()
			return
		}
		conn.Close()
	}
}

// receive pumps messages from one connection. It returns false when the
// reader is shutting down, true when the connection broke and a redial is
// in order.
func (r *RawTxReader) receive(conn *gozmq.Conn,
	deliver func(frames [][]byte)) bool {

	for {
		select {
		case <-r.quit:
			return false
		default:
		}

		frames, err := conn.Receive(nil)
		if err != nil {
			// Read deadlines surface as timeouts and just mean
			// no transaction arrived within the window.
			if netErr, ok := err.(net.Error); ok &&
				netErr.Timeout() {

				continue
			}

			log.Errorf("Raw tx subscription broken: %v", err)

			select {
			case <-time.After(reconnectDelay):
				return true
			case <-r.quit:
				return false
			}
		}

		deliver(frames)
	}
}
