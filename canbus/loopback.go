package canbus

import (
	"context"
	"sync"

	"can-translator/filters"

	"github.com/cockroachdb/errors"
	"go.einride.tech/can"
)

// ErrClosed is returned by a closed Loopback.
var ErrClosed = errors.New("controller closed")

// Loopback is an in-memory controller for tests and simulations. Frames
// passed to Inject are delivered as if received from the wire; transmitted
// frames are recorded and, when Echo is set, delivered back.
//
// Deliveries are serialized under one lock, so the bus receive queue sees a
// single producer at a time even when Inject runs on a test goroutine while
// an echo comes from the main loop.
type Loopback struct {
	// Echo delivers transmitted frames back to the receiver. The echo runs
	// on the transmitting goroutine, inside the delivery lock.
	Echo bool

	deliverMu sync.Mutex

	mu      sync.Mutex
	deliver func(can.Frame)
	sent    []can.Frame
	filters []filters.Filter
	closed  bool
	failTx  bool
}

func NewLoopback() *Loopback {
	return &Loopback{}
}

func (l *Loopback) Start(ctx context.Context, deliver func(frame can.Frame)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.deliver = deliver

	go func() {
		<-ctx.Done()
		l.Close()
	}()
	return nil
}

// Inject delivers frame to the receiver. It reports false when the
// controller is not started or already closed.
func (l *Loopback) Inject(frame can.Frame) bool {
	l.mu.Lock()
	deliver := l.deliver
	closed := l.closed
	l.mu.Unlock()

	if deliver == nil || closed {
		return false
	}
	l.deliverMu.Lock()
	deliver(frame)
	l.deliverMu.Unlock()
	return true
}

func (l *Loopback) Transmit(frame can.Frame) bool {
	l.mu.Lock()
	if l.closed || l.failTx {
		l.mu.Unlock()
		return false
	}
	l.sent = append(l.sent, frame)
	echo := l.Echo
	l.mu.Unlock()

	if echo {
		l.Inject(frame)
	}
	return true
}

// FailTransmit makes subsequent Transmit calls fail.
func (l *Loopback) FailTransmit(fail bool) {
	l.mu.Lock()
	l.failTx = fail
	l.mu.Unlock()
}

// Sent returns a copy of the transmitted frames.
func (l *Loopback) Sent() []can.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]can.Frame, len(l.sent))
	copy(out, l.sent)
	return out
}

func (l *Loopback) Filters() []filters.Filter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filters
}

func (l *Loopback) ConfigureFilters(entries []filters.Filter) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.filters = entries
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.deliver = nil
	return nil
}
