// Package diagnostic runs OBD-II current-data requests against an ECU and
// correlates the replies arriving on the bus receive queue.
package diagnostic

import (
	"context"
	"time"

	"can-translator/bitfield"
	"can-translator/signals"

	"github.com/cockroachdb/errors"
	"go.einride.tech/can"
)

const (
	// RequestID is the OBD-II functional broadcast id.
	RequestID uint32 = 0x7DF
	// ReplyID is the id of the first ECU's response.
	ReplyID uint32 = 0x7E8

	ServiceCurrentData = 0x01

	// pidByte is the payload index of the PID in request and reply.
	pidByte = 2

	// MaxIterations bounds the number of polls before an exchange times out.
	MaxIterations = 4000

	DefaultTimeout      = 2 * time.Second
	DefaultPollInterval = time.Millisecond
)

var (
	ErrBusy       = errors.New("diagnostic request already outstanding")
	ErrUnknownPID = errors.New("unknown PID")
	ErrQueueFull  = errors.New("transmit queue full")
	ErrTimedOut   = errors.New("no diagnostic reply")
)

// State is where an exchange is in its request/reply cycle.
type State int

const (
	Idle State = iota
	RequestSent
	MatchFound
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestSent:
		return "request-sent"
	case MatchFound:
		return "match-found"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Result is the outcome of one exchange.
type Result struct {
	PID   uint8
	Name  string
	Value float64
	Unit  string
	State State
}

// Exchange is one bus's diagnostic request/response state machine. It takes
// over the bus receive queue while a request is outstanding; frames that are
// not the expected reply go to the unmatched handler.
type Exchange struct {
	bus       *signals.Bus
	table     *Table
	logger    signals.Logger
	unmatched func(bus *signals.Bus, frame can.Frame)
	flush     func()
	now       func() time.Time

	maxIterations int
	timeout       time.Duration
	pollInterval  time.Duration

	state      State
	pid        PID
	iterations int
	deadline   time.Time
	result     Result
}

type Option func(*Exchange)

func WithLogger(logger signals.Logger) Option {
	return func(e *Exchange) { e.logger = logger }
}

// WithUnmatched sets where frames that are not the awaited reply go,
// typically the pipeline's Receive.
func WithUnmatched(fn func(bus *signals.Bus, frame can.Frame)) Option {
	return func(e *Exchange) { e.unmatched = fn }
}

// WithFlush sets a function Run calls before every poll, typically draining
// the bus transmit queue.
func WithFlush(fn func()) Option {
	return func(e *Exchange) { e.flush = fn }
}

func WithMaxIterations(n int) Option {
	return func(e *Exchange) { e.maxIterations = n }
}

func WithTimeout(d time.Duration) Option {
	return func(e *Exchange) { e.timeout = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(e *Exchange) { e.pollInterval = d }
}

// WithClock replaces time.Now for the deadline.
func WithClock(now func() time.Time) Option {
	return func(e *Exchange) { e.now = now }
}

// NewExchange creates an idle exchange on bus. table may be nil to use the
// default PIDs.
func NewExchange(bus *signals.Bus, table *Table, opts ...Option) *Exchange {
	if table == nil {
		table = NewTable()
	}
	e := &Exchange{
		bus:           bus,
		table:         table,
		logger:        signals.NopLogger{},
		now:           time.Now,
		maxIterations: MaxIterations,
		timeout:       DefaultTimeout,
		pollInterval:  DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exchange) State() State {
	return e.state
}

// Active reports whether a request is waiting for its reply.
func (e *Exchange) Active() bool {
	return e.state == RequestSent
}

// Result returns the outcome of the last finished exchange.
func (e *Exchange) Result() Result {
	return e.result
}

// RequestFrame builds the mode 01 request for pid.
func RequestFrame(pid uint8) can.Frame {
	return can.Frame{
		ID:     RequestID,
		Length: 8,
		Data:   can.Data{0x02, ServiceCurrentData, pid, 0, 0, 0, 0, 0},
	}
}

// Request queues the request frame for pid on the bus and starts waiting.
func (e *Exchange) Request(pid uint8) error {
	if e.state == RequestSent {
		return errors.Wrapf(ErrBusy, "PID 0x%02X pending", e.pid.PID)
	}
	p, ok := e.table.Lookup(pid)
	if !ok {
		return errors.Wrapf(ErrUnknownPID, "0x%02X", pid)
	}
	if !e.bus.TxQueue.Push(RequestFrame(pid)) {
		return errors.Wrapf(ErrQueueFull, "bus %d", e.bus.Address)
	}

	e.pid = p
	e.state = RequestSent
	e.iterations = 0
	e.deadline = e.now().Add(e.timeout)
	e.result = Result{PID: pid, Name: p.Name, Unit: p.Unit, State: RequestSent}
	e.logger.Debug("Diagnostic request for PID 0x%02X (%s) on bus %d", pid, p.Name, e.bus.Address)
	return nil
}

// Poll runs one iteration: it drains the receive queue looking for the
// reply and checks the bounds. It returns true once the exchange is no
// longer waiting.
func (e *Exchange) Poll() bool {
	if e.state != RequestSent {
		return true
	}
	e.iterations++

	for !e.bus.RxQueue.Empty() {
		frame := e.bus.RxQueue.Pop()
		if frame.ID == ReplyID && frame.Data[pidByte] == e.pid.PID {
			raw := bitfield.Get(bitfield.Pack(frame.Data), e.pid.StartBit, e.pid.Size)
			e.result.Value = e.pid.Decode(raw)
			e.finish(MatchFound)
			e.logger.Debug("Diagnostic reply for PID 0x%02X: %v %s", e.pid.PID, e.result.Value, e.pid.Unit)
			return true
		}
		if e.unmatched != nil {
			e.unmatched(e.bus, frame)
		}
	}

	if e.iterations >= e.maxIterations || !e.now().Before(e.deadline) {
		e.finish(TimedOut)
		e.logger.Warn("No diagnostic reply for PID 0x%02X after %d polls", e.pid.PID, e.iterations)
		return true
	}
	return false
}

func (e *Exchange) finish(state State) {
	e.state = state
	e.result.State = state
}

// Run polls until the exchange finishes or ctx is done. It does not send a
// request; call Request first.
func (e *Exchange) Run(ctx context.Context) (Result, error) {
	if e.state == Idle {
		return e.result, errors.New("no diagnostic request outstanding")
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		if e.flush != nil {
			e.flush()
		}
		if e.Poll() {
			break
		}
		select {
		case <-ctx.Done():
			e.finish(TimedOut)
			return e.result, errors.Wrap(ctx.Err(), "diagnostic request cancelled")
		case <-ticker.C:
		}
	}

	if e.state == TimedOut {
		return e.result, errors.Wrapf(ErrTimedOut, "PID 0x%02X", e.pid.PID)
	}
	return e.result, nil
}

// Query is Request followed by Run.
func (e *Exchange) Query(ctx context.Context, pid uint8) (Result, error) {
	if err := e.Request(pid); err != nil {
		return Result{PID: pid}, err
	}
	return e.Run(ctx)
}
