// Package pipeline translates between CAN frames and vehicle values. The
// receive side decodes frames popped from a bus receive queue and publishes
// the results; the write side encodes values into frames on the bus transmit
// queue and drains that queue into the bus write handler.
//
// A Pipeline is owned by the translator main loop and must not be used from
// the controller goroutines.
package pipeline

import (
	"can-translator/bitfield"
	"can-translator/clock"
	"can-translator/signals"

	"go.einride.tech/can"
)

// VehicleMessage is one decoded value on its way to the application layer.
type VehicleMessage struct {
	Name  string
	Value signals.Value

	// Event is set for evented signals only.
	Event *signals.Value
}

// Publisher receives everything the decode path produces.
type Publisher interface {
	Publish(msg VehicleMessage)
	PublishRaw(bus *signals.Bus, frame can.Frame)
}

type Pipeline struct {
	dict      *signals.Dictionary
	runtime   *signals.Runtime
	publisher Publisher
	logger    signals.Logger
	timeFunc  clock.TimeFunc
}

type Option func(*Pipeline)

// WithLogger sets the logger, NopLogger by default.
func WithLogger(logger signals.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithTimeFunc replaces the millisecond clock used for throttling.
func WithTimeFunc(fn clock.TimeFunc) Option {
	return func(p *Pipeline) { p.timeFunc = fn }
}

// New creates a pipeline over dict. publisher may be nil, in which case
// decoded values are tracked but go nowhere.
func New(dict *signals.Dictionary, publisher Publisher, opts ...Option) *Pipeline {
	p := &Pipeline{
		dict:      dict,
		publisher: publisher,
		logger:    signals.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.runtime = signals.NewRuntime(dict, p.timeFunc)
	return p
}

func (p *Pipeline) Dictionary() *signals.Dictionary {
	return p.dict
}

func (p *Pipeline) Runtime() *signals.Runtime {
	return p.runtime
}

func (p *Pipeline) now() uint64 {
	if p.timeFunc != nil {
		return p.timeFunc()
	}
	return clock.SystemTimeMs()
}

// Receive translates every signal that frame carries on bus.
func (p *Pipeline) Receive(bus *signals.Bus, frame can.Frame) {
	signals.DebugCANFrame(p.logger, "RX", frame.ID, frame.Data, frame.Length)

	if bus.RawPassthrough && p.publisher != nil {
		p.publisher.PublishRaw(bus, frame)
	}

	sigs := p.dict.SignalsForMessage(bus, frame.ID, frame.IsExtended)
	if len(sigs) == 0 {
		return
	}

	payload := bitfield.Pack(frame.Data)
	for _, signal := range sigs {
		if !Covers(frame, signal) {
			p.logger.Debug("Frame 0x%X too short for %s (%d bytes)", frame.ID, signal.Name, frame.Length)
			continue
		}
		p.translate(signal, payload)
	}
}

// Covers reports whether the data bytes of frame hold all of signal's bits.
// Truncated frames leave the signals they do not cover untouched.
func Covers(frame can.Frame, signal *signals.Signal) bool {
	length := int(frame.Length)
	if length > 8 {
		length = 8
	}
	return signal.BitPosition+signal.BitSize <= 8*length
}

func (p *Pipeline) translate(signal *signals.Signal, payload uint64) {
	rt := p.runtime.For(signal)
	value := DecodeSignal(signal, payload)

	send := rt.Clock.ConditionalTick(false) ||
		(signal.ForceSendChanged && value != rt.LastValue)
	if send && rt.Received && !signal.SendSame && value == rt.LastValue {
		send = false
	}

	ctx := &signals.DecodeContext{
		Signal:     signal,
		Dictionary: p.dict,
		Runtime:    p.runtime,
		Logger:     p.logger,
		Payload:    payload,
	}
	decoded := decoderFor(signal)(ctx, value, &send)

	if send && p.publisher != nil {
		p.publisher.Publish(VehicleMessage{Name: signal.Name, Value: decoded, Event: ctx.Event})
	}

	rt.LastValue = value
	rt.Received = true
}

// ProcessReceiveQueue drains the bus receive queue through Receive and
// returns the number of frames handled.
func (p *Pipeline) ProcessReceiveQueue(bus *signals.Bus) int {
	n := 0
	for !bus.RxQueue.Empty() {
		p.Receive(bus, bus.RxQueue.Pop())
		n++
	}
	return n
}

// Write encodes value for signal and queues the frame on the signal's bus.
// A signal that is not writable, or an encoder veto, refuses the write unless
// force is set. It reports whether a frame was queued.
func (p *Pipeline) Write(signal *signals.Signal, value signals.Value, force bool) bool {
	send := true
	if !signal.Writable {
		if !force {
			p.logger.Warn("Signal %s is not writable", signal.Name)
			return false
		}
		send = false
	}

	ctx := &signals.EncodeContext{
		Signal:     signal,
		Dictionary: p.dict,
		Runtime:    p.runtime,
		Logger:     p.logger,
	}
	payload := encoderFor(signal, value)(ctx, value, &send)
	if !send && !force {
		p.logger.Debug("Write of %s to %s vetoed", value, signal.Name)
		return false
	}

	frame := can.Frame{
		ID:         signal.Message.ID,
		Length:     signal.Message.FrameLength(),
		IsExtended: signal.Message.Extended,
		Data:       bitfield.Unpack(payload),
	}
	return p.enqueue(signal.Message.Bus, frame)
}

// WriteRaw queues frame as is on bus. The bus must allow raw writes.
func (p *Pipeline) WriteRaw(bus *signals.Bus, frame can.Frame) bool {
	if !bus.RawWritable {
		p.logger.Warn("Raw writes are not allowed on bus %d", bus.Address)
		return false
	}
	return p.enqueue(bus, frame)
}

func (p *Pipeline) enqueue(bus *signals.Bus, frame can.Frame) bool {
	if !bus.TxQueue.Push(frame) {
		p.logger.Warn("Transmit queue full on bus %d, dropping frame 0x%X", bus.Address, frame.ID)
		bus.CountSent(false)
		return false
	}
	return true
}

// HandleCommand dispatches a named request from the application layer: a
// command if one is registered under name, otherwise a write to the writable
// signal of that name.
func (p *Pipeline) HandleCommand(name string, value signals.Value, event *signals.Value) bool {
	if cmd := p.dict.LookupCommand(name); cmd != nil {
		ctx := &signals.CommandContext{Dictionary: p.dict, Writer: p}
		return cmd.Handler(ctx, name, value, event)
	}
	if signal := p.dict.LookupWritableSignal(name); signal != nil {
		return p.Write(signal, value, false)
	}
	if p.dict.LookupSignal(name) != nil {
		p.logger.Warn("Signal %s is not writable", name)
		return false
	}
	p.logger.Warn("Writing not allowed for unknown signal %s", name)
	return false
}

// ProcessWriteQueue hands every queued frame to the bus write handler. Frames
// the handler rejects, or all frames when there is no handler, are dropped.
func (p *Pipeline) ProcessWriteQueue(bus *signals.Bus) int {
	n := 0
	for !bus.TxQueue.Empty() {
		frame := bus.TxQueue.Pop()
		n++

		if bus.WriteHandler == nil {
			p.logger.Warn("No write handler on bus %d, dropping frame 0x%X", bus.Address, frame.ID)
			bus.CountSent(false)
			continue
		}
		if !bus.WriteHandler(frame) {
			p.logger.Error("Failed to send frame 0x%X on bus %d", frame.ID, bus.Address)
			bus.CountSent(false)
			continue
		}
		signals.DebugCANFrame(p.logger, "TX", frame.ID, frame.Data, frame.Length)
		bus.CountSent(true)
	}
	return n
}

// Statistics returns the counters of bus, with a freshness check against the
// pipeline clock.
func (p *Pipeline) Statistics(bus *signals.Bus) (signals.BusStatistics, bool) {
	return bus.Statistics(), bus.Active(p.now())
}
