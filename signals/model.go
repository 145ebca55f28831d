// Package signals holds the signal dictionary: buses, messages, signals with
// their named states, and commands. A Dictionary is built and validated once
// at startup and read-only afterwards; the few fields that change while
// translating live in Runtime.
package signals

import (
	"sync/atomic"

	"can-translator/queue"

	"go.einride.tech/can"
)

// BusActiveTimeoutMs is how long a bus counts as active after its last frame.
const BusActiveTimeoutMs = 30 * 1000

// WriteHandler transmits a frame on the wire and reports success.
type WriteHandler func(frame can.Frame) bool

// Bus is one CAN bus with its receive and transmit queues. The controller
// goroutine is the only producer of RxQueue and the translator main loop its
// only consumer; for TxQueue the roles are reversed.
type Bus struct {
	Address int
	Name    string
	Speed   int

	// BypassFilters puts the acceptance filter table in pass-all mode.
	BypassFilters bool

	// RawPassthrough publishes every received frame, decoded or not.
	RawPassthrough bool

	// RawWritable allows raw frames from the application layer.
	RawWritable bool

	WriteHandler WriteHandler

	RxQueue *queue.Queue[can.Frame]
	TxQueue *queue.Queue[can.Frame]

	received            atomic.Uint64
	dropped             atomic.Uint64
	sent                atomic.Uint64
	sendFailures        atomic.Uint64
	lastMessageReceived atomic.Uint64
}

// NewBus creates a bus with empty frame queues.
func NewBus(address int, name string, speed int) *Bus {
	return &Bus{
		Address: address,
		Name:    name,
		Speed:   speed,
		RxQueue: queue.NewFrameQueue[can.Frame](),
		TxQueue: queue.NewFrameQueue[can.Frame](),
	}
}

// Enqueue is called by the producer side with a freshly received frame. A
// full receive queue drops the frame and bumps the drop counter.
func (b *Bus) Enqueue(frame can.Frame, nowMs uint64) bool {
	b.lastMessageReceived.Store(nowMs)
	if !b.RxQueue.Push(frame) {
		b.dropped.Add(1)
		return false
	}
	b.received.Add(1)
	return true
}

// CountSent records the outcome of one transmit attempt.
func (b *Bus) CountSent(ok bool) {
	if ok {
		b.sent.Add(1)
		return
	}
	b.sendFailures.Add(1)
	b.dropped.Add(1)
}

// Active reports whether a frame arrived within BusActiveTimeoutMs of nowMs.
func (b *Bus) Active(nowMs uint64) bool {
	last := b.lastMessageReceived.Load()
	return last != 0 && nowMs-last < BusActiveTimeoutMs
}

// LastMessageReceived is the time of the last received frame, zero if none.
func (b *Bus) LastMessageReceived() uint64 {
	return b.lastMessageReceived.Load()
}

// BusStatistics is a point-in-time copy of a bus's counters.
type BusStatistics struct {
	Received            uint64
	Dropped             uint64
	Sent                uint64
	SendFailures        uint64
	RxQueued            int
	TxQueued            int
	LastMessageReceived uint64
}

// Statistics returns the bus counters.
func (b *Bus) Statistics() BusStatistics {
	return BusStatistics{
		Received:     b.received.Load(),
		Dropped:      b.dropped.Load(),
		Sent:         b.sent.Load(),
		SendFailures: b.sendFailures.Load(),
		RxQueued:     b.RxQueue.Length(),
		TxQueued:     b.TxQueue.Length(),

		LastMessageReceived: b.lastMessageReceived.Load(),
	}
}

// Message identifies one CAN message on one bus.
type Message struct {
	Bus      *Bus
	ID       uint32
	Extended bool
	Name     string

	// Length is the data length of frames written for this message; zero
	// means 8.
	Length uint8
}

func (m *Message) FrameID() FrameID {
	return FrameID{ID: m.ID, Extended: m.Extended}
}

// FrameLength returns the data length to use when writing the message.
func (m *Message) FrameLength() uint8 {
	if m.Length == 0 || m.Length > 8 {
		return 8
	}
	return m.Length
}

// SignalState maps a raw value of an enumerated signal to its name.
type SignalState struct {
	Value int
	Name  string
}

// DecodeContext is what a decoder sees besides the value itself.
type DecodeContext struct {
	Signal     *Signal
	Dictionary *Dictionary
	Runtime    *Runtime
	Logger     Logger

	// Payload is the whole frame payload, for decoders that combine fields.
	Payload uint64

	// Event is set by decoders of evented signals, e.g. which door changed
	// (the value) and whether it is now open (the event).
	Event *Value
}

// Decoder turns the scaled value of a signal into the value to publish. It
// may clear send to suppress publishing.
type Decoder func(ctx *DecodeContext, value float64, send *bool) Value

// EncodeContext is what an encoder sees besides the value itself.
type EncodeContext struct {
	Signal     *Signal
	Dictionary *Dictionary
	Runtime    *Runtime
	Logger     Logger
}

// Encoder packs a value for a signal into a payload. It may clear send to
// veto the transmission.
type Encoder func(ctx *EncodeContext, value Value, send *bool) uint64

// Signal is one bit field of one message.
type Signal struct {
	Name        string
	Message     *Message
	BitPosition int
	BitSize     int
	Factor      float64
	Offset      float64
	MinValue    float64
	MaxValue    float64
	Unit        string
	Writable    bool
	States      []SignalState

	// SendFrequency limits publishing to this many values per second;
	// zero publishes every frame.
	SendFrequency float64

	// SendSame publishes even when the value did not change.
	SendSame bool

	// ForceSendChanged publishes a changed value even when throttled.
	ForceSendChanged bool

	// Decoder and Encoder replace the default behaviour when set.
	Decoder Decoder
	Encoder Encoder

	index int
}

// Index is the signal's position in its dictionary.
func (s *Signal) Index() int {
	return s.index
}

// HasStates reports whether the signal is enumerated.
func (s *Signal) HasStates() bool {
	return len(s.States) > 0
}

// StateByName finds a state by name, nil if unknown.
func (s *Signal) StateByName(name string) *SignalState {
	for i := range s.States {
		if s.States[i].Name == name {
			return &s.States[i]
		}
	}
	return nil
}

// StateByValue finds a state by raw value, nil if unknown.
func (s *Signal) StateByValue(value int) *SignalState {
	for i := range s.States {
		if s.States[i].Value == value {
			return &s.States[i]
		}
	}
	return nil
}

// Writer is the part of the pipeline a command handler may use.
type Writer interface {
	Write(signal *Signal, value Value, force bool) bool
	WriteRaw(bus *Bus, frame can.Frame) bool
}

// CommandContext is passed to command handlers.
type CommandContext struct {
	Dictionary *Dictionary
	Writer     Writer
}

// CommandHandler processes a command from the application layer and reports
// whether anything was queued for the bus.
type CommandHandler func(ctx *CommandContext, name string, value Value, event *Value) bool

// Command is a named control action that is not a plain signal write.
type Command struct {
	Name    string
	Handler CommandHandler
}
