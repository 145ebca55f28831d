package signals

import (
	"math"

	"can-translator/bitfield"

	"github.com/cockroachdb/errors"
)

var (
	ErrBitSpan          = errors.New("bit field outside the 64-bit payload")
	ErrNoMessage        = errors.New("signal has no message")
	ErrNoBus            = errors.New("message has no bus")
	ErrDuplicateSignal  = errors.New("duplicate signal")
	ErrDuplicateState   = errors.New("duplicate signal state")
	ErrDuplicateCommand = errors.New("duplicate command")
	ErrDuplicateBus     = errors.New("duplicate bus address")
	ErrZeroFactor       = errors.New("writable numeric signal has zero factor")
	ErrUnknownBus       = errors.New("message refers to a bus outside the dictionary")
)

type messageKey struct {
	bus *Bus
	FrameID
}

// FrameID identifies a message on a bus. A standard and an extended frame
// with the same numeric id are different messages.
type FrameID struct {
	ID       uint32
	Extended bool
}

// Dictionary is the immutable set of buses, messages, signals and commands.
type Dictionary struct {
	Buses    []*Bus
	Messages []*Message
	Signals  []*Signal
	Commands []*Command

	byMessage map[messageKey][]*Signal
	byName    map[string][]*Signal
	commands  map[string]*Command
	buses     map[int]*Bus
}

// NewDictionary validates the definitions and indexes them. Messages that
// signals refer to but that are missing from messages are added.
func NewDictionary(buses []*Bus, messages []*Message, signals []*Signal, commands []*Command) (*Dictionary, error) {
	d := &Dictionary{
		Buses:     buses,
		Messages:  append([]*Message(nil), messages...),
		Signals:   signals,
		Commands:  commands,
		byMessage: make(map[messageKey][]*Signal),
		byName:    make(map[string][]*Signal),
		commands:  make(map[string]*Command),
		buses:     make(map[int]*Bus),
	}

	for _, bus := range buses {
		if _, ok := d.buses[bus.Address]; ok {
			return nil, errors.Wrapf(ErrDuplicateBus, "bus %d", bus.Address)
		}
		d.buses[bus.Address] = bus
	}

	known := make(map[*Message]bool, len(messages))
	for _, m := range messages {
		known[m] = true
	}

	for i, s := range signals {
		if err := d.validateSignal(s); err != nil {
			return nil, err
		}
		if !known[s.Message] {
			known[s.Message] = true
			d.Messages = append(d.Messages, s.Message)
		}

		key := messageKey{bus: s.Message.Bus, FrameID: s.Message.FrameID()}
		for _, other := range d.byMessage[key] {
			if other.Name == s.Name {
				return nil, errors.Wrapf(ErrDuplicateSignal, "%s in message 0x%X", s.Name, s.Message.ID)
			}
		}

		s.index = i
		d.byMessage[key] = append(d.byMessage[key], s)
		d.byName[s.Name] = append(d.byName[s.Name], s)
	}

	for _, m := range d.Messages {
		if m.Bus == nil {
			return nil, errors.Wrapf(ErrNoBus, "message 0x%X", m.ID)
		}
		if known, ok := d.buses[m.Bus.Address]; !ok || known != m.Bus {
			return nil, errors.Wrapf(ErrUnknownBus, "message 0x%X on bus %d", m.ID, m.Bus.Address)
		}
	}

	for _, c := range commands {
		if _, ok := d.commands[c.Name]; ok {
			return nil, errors.Wrapf(ErrDuplicateCommand, "%s", c.Name)
		}
		d.commands[c.Name] = c
	}

	return d, nil
}

func (d *Dictionary) validateSignal(s *Signal) error {
	if s.Message == nil {
		return errors.Wrapf(ErrNoMessage, "signal %s", s.Name)
	}
	if s.Message.Bus == nil {
		return errors.Wrapf(ErrNoBus, "signal %s message 0x%X", s.Name, s.Message.ID)
	}
	if !bitfield.Fits(s.BitPosition, s.BitSize) {
		return errors.Wrapf(ErrBitSpan, "signal %s: position %d size %d", s.Name, s.BitPosition, s.BitSize)
	}
	if s.Writable && !s.HasStates() && s.Encoder == nil && s.Factor == 0 {
		return errors.Wrapf(ErrZeroFactor, "signal %s", s.Name)
	}
	if math.IsNaN(s.Factor) || math.IsNaN(s.Offset) {
		return errors.Newf("signal %s: factor and offset must be numbers", s.Name)
	}

	names := make(map[string]bool, len(s.States))
	values := make(map[int]bool, len(s.States))
	for _, st := range s.States {
		if names[st.Name] || values[st.Value] {
			return errors.Wrapf(ErrDuplicateState, "signal %s state %d/%s", s.Name, st.Value, st.Name)
		}
		names[st.Name] = true
		values[st.Value] = true
	}
	return nil
}

// LookupSignal returns the first signal with the given generic name.
func (d *Dictionary) LookupSignal(name string) *Signal {
	if found := d.byName[name]; len(found) > 0 {
		return found[0]
	}
	return nil
}

// LookupWritableSignal returns the first writable signal with the given name.
func (d *Dictionary) LookupWritableSignal(name string) *Signal {
	for _, s := range d.byName[name] {
		if s.Writable {
			return s
		}
	}
	return nil
}

// SignalsForMessage returns the signals carried by message id on bus.
func (d *Dictionary) SignalsForMessage(bus *Bus, id uint32, extended bool) []*Signal {
	return d.byMessage[messageKey{bus: bus, FrameID: FrameID{ID: id, Extended: extended}}]
}

// LookupCommand finds a command by name.
func (d *Dictionary) LookupCommand(name string) *Command {
	return d.commands[name]
}

// LookupBus finds a bus by address.
func (d *Dictionary) LookupBus(address int) *Bus {
	return d.buses[address]
}

// MessageIDs returns the distinct identifiers that carry signals on bus.
func (d *Dictionary) MessageIDs(bus *Bus) []FrameID {
	var ids []FrameID
	seen := make(map[FrameID]bool)
	for _, s := range d.Signals {
		id := s.Message.FrameID()
		if s.Message.Bus != bus || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
