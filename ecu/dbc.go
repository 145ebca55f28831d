package ecu

import (
	"os"
	"path/filepath"

	"can-translator/signals"

	"github.com/cockroachdb/errors"
	"go.einride.tech/can/pkg/dbc"
)

// DBCOptions controls how a DBC file maps onto the dictionary.
type DBCOptions struct {
	// WriterNode marks the signals of messages transmitted by this node as
	// writable.
	WriterNode string

	Logger signals.Logger
}

// MotorolaStartBit converts a DBC big-endian start bit (the field's most
// significant bit, numbered LSB-first within each byte) to a network-order
// bit position.
func MotorolaStartBit(start int) int {
	return (start/8)*8 + (7 - start%8)
}

// LoadDBC reads a DBC file into a dictionary definition for bus.
func LoadDBC(path string, bus *signals.Bus, opts DBCOptions) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, errors.Wrap(err, "failed to read dbc file")
	}
	return ParseDBC(filepath.Base(path), data, bus, opts)
}

// ParseDBC builds a dictionary definition from DBC source. Little-endian
// signals cannot be expressed in network bit order and are skipped.
func ParseDBC(name string, data []byte, bus *signals.Bus, opts DBCOptions) (Definition, error) {
	logger := opts.Logger
	if logger == nil {
		logger = signals.NopLogger{}
	}

	p := dbc.NewParser(name, data)
	if err := p.Parse(); err != nil {
		return Definition{}, errors.Wrap(err, "failed to parse dbc file")
	}

	var def Definition
	byKey := make(map[uint32]map[string]*signals.Signal)

	for _, d := range p.Defs() {
		m, ok := d.(*dbc.MessageDef)
		if !ok || m.MessageID == dbc.IndependentSignalsMessageID {
			continue
		}

		msg := &signals.Message{
			Bus:      bus,
			ID:       m.MessageID.ToCAN(),
			Extended: m.MessageID.IsExtended(),
			Name:     string(m.Name),
			Length:   uint8(m.Size),
		}
		def.Messages = append(def.Messages, msg)
		writable := opts.WriterNode != "" && string(m.Transmitter) == opts.WriterNode

		byName := make(map[string]*signals.Signal, len(m.Signals))
		byKey[msg.ID] = byName
		for _, s := range m.Signals {
			if !s.IsBigEndian {
				logger.Warn("Skipping little-endian signal %s.%s", m.Name, s.Name)
				continue
			}
			if s.IsMultiplexed {
				logger.Warn("Skipping multiplexed signal %s.%s", m.Name, s.Name)
				continue
			}

			sig := &signals.Signal{
				Name:        string(s.Name),
				Message:     msg,
				BitPosition: MotorolaStartBit(int(s.StartBit)),
				BitSize:     int(s.Size),
				Factor:      s.Factor,
				Offset:      s.Offset,
				MinValue:    s.Minimum,
				MaxValue:    s.Maximum,
				Unit:        s.Unit,
				Writable:    writable,
			}
			if s.IsSigned {
				sig.Decoder = signedDecoder
			}
			byName[sig.Name] = sig
			def.Signals = append(def.Signals, sig)
		}
	}

	for _, d := range p.Defs() {
		vd, ok := d.(*dbc.ValueDescriptionsDef)
		if !ok || vd.ObjectType != dbc.ObjectTypeSignal || vd.MessageID == dbc.IndependentSignalsMessageID {
			continue
		}
		sig := byKey[vd.MessageID.ToCAN()][string(vd.SignalName)]
		if sig == nil {
			return Definition{}, errors.Newf("value descriptions for undeclared signal %s", vd.SignalName)
		}
		sig.Decoder = nil
		for _, v := range vd.ValueDescriptions {
			sig.States = append(sig.States, signals.SignalState{Value: int(v.Value), Name: v.Description})
		}
	}

	if hasWritable(def.Signals, SignalTurnSignalLeft) && hasWritable(def.Signals, SignalTurnSignalRight) {
		def.Commands = append(def.Commands, TurnSignalCommand())
	}
	return def, nil
}

func hasWritable(sigs []*signals.Signal, name string) bool {
	for _, s := range sigs {
		if s.Name == name && s.Writable {
			return true
		}
	}
	return false
}
