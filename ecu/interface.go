// Package ecu provides the vehicle dictionaries the translator can run with:
// the built-in Bosch and Votol scooter ECUs, or any DBC file.
package ecu

import (
	"strings"

	"can-translator/signals"

	"github.com/cockroachdb/errors"
)

// ECUType represents the type of ECU
type ECUType int

const (
	ECUTypeBosch ECUType = iota
	ECUTypeVotol
	ECUTypeDBC
)

func (t ECUType) String() string {
	switch t {
	case ECUTypeBosch:
		return "bosch"
	case ECUTypeVotol:
		return "votol"
	case ECUTypeDBC:
		return "dbc"
	default:
		return "unknown"
	}
}

// ParseECUType parses the -ecu_type flag.
func ParseECUType(s string) (ECUType, error) {
	switch strings.ToLower(s) {
	case "bosch":
		return ECUTypeBosch, nil
	case "votol":
		return ECUTypeVotol, nil
	case "dbc":
		return ECUTypeDBC, nil
	default:
		return 0, errors.Newf("unknown ECU type %q (must be 'bosch', 'votol' or 'dbc')", s)
	}
}

// ECUConfig selects and parameterizes a dictionary source.
type ECUConfig struct {
	Logger  signals.Logger
	ECUType ECUType
	DBCPath string
	DBC     DBCOptions
}

// Definition is the vehicle-specific part of a dictionary.
type Definition struct {
	Messages []*signals.Message
	Signals  []*signals.Signal
	Commands []*signals.Command
}

// NewDictionary builds the dictionary for config. The vehicle signals live on
// the first bus; further buses only carry raw traffic and diagnostics.
func NewDictionary(config ECUConfig, buses []*signals.Bus) (*signals.Dictionary, error) {
	if len(buses) == 0 {
		return nil, errors.New("no CAN bus configured")
	}
	primary := buses[0]

	var def Definition
	switch config.ECUType {
	case ECUTypeBosch:
		def = BoschDefinition(primary)
	case ECUTypeVotol:
		def = VotolDefinition(primary)
	case ECUTypeDBC:
		if config.DBCPath == "" {
			return nil, errors.New("ECU type dbc needs a DBC file")
		}
		opts := config.DBC
		if opts.Logger == nil {
			opts.Logger = config.Logger
		}
		var err error
		if def, err = LoadDBC(config.DBCPath, primary, opts); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Newf("unknown ECU type: %v", config.ECUType)
	}

	if config.Logger != nil {
		config.Logger.Info("Loaded %s dictionary: %d messages, %d signals, %d commands",
			config.ECUType, len(def.Messages), len(def.Signals), len(def.Commands))
	}

	dict, err := signals.NewDictionary(buses, def.Messages, def.Signals, def.Commands)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s dictionary", config.ECUType)
	}
	return dict, nil
}
