package main

import (
	"strings"
	"time"

	"can-translator/canbus"
	"can-translator/ecu"

	"github.com/cockroachdb/errors"
)

type LogLevel int

const (
	LogLevelNone  LogLevel = 0
	LogLevelError LogLevel = 1
	LogLevelWarn  LogLevel = 2
	LogLevelInfo  LogLevel = 3
	LogLevelDebug LogLevel = 4
)

const (
	DefaultBitrate      = 500000
	DefaultPollInterval = time.Millisecond
)

type Options struct {
	LogLevel        LogLevel
	RedisServerAddr string
	RedisServerPort uint16
	CANDevices      []string
	CANDriver       string
	Bitrate         int
	ECUType         ecu.ECUType
	DBCPath         string
	DBCWriterNode   string
	PollInterval    time.Duration
	RawPassthrough  bool
	RawWritable     bool
	BypassFilters   bool
}

// ParseDevices splits a comma separated interface list, dropping blanks.
func ParseDevices(s string) []string {
	var devices []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			devices = append(devices, d)
		}
	}
	return devices
}

func (o *Options) Validate() error {
	if o.LogLevel < LogLevelNone || o.LogLevel > LogLevelDebug {
		return errors.Newf("invalid log level %d", o.LogLevel)
	}
	if len(o.CANDevices) == 0 {
		return errors.New("no CAN device given")
	}
	seen := make(map[string]bool, len(o.CANDevices))
	for _, d := range o.CANDevices {
		if seen[d] {
			return errors.Newf("CAN device %s listed twice", d)
		}
		seen[d] = true
	}
	switch strings.ToLower(o.CANDriver) {
	case canbus.DriverBrutella, canbus.DriverEinride:
	default:
		return errors.Newf("invalid CAN driver: %s (must be '%s' or '%s')",
			o.CANDriver, canbus.DriverBrutella, canbus.DriverEinride)
	}
	if o.Bitrate <= 0 {
		return errors.Newf("invalid bitrate %d", o.Bitrate)
	}
	if o.PollInterval <= 0 {
		return errors.Newf("invalid poll interval %v", o.PollInterval)
	}
	if o.ECUType == ecu.ECUTypeDBC && o.DBCPath == "" {
		return errors.New("ECU type dbc needs -dbc")
	}
	return nil
}
