package main

import (
	"bytes"
	"strings"
	"testing"

	"can-translator/ecu"
	"can-translator/signals"
)

func TestParseDevices(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"can0", []string{"can0"}},
		{"can0,can1", []string{"can0", "can1"}},
		{" can0 , ,vcan0 ", []string{"can0", "vcan0"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := ParseDevices(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("ParseDevices(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(o *Options)
		wantErr bool
	}{
		{"defaults", func(o *Options) {}, false},
		{"einride", func(o *Options) { o.CANDriver = "einride" }, false},
		{"bad log level", func(o *Options) { o.LogLevel = 7 }, true},
		{"no device", func(o *Options) { o.CANDevices = nil }, true},
		{"duplicate device", func(o *Options) { o.CANDevices = []string{"can0", "can0"} }, true},
		{"bad driver", func(o *Options) { o.CANDriver = "slcan" }, true},
		{"bad bitrate", func(o *Options) { o.Bitrate = 0 }, true},
		{"bad poll interval", func(o *Options) { o.PollInterval = 0 }, true},
		{"dbc without file", func(o *Options) { o.ECUType = ecu.ECUTypeDBC }, true},
		{"dbc with file", func(o *Options) {
			o.ECUType = ecu.ECUTypeDBC
			o.DBCPath = "vehicle.dbc"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.modify(opts)
			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDiagnosticRequest(t *testing.T) {
	tests := []struct {
		in      string
		want    DiagnosticRequest
		wantErr bool
	}{
		{"0x0C", DiagnosticRequest{Bus: 1, PID: 0x0C}, false},
		{"13", DiagnosticRequest{Bus: 1, PID: 0x0D}, false},
		{" 2:0x05 ", DiagnosticRequest{Bus: 2, PID: 0x05}, false},
		{"0x100", DiagnosticRequest{}, true},
		{"rpm", DiagnosticRequest{}, true},
		{"x:0x0C", DiagnosticRequest{}, true},
	}

	for _, tt := range tests {
		got, err := ParseDiagnosticRequest(tt.in, 1)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDiagnosticRequest(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseDiagnosticRequest(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestWriteRequest(t *testing.T) {
	req, ok := writeRequest("turn_signal_status", []interface{}{"left", "on"})
	if !ok {
		t.Fatal("writeRequest() = false")
	}
	if req.Value.Type != signals.StringValue || req.Value.String() != "left" {
		t.Errorf("value = %+v", req.Value)
	}
	if req.Event == nil || req.Event.Type != signals.BooleanValue || !req.Event.Boolean {
		t.Errorf("event = %+v", req.Event)
	}

	req, ok = writeRequest("status_request", []interface{}{"1", nil})
	if !ok || req.Value.Number != 1 || req.Event != nil {
		t.Errorf("numeric write = %+v, %v", req, ok)
	}

	if _, ok := writeRequest("missing", []interface{}{nil, nil}); ok {
		t.Error("missing value should be rejected")
	}
}

func TestLeveledLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLeveledLogger(&buf, LogLevelWarn)

	logger.Info("hidden %d", 1)
	logger.Debug("hidden %d", 2)
	logger.DebugCAN("RX", 0x7E0, []byte{1, 2}, 2)
	if buf.Len() != 0 {
		t.Fatalf("unexpected output below level: %q", buf.String())
	}

	logger.Warn("shown %d", 3)
	if !strings.Contains(buf.String(), "shown 3") {
		t.Errorf("warning missing from output: %q", buf.String())
	}

	buf.Reset()
	logger.SetLevel(LogLevelDebug)
	if logger.GetLevel() != LogLevelDebug {
		t.Errorf("GetLevel() = %d", logger.GetLevel())
	}
	logger.DebugCAN("TX", 0x4EF, []byte{0x01, 0xFF, 0xAA}, 2)
	if !strings.Contains(buf.String(), "ID=0x4EF Len=2 Data=[01 FF ]") {
		t.Errorf("unexpected CAN debug line: %q", buf.String())
	}

	buf.Reset()
	logger.SetLevel(LogLevelNone)
	logger.Error("silent")
	if buf.Len() != 0 {
		t.Errorf("LogLevelNone should suppress errors: %q", buf.String())
	}
}
