package ecu

import (
	"testing"

	"can-translator/pipeline"
	"can-translator/signals"
)

const testDBC = `VERSION ""

NS_ :

BS_:

BU_: ECU TRANSLATOR

BO_ 1200 BODY: 8 ECU
 SG_ door_status : 7|3@0+ (1,0) [0|7] "" TRANSLATOR
 SG_ cabin_temperature : 15|8@0- (1,0) [-128|127] "degC" TRANSLATOR
 SG_ intel_counter : 16|8@1+ (1,0) [0|255] "" TRANSLATOR

BO_ 1201 LIGHTS: 2 TRANSLATOR
 SG_ turn_signal_left : 7|1@0+ (1,0) [0|1] "" ECU
 SG_ turn_signal_right : 6|1@0+ (1,0) [0|1] "" ECU

VAL_ 1200 door_status 0 "closed" 1 "driver" 2 "passenger" ;
`

func TestMotorolaStartBit(t *testing.T) {
	tests := []struct {
		dbc      int
		expected int
	}{
		{7, 0},
		{0, 7},
		{15, 8},
		{63, 56},
		{56, 63},
	}
	for _, tt := range tests {
		if got := MotorolaStartBit(tt.dbc); got != tt.expected {
			t.Errorf("MotorolaStartBit(%d): expected %d, got %d", tt.dbc, tt.expected, got)
		}
	}
}

func TestParseDBC(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	def, err := ParseDBC("test.dbc", []byte(testDBC), bus, DBCOptions{WriterNode: "TRANSLATOR", Logger: &testLogger{}})
	if err != nil {
		t.Fatalf("ParseDBC error: %v", err)
	}

	if len(def.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(def.Messages))
	}
	if len(def.Signals) != 4 {
		t.Fatalf("expected 4 signals (little-endian skipped), got %d", len(def.Signals))
	}
	if len(def.Commands) != 1 || def.Commands[0].Name != CommandTurnSignal {
		t.Errorf("expected turn signal command, got %+v", def.Commands)
	}

	byName := map[string]*signals.Signal{}
	for _, s := range def.Signals {
		byName[s.Name] = s
	}

	door := byName["door_status"]
	if door == nil || door.BitPosition != 0 || door.BitSize != 3 || len(door.States) != 3 {
		t.Fatalf("unexpected door_status %+v", door)
	}
	if door.Writable {
		t.Error("door_status is sent by the ECU and should not be writable")
	}
	if temp := byName["cabin_temperature"]; temp == nil || temp.BitPosition != 8 || temp.Decoder == nil {
		t.Errorf("unexpected cabin_temperature %+v", temp)
	}
	if left := byName["turn_signal_left"]; left == nil || !left.Writable || left.Message.FrameLength() != 2 {
		t.Errorf("unexpected turn_signal_left %+v", left)
	}
}

func TestParseDBC_Invalid(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	if _, err := ParseDBC("bad.dbc", []byte("BO_ nonsense"), bus, DBCOptions{}); err == nil {
		t.Error("expected parse error")
	}
}

func TestDBCDictionary_DecodeAndCommand(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	def, err := ParseDBC("test.dbc", []byte(testDBC), bus, DBCOptions{WriterNode: "TRANSLATOR"})
	if err != nil {
		t.Fatalf("ParseDBC error: %v", err)
	}
	dict, err := signals.NewDictionary([]*signals.Bus{bus}, def.Messages, def.Signals, def.Commands)
	if err != nil {
		t.Fatalf("NewDictionary error: %v", err)
	}

	rec := &recorder{messages: make(map[string]pipeline.VehicleMessage)}
	p := pipeline.New(dict, rec)

	// door_status = 1 in the top three bits, temperature -10
	p.Receive(bus, makeCANFrame(1200, []byte{0x20, 0xF6}))

	if v := rec.messages["door_status"].Value; v.Text != "driver" {
		t.Errorf("door_status: expected driver, got %+v", v)
	}
	if v := rec.messages["cabin_temperature"].Value; v.Number != -10 {
		t.Errorf("cabin_temperature: expected -10, got %+v", v)
	}

	if !p.HandleCommand(CommandTurnSignal, signals.String("left"), nil) {
		t.Fatal("turn signal command should succeed")
	}
	if bus.TxQueue.Length() != 2 {
		t.Fatalf("expected 2 frames, got %d", bus.TxQueue.Length())
	}
	left := bus.TxQueue.Pop()
	right := bus.TxQueue.Pop()
	if left.Data[0] != 0x80 || right.Data[0] != 0x00 || left.Length != 2 {
		t.Errorf("unexpected frames %+v %+v", left, right)
	}

	if p.HandleCommand(CommandTurnSignal, signals.String("hazard"), nil) {
		t.Error("unknown side should be refused")
	}
}
