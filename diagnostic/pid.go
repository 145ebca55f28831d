package diagnostic

import (
	"sort"
	"sync"
)

// OBD-II mode 01 PIDs decoded out of the box.
const (
	PIDEngineCoolantTemp uint8 = 0x05
	PIDEngineRPM         uint8 = 0x0C
	PIDVehicleSpeed      uint8 = 0x0D
	PIDMAFSensor         uint8 = 0x10
	PIDThrottle          uint8 = 0x11
	PIDO2Voltage         uint8 = 0x14
)

// PID describes how to decode one reply. The reply data bytes A, B, ... start
// at payload byte 3, so A is bits 24-31 and AB is bits 24-39.
type PID struct {
	PID      uint8
	Name     string
	StartBit int
	Size     int
	Scale    float64
	Offset   float64
	Unit     string
}

// Decode applies the PID formula to a raw field value.
func (p PID) Decode(raw uint64) float64 {
	return float64(raw)*p.Scale + p.Offset
}

// DefaultPIDs is the built-in decode table.
var DefaultPIDs = []PID{
	{PID: PIDEngineRPM, Name: "engine_speed", StartBit: 24, Size: 16, Scale: 0.25, Unit: "rpm"},
	{PID: PIDEngineCoolantTemp, Name: "engine_coolant_temperature", StartBit: 24, Size: 8, Scale: 1, Offset: -40, Unit: "degC"},
	{PID: PIDVehicleSpeed, Name: "vehicle_speed", StartBit: 24, Size: 8, Scale: 1, Unit: "km/h"},
	{PID: PIDMAFSensor, Name: "mass_air_flow", StartBit: 24, Size: 16, Scale: 0.01, Unit: "g/s"},
	{PID: PIDO2Voltage, Name: "o2_sensor_voltage", StartBit: 24, Size: 8, Scale: 0.005, Unit: "V"},
	{PID: PIDThrottle, Name: "throttle_position", StartBit: 24, Size: 8, Scale: 100.0 / 255.0, Unit: "%"},
}

// Table maps PIDs to their decoding. It is safe for concurrent use.
type Table struct {
	mu   sync.RWMutex
	pids map[uint8]PID
}

// NewTable returns a table holding DefaultPIDs.
func NewTable() *Table {
	t := &Table{pids: make(map[uint8]PID, len(DefaultPIDs))}
	for _, p := range DefaultPIDs {
		t.pids[p.PID] = p
	}
	return t
}

// Register adds or replaces a PID.
func (t *Table) Register(p PID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pids[p.PID] = p
}

func (t *Table) Lookup(pid uint8) (PID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.pids[pid]
	return p, ok
}

// PIDs lists the registered PIDs in ascending order.
func (t *Table) PIDs() []PID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	list := make([]PID, 0, len(t.pids))
	for _, p := range t.pids {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PID < list[j].PID })
	return list
}
