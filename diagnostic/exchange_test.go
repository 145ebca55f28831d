package diagnostic

import (
	"context"
	"math"
	"testing"
	"time"

	"can-translator/signals"

	"github.com/cockroachdb/errors"
	"go.einride.tech/can"
)

func reply(pid uint8, a, b byte) can.Frame {
	return can.Frame{ID: ReplyID, Length: 8, Data: can.Data{0x04, 0x41, pid, a, b}}
}

func TestRequest_QueuesFrame(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	e := NewExchange(bus, nil)

	if err := e.Request(PIDEngineRPM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.State() != RequestSent || !e.Active() {
		t.Errorf("expected request-sent, got %s", e.State())
	}

	frame := bus.TxQueue.Pop()
	expected := can.Data{0x02, 0x01, PIDEngineRPM, 0, 0, 0, 0, 0}
	if frame.ID != RequestID || frame.Data != expected || frame.Length != 8 {
		t.Errorf("unexpected request frame %+v", frame)
	}

	if err := e.Request(PIDVehicleSpeed); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestRequest_UnknownPID(t *testing.T) {
	e := NewExchange(signals.NewBus(0, "can0", 500000), nil)
	if err := e.Request(0x7F); !errors.Is(err, ErrUnknownPID) {
		t.Errorf("expected ErrUnknownPID, got %v", err)
	}
	if e.State() != Idle {
		t.Errorf("expected idle, got %s", e.State())
	}
}

func TestRequest_QueueFull(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	for !bus.TxQueue.Full() {
		bus.TxQueue.Push(can.Frame{})
	}
	e := NewExchange(bus, nil)
	if err := e.Request(PIDEngineRPM); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestRun_EngineRPM(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	e := NewExchange(bus, nil)

	if err := e.Request(PIDEngineRPM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bus.RxQueue.Push(reply(PIDEngineRPM, 0x1A, 0x2C))

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := float64((0x1A*256)+0x2C) / 4
	if result.Value != expected || result.State != MatchFound || result.Unit != "rpm" {
		t.Errorf("expected %f rpm, got %+v", expected, result)
	}
}

func TestPoll_Formulas(t *testing.T) {
	tests := []struct {
		pid      uint8
		a, b     byte
		expected float64
	}{
		{PIDEngineRPM, 0x1A, 0x2C, 1675},
		{PIDEngineCoolantTemp, 100, 0, 60},
		{PIDVehicleSpeed, 88, 0, 88},
		{PIDMAFSensor, 0x01, 0x2C, 3},
		{PIDO2Voltage, 200, 0, 1},
		{PIDThrottle, 255, 0, 100},
	}

	for _, tt := range tests {
		t.Run(pidName(tt.pid), func(t *testing.T) {
			bus := signals.NewBus(0, "can0", 500000)
			e := NewExchange(bus, nil)
			if err := e.Request(tt.pid); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			bus.RxQueue.Push(reply(tt.pid, tt.a, tt.b))
			if !e.Poll() {
				t.Fatal("expected the exchange to finish")
			}
			if got := e.Result().Value; math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.expected, got)
			}
		})
	}
}

func pidName(pid uint8) string {
	for _, p := range DefaultPIDs {
		if p.PID == pid {
			return p.Name
		}
	}
	return "unknown"
}

func TestPoll_UnmatchedFramesForwarded(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	var forwarded []can.Frame
	e := NewExchange(bus, nil, WithUnmatched(func(_ *signals.Bus, frame can.Frame) {
		forwarded = append(forwarded, frame)
	}))

	if err := e.Request(PIDVehicleSpeed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bus.RxQueue.Push(can.Frame{ID: 0x128})
	bus.RxQueue.Push(reply(PIDEngineRPM, 1, 2))

	if e.Poll() {
		t.Fatal("exchange should still be waiting")
	}
	if len(forwarded) != 2 {
		t.Errorf("expected 2 forwarded frames, got %d", len(forwarded))
	}

	bus.RxQueue.Push(reply(PIDVehicleSpeed, 42, 0))
	if !e.Poll() || e.Result().Value != 42 {
		t.Errorf("expected 42 km/h, got %+v", e.Result())
	}
}

func TestRun_TimesOutAfterIterations(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	e := NewExchange(bus, nil,
		WithPollInterval(time.Microsecond),
		WithTimeout(time.Hour),
		WithMaxIterations(50),
	)

	if err := e.Request(PIDEngineRPM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := e.Run(context.Background())
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if result.State != TimedOut || e.State() != TimedOut {
		t.Errorf("expected timed-out, got %s", result.State)
	}
	if e.iterations != 50 {
		t.Errorf("expected 50 iterations, got %d", e.iterations)
	}

	// a finished exchange accepts a new request
	if err := e.Request(PIDEngineRPM); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPoll_DeadlineTimesOut(t *testing.T) {
	now := time.Unix(1000, 0)
	bus := signals.NewBus(0, "can0", 500000)
	e := NewExchange(bus, nil, WithClock(func() time.Time { return now }), WithTimeout(time.Second))

	if err := e.Request(PIDEngineRPM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Poll() {
		t.Fatal("should still be waiting")
	}
	now = now.Add(time.Second)
	if !e.Poll() || e.State() != TimedOut {
		t.Errorf("expected timed-out, got %s", e.State())
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	e := NewExchange(bus, nil, WithTimeout(time.Hour), WithMaxIterations(math.MaxInt32))
	if err := e.Request(PIDEngineRPM); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQuery_Flush(t *testing.T) {
	bus := signals.NewBus(0, "can0", 500000)
	// a fake ECU answering every request it sees on the transmit queue
	flush := func() {
		for !bus.TxQueue.Empty() {
			req := bus.TxQueue.Pop()
			bus.RxQueue.Push(reply(req.Data[2], 100, 0))
		}
	}
	e := NewExchange(bus, nil, WithFlush(flush))

	result, err := e.Query(context.Background(), PIDEngineCoolantTemp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Value != 60 {
		t.Errorf("expected 60 degC, got %f", result.Value)
	}
}

func TestTable_Register(t *testing.T) {
	table := NewTable()
	table.Register(PID{PID: 0x2F, Name: "fuel_level", StartBit: 24, Size: 8, Scale: 100.0 / 255.0, Unit: "%"})

	if p, ok := table.Lookup(0x2F); !ok || p.Name != "fuel_level" {
		t.Errorf("expected fuel_level, got %+v", p)
	}
	if len(table.PIDs()) != len(DefaultPIDs)+1 {
		t.Errorf("expected %d PIDs, got %d", len(DefaultPIDs)+1, len(table.PIDs()))
	}
}
