package canbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"can-translator/filters"
	"can-translator/signals"

	bcan "github.com/brutella/can"
	"go.einride.tech/can"
)

func TestBrutellaConversion(t *testing.T) {
	tests := []struct {
		name  string
		in    bcan.Frame
		want  can.Frame
		round bool
	}{
		{
			name:  "standard",
			in:    bcan.Frame{ID: 0x7E8, Length: 3, Data: [8]uint8{1, 2, 3}},
			want:  can.Frame{ID: 0x7E8, Length: 3, Data: can.Data{1, 2, 3}},
			round: true,
		},
		{
			name:  "extended",
			in:    bcan.Frame{ID: 0x10261022 | effFlag, Length: 8},
			want:  can.Frame{ID: 0x10261022, Length: 8, IsExtended: true},
			round: true,
		},
		{
			name: "remote",
			in:   bcan.Frame{ID: 0x123 | rtrFlag},
			want: can.Frame{ID: 0x123, IsRemote: true},
		},
		{
			name: "standard id masked",
			in:   bcan.Frame{ID: 0xF7E8, Length: 1},
			want: can.Frame{ID: 0x7E8, Length: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromBrutella(tt.in)
			if got != tt.want {
				t.Errorf("FromBrutella() = %+v, want %+v", got, tt.want)
			}
			back := ToBrutella(got)
			if back.ID&(rtrFlag) != tt.in.ID&rtrFlag {
				t.Errorf("ToBrutella() lost RTR flag: 0x%X", back.ID)
			}
			if tt.round && back != tt.in {
				t.Errorf("ToBrutella() = %+v, want %+v", back, tt.in)
			}
		})
	}
}

func TestNewUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), "serial", "can0", nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestAttachDeliversThroughFilters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := signals.NewBus(1, "can0", 500000)
	table := filters.NewTable()
	lb := NewLoopback()

	if err := table.Configure(bus, []filters.Filter{{Number: 0, ID: 0x100, Channel: 1}}, lb); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := Attach(ctx, bus, lb, table, nil); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	lb.Inject(can.Frame{ID: 0x100, Length: 1, Data: can.Data{0xAA}})
	lb.Inject(can.Frame{ID: 0x200, Length: 1})

	if got := bus.RxQueue.Length(); got != 1 {
		t.Fatalf("RxQueue length = %d, want 1", got)
	}
	if frame := bus.RxQueue.Pop(); frame.ID != 0x100 || frame.Data[0] != 0xAA {
		t.Errorf("queued frame = %+v", frame)
	}
	if len(lb.Filters()) != 1 {
		t.Errorf("controller filters = %d, want 1", len(lb.Filters()))
	}
	if bus.Statistics().Received != 1 {
		t.Errorf("received = %d, want 1", bus.Statistics().Received)
	}
}

func TestAttachQueueFull(t *testing.T) {
	bus := signals.NewBus(1, "can0", 500000)
	lb := NewLoopback()
	if err := Attach(context.Background(), bus, lb, nil, nil); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	capacity := bus.RxQueue.Capacity()
	for i := 0; i < capacity+3; i++ {
		lb.Inject(can.Frame{ID: uint32(i)})
	}

	stats := bus.Statistics()
	if stats.Received != uint64(capacity) {
		t.Errorf("received = %d, want %d", stats.Received, capacity)
	}
	if stats.Dropped != 3 {
		t.Errorf("dropped = %d, want 3", stats.Dropped)
	}
}

func TestAttachWriteHandler(t *testing.T) {
	bus := signals.NewBus(1, "can0", 500000)
	lb := NewLoopback()
	lb.Echo = true
	if err := Attach(context.Background(), bus, lb, nil, nil); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	frame := can.Frame{ID: 0x7DF, Length: 8, Data: can.Data{0x02, 0x01, 0x0C}}
	if !bus.WriteHandler(frame) {
		t.Fatal("WriteHandler() = false")
	}
	if sent := lb.Sent(); len(sent) != 1 || sent[0] != frame {
		t.Errorf("Sent() = %+v", sent)
	}
	if bus.RxQueue.Length() != 1 {
		t.Errorf("echo not delivered, RxQueue length = %d", bus.RxQueue.Length())
	}

	lb.FailTransmit(true)
	if bus.WriteHandler(frame) {
		t.Error("WriteHandler() = true with failing transmit")
	}
}

func TestLoopbackClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lb := NewLoopback()
	if err := lb.Start(ctx, func(can.Frame) {}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !lb.Inject(can.Frame{ID: 1}) {
		t.Fatal("Inject() on started loopback = false")
	}

	lb.Close()
	cancel()

	if lb.Inject(can.Frame{ID: 1}) {
		t.Error("Inject() after Close = true")
	}
	if lb.Transmit(can.Frame{ID: 1}) {
		t.Error("Transmit() after Close = true")
	}
	if err := lb.ConfigureFilters(nil); err != ErrClosed {
		t.Errorf("ConfigureFilters() error = %v, want ErrClosed", err)
	}
	if err := lb.Start(context.Background(), func(can.Frame) {}); err != ErrClosed {
		t.Errorf("Start() error = %v, want ErrClosed", err)
	}
}

func TestLoopbackSerializesDeliveries(t *testing.T) {
	lb := NewLoopback()
	lb.Echo = true

	var inFlight, overlaps, delivered int32
	deliver := func(can.Frame) {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		for i := 0; i < 100; i++ {
			_ = atomic.LoadInt32(&inFlight)
		}
		atomic.AddInt32(&inFlight, -1)
		atomic.AddInt32(&delivered, 1)
	}
	if err := lb.Start(context.Background(), deliver); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	const n = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			lb.Inject(can.Frame{ID: 0x100})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			lb.Transmit(can.Frame{ID: 0x7DF})
		}
	}()
	wg.Wait()

	if got := atomic.LoadInt32(&overlaps); got != 0 {
		t.Errorf("%d deliveries overlapped", got)
	}
	if got := atomic.LoadInt32(&delivered); got != 2*n {
		t.Errorf("delivered = %d, want %d", got, 2*n)
	}
}
