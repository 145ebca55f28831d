package canbus

import (
	"context"
	"sync"

	"can-translator/filters"
	"can-translator/signals"

	bcan "github.com/brutella/can"
	"github.com/cockroachdb/errors"
	"go.einride.tech/can"
)

// Linux SocketCAN id flags as carried in brutella frame ids.
const (
	effFlag = 0x80000000
	rtrFlag = 0x40000000
	effMask = 0x1FFFFFFF
	sffMask = 0x7FF
)

// BrutellaController drives a SocketCAN interface through github.com/brutella/can.
type BrutellaController struct {
	iface  string
	bus    *bcan.Bus
	logger signals.Logger

	mu      sync.Mutex
	filters int
	closed  bool
}

func NewBrutellaController(iface string, logger signals.Logger) (*BrutellaController, error) {
	bus, err := bcan.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize CAN bus %s", iface)
	}
	if logger == nil {
		logger = signals.NopLogger{}
	}
	return &BrutellaController{iface: iface, bus: bus, logger: logger}, nil
}

// FromBrutella converts a brutella frame, whose id carries the SocketCAN flags.
func FromBrutella(f bcan.Frame) can.Frame {
	frame := can.Frame{
		Length:     f.Length,
		Data:       can.Data(f.Data),
		IsExtended: f.ID&effFlag != 0,
		IsRemote:   f.ID&rtrFlag != 0,
	}
	if frame.IsExtended {
		frame.ID = f.ID & effMask
	} else {
		frame.ID = f.ID & sffMask
	}
	return frame
}

// ToBrutella converts a frame to brutella's representation.
func ToBrutella(frame can.Frame) bcan.Frame {
	id := frame.ID
	if frame.IsExtended {
		id = (id & effMask) | effFlag
	}
	if frame.IsRemote {
		id |= rtrFlag
	}
	return bcan.Frame{
		ID:     id,
		Length: frame.Length,
		Data:   [8]uint8(frame.Data),
	}
}

func (c *BrutellaController) Start(ctx context.Context, deliver func(frame can.Frame)) error {
	c.bus.SubscribeFunc(func(f bcan.Frame) {
		deliver(FromBrutella(f))
	})

	go func() {
		if err := c.bus.ConnectAndPublish(); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.Error("CAN bus %s publish error: %v", c.iface, err)
			}
		}
	}()

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	c.logger.Info("Listening on %s (brutella)", c.iface)
	return nil
}

func (c *BrutellaController) Transmit(frame can.Frame) bool {
	if err := c.bus.Publish(ToBrutella(frame)); err != nil {
		c.logger.Error("Failed to send frame 0x%X on %s: %v", frame.ID, c.iface, err)
		return false
	}
	return true
}

// ConfigureFilters records the filter set. brutella/can has no kernel filter
// support, so filtering happens in the filter table.
func (c *BrutellaController) ConfigureFilters(entries []filters.Filter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = len(entries)
	c.logger.Debug("%s: %d acceptance filters", c.iface, len(entries))
	return nil
}

func (c *BrutellaController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.bus.Disconnect(); err != nil {
		return errors.Wrapf(err, "failed to disconnect %s", c.iface)
	}
	return nil
}
