// Package canbus connects signals.Bus queues to CAN hardware. A Controller
// owns the receive goroutine (the producer side of the bus receive queue)
// and the transmit path used by the bus write handler.
package canbus

import (
	"context"
	"strings"

	"can-translator/clock"
	"can-translator/filters"
	"can-translator/signals"

	"github.com/cockroachdb/errors"
	"go.einride.tech/can"
)

// Controller is a CAN interface driver.
type Controller interface {
	// Start begins receiving; deliver is called from the driver's own
	// goroutine for every frame until ctx is done or Close is called.
	Start(ctx context.Context, deliver func(frame can.Frame)) error

	// Transmit sends one frame and reports success. It must not block for
	// long since it runs on the translator main loop.
	Transmit(frame can.Frame) bool

	ConfigureFilters(entries []filters.Filter) error
	Close() error
}

// Driver names accepted by New.
const (
	DriverBrutella = "brutella"
	DriverEinride  = "einride"
)

// New opens the named driver on a network interface such as can0.
func New(ctx context.Context, driver, iface string, logger signals.Logger) (Controller, error) {
	switch strings.ToLower(driver) {
	case DriverBrutella, "":
		return NewBrutellaController(iface, logger)
	case DriverEinride:
		return NewEinrideController(ctx, iface, logger)
	default:
		return nil, errors.Newf("unknown CAN driver %q (must be '%s' or '%s')", driver, DriverBrutella, DriverEinride)
	}
}

// Attach wires controller to bus: received frames that pass the filter table
// go into the bus receive queue, and the bus write handler transmits through
// the controller. It starts the controller.
func Attach(ctx context.Context, bus *signals.Bus, controller Controller, table *filters.Table, logger signals.Logger) error {
	if logger == nil {
		logger = signals.NopLogger{}
	}

	bus.WriteHandler = controller.Transmit

	deliver := func(frame can.Frame) {
		if table != nil && !table.Accept(bus.Address, frame.ID, frame.IsExtended) {
			return
		}
		if !bus.Enqueue(frame, clock.SystemTimeMs()) {
			logger.Debug("Receive queue full on bus %d, dropped frame 0x%X", bus.Address, frame.ID)
		}
	}

	if err := controller.Start(ctx, deliver); err != nil {
		return errors.Wrapf(err, "failed to start controller for bus %d", bus.Address)
	}
	return nil
}
