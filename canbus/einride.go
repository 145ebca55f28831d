package canbus

import (
	"context"
	"net"
	"sync"
	"time"

	"can-translator/filters"
	"can-translator/signals"

	"github.com/cockroachdb/errors"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// TransmitTimeout bounds one write to the socket.
const TransmitTimeout = 50 * time.Millisecond

// EinrideController drives a SocketCAN interface through go.einride.tech/can.
type EinrideController struct {
	iface  string
	conn   net.Conn
	tx     *socketcan.Transmitter
	logger signals.Logger

	mu     sync.Mutex
	closed bool
}

func NewEinrideController(ctx context.Context, iface string, logger signals.Logger) (*EinrideController, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, errors.Wrapf(err, "socketcan dial %s", iface)
	}
	if logger == nil {
		logger = signals.NopLogger{}
	}
	return &EinrideController{
		iface:  iface,
		conn:   conn,
		tx:     socketcan.NewTransmitter(conn),
		logger: logger,
	}, nil
}

func (c *EinrideController) Start(ctx context.Context, deliver func(frame can.Frame)) error {
	recv := socketcan.NewReceiver(c.conn)

	go func() {
		for recv.Receive() {
			if recv.HasErrorFrame() {
				c.logger.Warn("Error frame on %s: %v", c.iface, recv.ErrorFrame())
				continue
			}
			deliver(recv.Frame())
		}
		if err := recv.Err(); err != nil && !c.isClosed() {
			c.logger.Error("CAN receive error on %s: %v", c.iface, err)
		}
	}()

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	c.logger.Info("Listening on %s (einride)", c.iface)
	return nil
}

func (c *EinrideController) Transmit(frame can.Frame) bool {
	ctx, cancel := context.WithTimeout(context.Background(), TransmitTimeout)
	defer cancel()
	if err := c.tx.TransmitFrame(ctx, frame); err != nil {
		c.logger.Error("Failed to send frame 0x%X on %s: %v", frame.ID, c.iface, err)
		return false
	}
	return true
}

// ConfigureFilters records the filter set; filtering happens in the filter
// table.
func (c *EinrideController) ConfigureFilters(entries []filters.Filter) error {
	c.logger.Debug("%s: %d acceptance filters", c.iface, len(entries))
	return nil
}

func (c *EinrideController) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *EinrideController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.conn.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", c.iface)
	}
	return nil
}
