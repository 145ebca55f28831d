package main

import (
	"context"
	"sync"

	"can-translator/signals"

	"github.com/go-redis/redis/v8"
)

const (
	ipcWriteChannel = "can-translator:write"
	ipcWriteHashKey = "can-translator:write"
)

// requestSink is the translator side of the IPC receivers.
type requestSink interface {
	SubmitWrite(req WriteRequest) bool
	SubmitDiagnostic(req DiagnosticRequest) bool
}

// IPCRx turns write requests published on Redis into translator writes. The
// payload names the signal or command; the value is read from the write hash.
type IPCRx struct {
	log    *LeveledLogger
	redis  *redis.Client
	sink   requestSink
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	writeSubscription *redis.PubSub
}

func NewIPCRx(logger *LeveledLogger, redis *redis.Client, sink requestSink) *IPCRx {
	ctx, cancel := context.WithCancel(context.Background())

	rx := &IPCRx{
		log:    logger,
		redis:  redis,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}

	rx.writeSubscription = rx.redis.Subscribe(rx.ctx, ipcWriteChannel)
	go receiveLoop(rx.ctx, rx.log, "write", rx.writeSubscription, rx.handleWrite)

	return rx
}

// receiveLoop feeds every message of sub to handle until ctx is cancelled.
func receiveLoop(ctx context.Context, log *LeveledLogger, name string, sub *redis.PubSub, handle func(payload string)) {
	log.Info("Starting %s subscription handler", name)

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Check for closed client - panic to trigger systemd restart
			if err == redis.ErrClosed {
				log.Error("Redis connection lost on %s subscription - restarting service", name)
				panic("Redis disconnected")
			}
			log.Error("%s subscription error: %v", name, err)
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			log.Debug("%s message received: channel=%s, payload=%s", name, m.Channel, m.Payload)
			handle(m.Payload)
		case *redis.Subscription:
			log.Debug("%s subscription event: %s %s", name, m.Channel, m.Kind)
		}
	}
}

func (rx *IPCRx) handleWrite(name string) {
	if name == "" {
		return
	}

	values, err := rx.redis.HMGet(rx.ctx, ipcWriteHashKey, name, name+":event").Result()
	if err != nil {
		rx.log.Error("Failed to read write value for %s: %v", name, err)
		return
	}

	req, ok := writeRequest(name, values)
	if !ok {
		rx.log.Warn("No value for write request %s", name)
		return
	}
	rx.sink.SubmitWrite(req)
}

// writeRequest builds a request from the HMGET reply for the value and event
// fields.
func writeRequest(name string, values []interface{}) (WriteRequest, bool) {
	if len(values) == 0 {
		return WriteRequest{}, false
	}
	raw, ok := values[0].(string)
	if !ok {
		return WriteRequest{}, false
	}

	req := WriteRequest{Name: name, Value: signals.ParseValue(raw)}
	if len(values) > 1 {
		if ev, ok := values[1].(string); ok && ev != "" {
			event := signals.ParseValue(ev)
			req.Event = &event
		}
	}
	return req, true
}

func (rx *IPCRx) Destroy() {
	rx.mu.Lock()
	defer rx.mu.Unlock()

	if rx.cancel != nil {
		rx.cancel()
	}
	if rx.writeSubscription != nil {
		rx.writeSubscription.Close()
	}
}
