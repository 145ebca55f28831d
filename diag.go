package main

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
)

const diagRequestChannel = "can-translator:diag"

// Diag accepts OBD-II requests from Redis. A payload is a PID, hex with a 0x
// prefix or decimal, optionally prefixed with a bus address: "0x0C", "2:13".
// Results are published by the translator through IPCTx.
type Diag struct {
	log          *LeveledLogger
	redis        *redis.Client
	sink         requestSink
	defaultBus   int
	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	subscription *redis.PubSub
}

func NewDiag(logger *LeveledLogger, redis *redis.Client, sink requestSink, defaultBus int) *Diag {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Diag{
		log:        logger,
		redis:      redis,
		sink:       sink,
		defaultBus: defaultBus,
		ctx:        ctx,
		cancel:     cancel,
	}

	d.subscription = d.redis.Subscribe(d.ctx, diagRequestChannel)
	go receiveLoop(d.ctx, d.log, "diagnostic", d.subscription, d.handleRequest)

	return d
}

func (d *Diag) handleRequest(payload string) {
	req, err := ParseDiagnosticRequest(payload, d.defaultBus)
	if err != nil {
		d.log.Warn("Invalid diagnostic request %q: %v", payload, err)
		return
	}
	d.sink.SubmitDiagnostic(req)
}

// ParseDiagnosticRequest parses "[bus:]pid".
func ParseDiagnosticRequest(payload string, defaultBus int) (DiagnosticRequest, error) {
	req := DiagnosticRequest{Bus: defaultBus}

	payload = strings.TrimSpace(payload)
	if busPart, pidPart, found := strings.Cut(payload, ":"); found {
		bus, err := strconv.Atoi(strings.TrimSpace(busPart))
		if err != nil {
			return req, errors.Wrapf(err, "bus address %q", busPart)
		}
		req.Bus = bus
		payload = strings.TrimSpace(pidPart)
	}

	pid, err := strconv.ParseUint(payload, 0, 8)
	if err != nil {
		return req, errors.Wrapf(err, "PID %q", payload)
	}
	req.PID = uint8(pid)
	return req, nil
}

func (d *Diag) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	if d.subscription != nil {
		d.subscription.Close()
	}
}
