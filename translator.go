package main

import (
	"context"
	"time"

	"can-translator/canbus"
	"can-translator/diagnostic"
	"can-translator/ecu"
	"can-translator/filters"
	"can-translator/pipeline"
	"can-translator/signals"

	"github.com/cockroachdb/errors"
)

const (
	StatisticsInterval = 15 * time.Second
	requestBacklog     = 16
)

// Publisher is everything the translator emits towards the application layer.
type Publisher interface {
	pipeline.Publisher
	PublishDiagnostic(bus *signals.Bus, result diagnostic.Result, err error)
	PublishStatistics(bus *signals.Bus, stats signals.BusStatistics, active bool)
}

// WriteRequest asks for a signal write or command.
type WriteRequest struct {
	Name  string
	Value signals.Value
	Event *signals.Value
}

// DiagnosticRequest asks for one PID on a bus.
type DiagnosticRequest struct {
	Bus int
	PID uint8
}

// Translator owns the buses and runs the translation main loop. Everything
// except Submit* must be called from the loop goroutine.
type Translator struct {
	log         *LeveledLogger
	buses       []*signals.Bus
	controllers []canbus.Controller
	filters     *filters.Table
	pipeline    *pipeline.Pipeline
	pids        *diagnostic.Table
	exchanges   map[int]*diagnostic.Exchange
	publisher   Publisher

	pollInterval time.Duration
	writes       chan WriteRequest
	diagRequests chan DiagnosticRequest
}

// NewTranslator builds the buses, dictionary and pipeline for opts. There is
// one controller per entry of opts.CANDevices, in the same order.
func NewTranslator(opts *Options, logger *LeveledLogger, publisher Publisher, controllers []canbus.Controller) (*Translator, error) {
	if len(controllers) != len(opts.CANDevices) {
		return nil, errors.Newf("%d controllers for %d CAN devices", len(controllers), len(opts.CANDevices))
	}

	t := &Translator{
		log:          logger,
		controllers:  controllers,
		filters:      filters.NewTable(),
		pids:         diagnostic.NewTable(),
		exchanges:    make(map[int]*diagnostic.Exchange),
		publisher:    publisher,
		pollInterval: opts.PollInterval,
		writes:       make(chan WriteRequest, requestBacklog),
		diagRequests: make(chan DiagnosticRequest, requestBacklog),
	}

	for i, device := range opts.CANDevices {
		bus := signals.NewBus(i+1, device, opts.Bitrate)
		bus.RawPassthrough = opts.RawPassthrough
		bus.RawWritable = opts.RawWritable
		bus.BypassFilters = opts.BypassFilters
		t.buses = append(t.buses, bus)
	}

	dict, err := ecu.NewDictionary(ecu.ECUConfig{
		Logger:  logger,
		ECUType: opts.ECUType,
		DBCPath: opts.DBCPath,
		DBC:     ecu.DBCOptions{WriterNode: opts.DBCWriterNode, Logger: logger},
	}, t.buses)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build signal dictionary")
	}

	t.pipeline = pipeline.New(dict, publisher, pipeline.WithLogger(logger))

	for _, bus := range t.buses {
		t.exchanges[bus.Address] = diagnostic.NewExchange(bus, t.pids,
			diagnostic.WithLogger(logger),
			diagnostic.WithUnmatched(t.pipeline.Receive),
			diagnostic.WithPollInterval(opts.PollInterval),
		)
	}

	return t, nil
}

func (t *Translator) Buses() []*signals.Bus {
	return t.buses
}

func (t *Translator) Pipeline() *pipeline.Pipeline {
	return t.pipeline
}

// Start configures acceptance filters and starts every controller.
func (t *Translator) Start(ctx context.Context) error {
	perBus := filters.Build(t.pipeline.Dictionary(), t.log)

	for i, bus := range t.buses {
		controller := t.controllers[i]
		entries := filters.Append(perBus[bus.Address], bus.Address, diagnostic.ReplyID)
		if err := t.filters.Configure(bus, entries, controller); err != nil {
			t.log.Warn("Filters not applied on %s: %v", bus.Name, err)
		}
		if err := canbus.Attach(ctx, bus, controller, t.filters, t.log); err != nil {
			return err
		}
		if t.filters.PassAll(bus.Address) {
			t.log.Info("CAN bus %s (%d) attached, accepting all frames", bus.Name, bus.Address)
		} else {
			t.log.Info("CAN bus %s (%d) attached, %d filters", bus.Name, bus.Address, t.filters.Len(bus.Address))
		}
	}
	return nil
}

// SubmitWrite hands a write request to the main loop without blocking.
func (t *Translator) SubmitWrite(req WriteRequest) bool {
	select {
	case t.writes <- req:
		return true
	default:
		t.log.Warn("Write backlog full, dropping write of %s", req.Name)
		return false
	}
}

// SubmitDiagnostic hands a diagnostic request to the main loop without
// blocking.
func (t *Translator) SubmitDiagnostic(req DiagnosticRequest) bool {
	select {
	case t.diagRequests <- req:
		return true
	default:
		t.log.Warn("Diagnostic backlog full, dropping PID 0x%02X", req.PID)
		return false
	}
}

// Run is the translator main loop.
func (t *Translator) Run(ctx context.Context) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	stats := time.NewTicker(StatisticsInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-t.writes:
			t.handleWrite(req)
		case req := <-t.diagRequests:
			t.handleDiagnostic(req)
		case <-stats.C:
			t.reportStatistics()
		case <-ticker.C:
			t.step()
		}
	}
}

// step services every bus once: the diagnostic exchange or the receive
// queue, then the transmit queue.
func (t *Translator) step() {
	for _, bus := range t.buses {
		if ex := t.exchanges[bus.Address]; ex.Active() {
			if ex.Poll() {
				t.finishDiagnostic(bus, ex)
			}
		} else {
			t.pipeline.ProcessReceiveQueue(bus)
		}
		t.pipeline.ProcessWriteQueue(bus)
	}
}

func (t *Translator) handleWrite(req WriteRequest) {
	if !t.pipeline.HandleCommand(req.Name, req.Value, req.Event) {
		t.log.Debug("Write of %s to %s not queued", req.Value, req.Name)
	}
}

func (t *Translator) handleDiagnostic(req DiagnosticRequest) {
	bus := t.pipeline.Dictionary().LookupBus(req.Bus)
	if bus == nil {
		t.log.Warn("Diagnostic request for unknown bus %d", req.Bus)
		return
	}
	ex := t.exchanges[bus.Address]
	if err := ex.Request(req.PID); err != nil {
		t.log.Warn("Diagnostic request failed: %v", err)
		if !errors.Is(err, diagnostic.ErrBusy) {
			t.publisher.PublishDiagnostic(bus, diagnostic.Result{PID: req.PID, State: diagnostic.Idle}, err)
		}
	}
}

func (t *Translator) finishDiagnostic(bus *signals.Bus, ex *diagnostic.Exchange) {
	result := ex.Result()
	var err error
	if result.State == diagnostic.TimedOut {
		err = errors.Wrapf(diagnostic.ErrTimedOut, "PID 0x%02X", result.PID)
		t.log.Warn("Diagnostic request for %s timed out on %s", result.Name, bus.Name)
	} else {
		t.log.Info("Diagnostic %s = %v %s", result.Name, result.Value, result.Unit)
	}
	t.publisher.PublishDiagnostic(bus, result, err)
}

func (t *Translator) reportStatistics() {
	for _, bus := range t.buses {
		stats, active := t.pipeline.Statistics(bus)
		if !active {
			t.log.WithBus(bus).Debug("No CAN traffic")
		}
		t.publisher.PublishStatistics(bus, stats, active)
	}
}

// Close stops every controller.
func (t *Translator) Close() {
	for i, controller := range t.controllers {
		if err := controller.Close(); err != nil {
			t.log.Error("Failed to close %s: %v", t.buses[i].Name, err)
		}
	}
}
