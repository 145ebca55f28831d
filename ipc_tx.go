package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"can-translator/diagnostic"
	"can-translator/pipeline"
	"can-translator/signals"

	"github.com/go-redis/redis/v8"
	"go.einride.tech/can"
)

const (
	ipcHashKey       = "can-translator"
	ipcNotifyChannel = "can-translator"
	ipcRawStream     = "events:can-raw"
	ipcDiagStream    = "events:diagnostics"
	ipcDiagHashKey   = "can-translator:obd2"
	ipcBusHashPrefix = "can-translator:bus:"
	ipcStreamMaxLen  = 1000
	ipcTxTimeout     = 500 * time.Millisecond
)

// IPCTx publishes translator output to Redis.
type IPCTx struct {
	log   *LeveledLogger
	redis *redis.Client
	mu    sync.Mutex
	ctx   context.Context
}

func NewIPCTx(logger *LeveledLogger, redis *redis.Client) *IPCTx {
	return &IPCTx{
		log:   logger,
		redis: redis,
		ctx:   context.Background(),
	}
}

func (tx *IPCTx) Destroy() {}

// valueFields flattens a vehicle message into hash fields.
func valueFields(msg pipeline.VehicleMessage) map[string]interface{} {
	fields := map[string]interface{}{msg.Name: msg.Value.String()}
	if msg.Event != nil {
		fields[msg.Name+":event"] = msg.Event.String()
	}
	return fields
}

func rawFields(bus *signals.Bus, frame can.Frame) map[string]interface{} {
	length := frame.Length
	if length > 8 {
		length = 8
	}
	return map[string]interface{}{
		"bus":      bus.Address,
		"id":       fmt.Sprintf("%X", frame.ID),
		"extended": frame.IsExtended,
		"data":     hex.EncodeToString(frame.Data[:length]),
	}
}

func diagnosticFields(bus *signals.Bus, result diagnostic.Result, err error) map[string]interface{} {
	fields := map[string]interface{}{
		"bus":   bus.Address,
		"pid":   fmt.Sprintf("%02X", result.PID),
		"name":  result.Name,
		"state": result.State.String(),
	}
	if err == nil && result.State == diagnostic.MatchFound {
		fields["value"] = result.Value
		fields["unit"] = result.Unit
	}
	return fields
}

func statisticsFields(stats signals.BusStatistics, active bool) map[string]interface{} {
	return map[string]interface{}{
		"received":      stats.Received,
		"dropped":       stats.Dropped,
		"sent":          stats.Sent,
		"send-failures": stats.SendFailures,
		"rx-queued":     stats.RxQueued,
		"tx-queued":     stats.TxQueued,
		"last-message":  stats.LastMessageReceived,
		"active":        map[bool]string{true: "yes", false: "no"}[active],
	}
}

func (tx *IPCTx) Publish(msg pipeline.VehicleMessage) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	ctx, cancel := context.WithTimeout(tx.ctx, ipcTxTimeout)
	defer cancel()

	pipe := tx.redis.Pipeline()
	pipe.HSet(ctx, ipcHashKey, valueFields(msg))
	pipe.Publish(ctx, ipcNotifyChannel, msg.Name)

	if _, err := pipe.Exec(ctx); err != nil {
		tx.log.Error("Failed to publish %s: %v", msg.Name, err)
	}
}

func (tx *IPCTx) PublishRaw(bus *signals.Bus, frame can.Frame) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	ctx, cancel := context.WithTimeout(tx.ctx, ipcTxTimeout)
	defer cancel()

	err := tx.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: ipcRawStream,
		MaxLen: ipcStreamMaxLen,
		Approx: true,
		Values: rawFields(bus, frame),
	}).Err()
	if err != nil {
		tx.log.Error("Failed to publish raw frame 0x%X: %v", frame.ID, err)
	}
}

func (tx *IPCTx) PublishDiagnostic(bus *signals.Bus, result diagnostic.Result, err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	ctx, cancel := context.WithTimeout(tx.ctx, ipcTxTimeout)
	defer cancel()

	pipe := tx.redis.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: ipcDiagStream,
		MaxLen: ipcStreamMaxLen,
		Approx: true,
		Values: diagnosticFields(bus, result, err),
	})
	if err == nil && result.State == diagnostic.MatchFound {
		pipe.HSet(ctx, ipcDiagHashKey, result.Name, result.Value)
	}
	pipe.Publish(ctx, ipcNotifyChannel, "diagnostic")

	if _, err := pipe.Exec(ctx); err != nil {
		tx.log.Error("Failed to publish diagnostic result for PID 0x%02X: %v", result.PID, err)
	}
}

func (tx *IPCTx) PublishStatistics(bus *signals.Bus, stats signals.BusStatistics, active bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	ctx, cancel := context.WithTimeout(tx.ctx, ipcTxTimeout)
	defer cancel()

	key := fmt.Sprintf("%s%d", ipcBusHashPrefix, bus.Address)
	if err := tx.redis.HSet(ctx, key, statisticsFields(stats, active)).Err(); err != nil {
		tx.log.Error("Failed to publish statistics for bus %d: %v", bus.Address, err)
	}
}
