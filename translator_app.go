package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"can-translator/canbus"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
)

const (
	RedisHealthCheckInterval = 30 * time.Second
	redisConnectTimeout      = 5 * time.Second
)

type TranslatorApp struct {
	log        *LeveledLogger
	redis      *redis.Client
	ipcRx      *IPCRx
	ipcTx      *IPCTx
	diag       *Diag
	translator *Translator
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewTranslatorApp(opts *Options, logger *LeveledLogger) (*TranslatorApp, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &TranslatorApp{
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	app.redis = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.RedisServerAddr, opts.RedisServerPort),
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	connectCtx, connectCancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer connectCancel()

	app.log.Info("Connecting to Redis at %s:%d...", opts.RedisServerAddr, opts.RedisServerPort)
	if err := app.redis.Ping(connectCtx).Err(); err != nil {
		app.Destroy()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	app.log.Info("Successfully connected to Redis")

	app.ipcTx = NewIPCTx(app.log, app.redis)

	go app.redisHealthCheck()

	controllers := make([]canbus.Controller, 0, len(opts.CANDevices))
	for _, device := range opts.CANDevices {
		controller, err := canbus.New(ctx, opts.CANDriver, device, app.log)
		if err != nil {
			for _, c := range controllers {
				c.Close()
			}
			app.Destroy()
			return nil, err
		}
		controllers = append(controllers, controller)
	}

	translator, err := NewTranslator(opts, app.log, app.ipcTx, controllers)
	if err != nil {
		for _, c := range controllers {
			c.Close()
		}
		app.Destroy()
		return nil, err
	}
	if err := translator.Start(ctx); err != nil {
		translator.Close()
		app.Destroy()
		return nil, err
	}
	app.translator = translator

	go func() {
		defer close(app.done)
		translator.Run(ctx)
	}()
	app.log.Info("Translator running on %d bus(es), ECU type %s", len(opts.CANDevices), opts.ECUType)

	app.ipcRx = NewIPCRx(app.log, app.redis, translator)
	app.diag = NewDiag(app.log, app.redis, translator, translator.Buses()[0].Address)

	return app, nil
}

func (app *TranslatorApp) redisHealthCheck() {
	ticker := time.NewTicker(RedisHealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 2*time.Second)
			if err := app.redis.Ping(ctx).Err(); err != nil {
				app.log.Error("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

func (app *TranslatorApp) Destroy() {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.log.Info("Shutting down translator...")

	if app.cancel != nil {
		app.cancel()
	}

	if app.ipcRx != nil {
		app.ipcRx.Destroy()
		app.log.Info("IPC RX shutdown complete")
	}

	if app.diag != nil {
		app.diag.Destroy()
		app.log.Info("Diagnostics shutdown complete")
	}

	if app.translator != nil {
		<-app.done
		app.translator.Close()
		app.log.Info("CAN shutdown complete")
	}

	if app.ipcTx != nil {
		app.ipcTx.Destroy()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Error("Error closing Redis connection: %v", err)
		} else {
			app.log.Info("Redis connection closed")
		}
	}

	app.log.Info("Translator shutdown complete")
}
