package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"can-translator/canbus"
	"can-translator/ecu"
)

var (
	version       = flag.Bool("version", false, "Print version info")
	help          = flag.Bool("help", false, "Print help")
	logLevel      = flag.Int("log", 3, "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	redisServer   = flag.String("redis_server", "127.0.0.1", "Redis server address")
	redisPort     = flag.Int("redis_port", 6379, "Redis server port")
	canDevice     = flag.String("can_device", "can0", "CAN device name, comma separated for several buses")
	canDriver     = flag.String("can_driver", canbus.DriverBrutella, "CAN driver (brutella or einride)")
	bitrate       = flag.Int("bitrate", DefaultBitrate, "CAN bus bit rate")
	ecuType       = flag.String("ecu_type", "bosch", "ECU type (bosch, votol or dbc)")
	dbcPath       = flag.String("dbc", "", "DBC file for ecu_type dbc")
	dbcWriter     = flag.String("dbc_writer", "", "DBC node whose messages are writable")
	pollInterval  = flag.Duration("poll_interval", DefaultPollInterval, "Main loop poll interval")
	rawPassthru   = flag.Bool("raw", false, "Publish every received frame")
	rawWritable   = flag.Bool("raw_write", false, "Allow raw frame writes")
	bypassFilters = flag.Bool("bypass_filters", false, "Accept all frames regardless of the dictionary")
)

const (
	ProjectName    = "can-translator"
	ProjectVersion = "1.0.0"
)

func printVersion() {
	fmt.Printf("%s v%s\n", ProjectName, ProjectVersion)
}

func printHelp() {
	printVersion()
	flag.PrintDefaults()
}

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	logger := NewLeveledLogger(os.Stderr, LogLevel(*logLevel))

	ecuTypeEnum, err := ecu.ParseECUType(*ecuType)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Info("Selected ECU type: %s", ecuTypeEnum)

	opts := &Options{
		LogLevel:        LogLevel(*logLevel),
		RedisServerAddr: *redisServer,
		RedisServerPort: uint16(*redisPort),
		CANDevices:      ParseDevices(*canDevice),
		CANDriver:       *canDriver,
		Bitrate:         *bitrate,
		ECUType:         ecuTypeEnum,
		DBCPath:         *dbcPath,
		DBCWriterNode:   *dbcWriter,
		PollInterval:    *pollInterval,
		RawPassthrough:  *rawPassthru,
		RawWritable:     *rawWritable,
		BypassFilters:   *bypassFilters,
	}
	if err := opts.Validate(); err != nil {
		logger.Fatalf("%v", err)
	}

	app, err := NewTranslatorApp(opts, logger)
	if err != nil {
		logger.Fatalf("failed to create translator: %+v", err)
	}
	defer app.Destroy()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
}
