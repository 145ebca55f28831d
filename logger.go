package main

import (
	"fmt"
	"io"

	"can-translator/signals"

	"github.com/sirupsen/logrus"
)

// LeveledLogger adapts a logrus logger to the translator's log levels
type LeveledLogger struct {
	logger   *logrus.Logger
	logLevel LogLevel
}

// NewLeveledLogger creates a new leveled logger writing to out
func NewLeveledLogger(out io.Writer, level LogLevel) *LeveledLogger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	l := &LeveledLogger{logger: logger}
	l.SetLevel(level)
	return l
}

func logrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelNone:
		return logrus.PanicLevel
	case LogLevelError:
		return logrus.ErrorLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelInfo:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// Debug logs a message at DEBUG level
func (l *LeveledLogger) Debug(format string, v ...interface{}) {
	l.logger.Debugf(format, v...)
}

// Info logs a message at INFO level
func (l *LeveledLogger) Info(format string, v ...interface{}) {
	l.logger.Infof(format, v...)
}

// Warn logs a message at WARN level
func (l *LeveledLogger) Warn(format string, v ...interface{}) {
	l.logger.Warnf(format, v...)
}

// Error logs a message at ERROR level
func (l *LeveledLogger) Error(format string, v ...interface{}) {
	l.logger.Errorf(format, v...)
}

// Printf logs at INFO level
func (l *LeveledLogger) Printf(format string, v ...interface{}) {
	l.Info(format, v...)
}

// Fatalf logs a fatal error and exits
func (l *LeveledLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf(format, v...)
}

func (l *LeveledLogger) SetLevel(level LogLevel) {
	l.logLevel = level
	l.logger.SetLevel(logrusLevel(level))
}

func (l *LeveledLogger) GetLevel() LogLevel {
	return l.logLevel
}

// WithBus returns a logrus entry tagged with the bus interface name.
func (l *LeveledLogger) WithBus(bus *signals.Bus) *logrus.Entry {
	return l.logger.WithFields(logrus.Fields{"bus": bus.Address, "iface": bus.Name})
}

// DebugCAN logs CAN frame details at DEBUG level
func (l *LeveledLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {
	if !l.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	dataStr := ""
	for i := uint8(0); i < length && i < 8 && int(i) < len(data); i++ {
		dataStr += fmt.Sprintf("%02X ", data[i])
	}
	l.logger.Debugf("CAN %s: ID=0x%03X Len=%d Data=[%s]", direction, id, length, dataStr)
}

var _ signals.Logger = (*LeveledLogger)(nil)
