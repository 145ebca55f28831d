package signals

// Logger is the logging capability the translation engine needs. The
// service passes its leveled logger; tests pass NopLogger.
type Logger interface {
	Printf(format string, v ...interface{})
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	DebugCAN(direction string, id uint32, data []byte, length uint8)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Printf(format string, v ...interface{})                          {}
func (NopLogger) Debug(format string, v ...interface{})                           {}
func (NopLogger) Info(format string, v ...interface{})                            {}
func (NopLogger) Warn(format string, v ...interface{})                            {}
func (NopLogger) Error(format string, v ...interface{})                           {}
func (NopLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {}

// DebugCANFrame logs a frame's payload if logger is set.
func DebugCANFrame(logger Logger, direction string, id uint32, data [8]byte, length uint8) {
	if logger != nil {
		logger.DebugCAN(direction, id, data[:], length)
	}
}
