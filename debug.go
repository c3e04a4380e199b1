package amqp

import "github.com/example/amqp-receive-credit/internal/debug"

// Debug log levels used throughout the receive-side credit engine. The
// greater the value, the more verbose; enable with the debug build tag
// and DEBUG_LEVEL environment variable.
const (
	debugLevelInfo  = 1
	debugLevelFrame = 2
	debugLevelTrace = 3
)

func debugLog(level int, format string, v ...interface{}) {
	debug.Log(level, format, v...)
}
