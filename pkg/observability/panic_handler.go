package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with a stack trace. It is
// meant to be deferred at goroutine entry points so a single misbehaving
// worker cannot take down the process.
func RecoverPanic(logger *Logger, component string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"component": component,
			"panic":     fmt.Sprintf("%v", r),
			"stack":     string(debug.Stack()),
		}).Error("recovered from panic")
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, and invokes the
// callback with the recovered value.
func RecoverPanicWithCallback(logger *Logger, component string, callback func(interface{})) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"component": component,
			"panic":     fmt.Sprintf("%v", r),
			"stack":     string(debug.Stack()),
		}).Error("recovered from panic")
		if callback != nil {
			callback(r)
		}
	}
}
