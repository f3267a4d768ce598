package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or mute
// it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf logs only when verbose diagnostics are enabled. The decode loop uses
// it for per-chunk noise that would swamp normal logs.
var Debugf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose routes Debugf to the package logger when enabled, or back to a
// no-op when disabled.
func SetVerbose(enabled bool) {
	if enabled {
		Debugf = func(format string, v ...interface{}) { Logf(format, v...) }
		return
	}
	Debugf = func(string, ...interface{}) {}
}
