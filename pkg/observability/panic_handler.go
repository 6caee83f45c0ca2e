package observability

import "runtime/debug"

// RecoverPanic recovers a panic from the surrounding function and logs it
// with the full stack trace. Intended for deferred use in background
// goroutines (cron jobs, sweepers) where a panic must not take down the
// process:
//
//	defer observability.RecoverPanic(logger, "block sweep")
//
// The panic is swallowed after logging; the caller's goroutine returns
// normally.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("context", context).
			WithField("stack", string(debug.Stack())).
			Error("Recovered from panic")
	}
}
