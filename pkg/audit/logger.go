package audit

import "context"

// Logger records audit events. Implementations must be safe for
// concurrent use.
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

// NopLogger discards all events. Useful in tests and when auditing is
// turned off.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }
