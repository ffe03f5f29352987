package log

import "context"

// loggerKey is the key for the logger in the context.
type loggerKey struct{}

// ToContext attaches a Logger to ctx. Subsequent FromContext calls on the
// returned context (or any context derived from it) will return logger.
func ToContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the Logger attached to ctx, or nil if none was
// attached. Most callers should use FromContextOrNoop instead, since a nil
// Logger panics on use.
func FromContext(ctx context.Context) Logger {
	logger, ok := ctx.Value(loggerKey{}).(Logger)
	if !ok {
		return nil
	}

	return logger
}

// FromContextOrNoop is like FromContext but returns a no-op Logger instead
// of nil when ctx carries none.
func FromContextOrNoop(ctx context.Context) Logger {
	if logger := FromContext(ctx); logger != nil {
		return logger
	}

	return noopLogger{}
}
