package cli

import (
	"log/slog"
	"os"

	"github.com/arvidsson/gitsync/log"
)

// slogLogger adapts log/slog to the log.Logger interface the git package
// expects, the same small-adapter shape nanogit's own logger.go uses to
// wrap a concrete logging library behind the package's internal interface.
type slogLogger struct {
	inner *slog.Logger
}

func (l slogLogger) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }
func (l slogLogger) Info(msg string, kv ...any)  { l.inner.Info(msg, kv...) }
func (l slogLogger) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l slogLogger) Error(msg string, kv ...any) { l.inner.Error(msg, kv...) }

// logger returns the log.Logger the CLI attaches to its Repository.
// Without --debug it stays log.Noop(); with it, every level down to Debug
// goes to stderr as slog's text handler.
func logger() log.Logger {
	if !debug {
		return log.Noop()
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slogLogger{inner: slog.New(handler)}
}
