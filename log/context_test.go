package log_test

import (
	"context"
	"testing"

	"github.com/arvidsson/gitsync/log"
	"github.com/stretchr/testify/require"
)

// recordingLogger is a hand-written test double; the module has no
// generated-mock dependency, so fakes are written by hand where needed.
type recordingLogger struct {
	messages []string
}

func (r *recordingLogger) Debug(msg string, keysAndValues ...any) { r.messages = append(r.messages, msg) }
func (r *recordingLogger) Info(msg string, keysAndValues ...any)  { r.messages = append(r.messages, msg) }
func (r *recordingLogger) Warn(msg string, keysAndValues ...any)  { r.messages = append(r.messages, msg) }
func (r *recordingLogger) Error(msg string, keysAndValues ...any) { r.messages = append(r.messages, msg) }

func TestContextLogger(t *testing.T) {
	t.Run("adds logger to context", func(t *testing.T) {
		customLogger := &recordingLogger{}
		ctx := context.Background()
		newCtx := log.ToContext(ctx, customLogger)

		logger := log.FromContext(newCtx)
		require.Equal(t, customLogger, logger, "context should contain provided logger")

		originalLogger := log.FromContext(ctx)
		require.NotEqual(t, customLogger, originalLogger, "original context should not be modified")
	})

	t.Run("returns nil logger if no logger in context", func(t *testing.T) {
		ctx := context.Background()
		logger := log.FromContext(ctx)
		require.Nil(t, logger, "should return nil logger")
	})

	t.Run("FromContextOrNoop never returns nil", func(t *testing.T) {
		ctx := context.Background()
		logger := log.FromContextOrNoop(ctx)
		require.NotNil(t, logger)
		require.NotPanics(t, func() { logger.Debug("hello") })
	})
}
