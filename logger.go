package agpu

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/agpu/internal/transfer"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for agpu and its transfer machinery.
// By default, agpu produces no log output. Pass nil to restore silence.
//
// Log levels used by agpu:
//   - [slog.LevelDebug]: staging growth, transfer submissions, fence values
//   - [slog.LevelInfo]: device open and close
//   - [slog.LevelWarn]: leaked resources, discarded recordings
//
// Example:
//
//	agpu.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	transfer.SetLogger(l)
}

// Logger returns the current logger used by agpu.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
