// Package cli is the img2physprop command line: run, init-config, inspect
// and slices. Every command logs through a charmbracelet logger that the
// root command stores in the command context; --verbose lowers its level to
// debug.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger writes to w at level, stamping each line with the wall clock to
// the hundredth of a second.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// stopwatch times one long step of a command
type stopwatch struct {
	logger  *log.Logger
	started time.Time
}

func startStopwatch(l *log.Logger) *stopwatch {
	return &stopwatch{logger: l, started: time.Now()}
}

// finish logs msg at info level followed by the time taken, in milliseconds.
func (s *stopwatch) finish(msg string) {
	s.logger.Infof("%s (%s)", msg, time.Since(s.started).Round(time.Millisecond))
}

type loggerKey struct{}

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// loggerFromContext returns the command logger, or the package default for
// contexts that never passed through the root command (tests, mostly).
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
