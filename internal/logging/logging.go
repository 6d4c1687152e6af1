// Package logging provides the structured logger used across the server.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logging surface consumed by services and handlers.
// keyvals are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// Options configures New.
type Options struct {
	Level  string
	Format string // json or console
	Writer io.Writer
}

// ZeroLogger adapts a zerolog.Logger to Logger.
type ZeroLogger struct {
	zl zerolog.Logger
}

var _ Logger = (*ZeroLogger)(nil)

// New builds a zerolog-backed logger. Unknown levels fall back to info.
func New(opts Options) *ZeroLogger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(opts.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &ZeroLogger{zl: zl}
}

// Zerolog exposes the wrapped logger.
func (l *ZeroLogger) Zerolog() zerolog.Logger { return l.zl }

// With returns a child logger carrying keyvals on every entry.
func (l *ZeroLogger) With(keyvals ...any) *ZeroLogger {
	return &ZeroLogger{zl: l.zl.With().Fields(normalize(keyvals)).Logger()}
}

func (l *ZeroLogger) Debug(msg string, keyvals ...any) { l.emit(l.zl.Debug(), msg, keyvals) }
func (l *ZeroLogger) Info(msg string, keyvals ...any)  { l.emit(l.zl.Info(), msg, keyvals) }
func (l *ZeroLogger) Warn(msg string, keyvals ...any)  { l.emit(l.zl.Warn(), msg, keyvals) }
func (l *ZeroLogger) Error(msg string, keyvals ...any) { l.emit(l.zl.Error(), msg, keyvals) }

func (l *ZeroLogger) emit(ev *zerolog.Event, msg string, keyvals []any) {
	if ev == nil {
		return
	}
	ev.Fields(normalize(keyvals)).Msg(msg)
}

// normalize pads an odd-length list and renders errors as strings so zerolog
// encodes them readably.
func normalize(keyvals []any) []any {
	if len(keyvals) == 0 {
		return nil
	}
	out := make([]any, 0, len(keyvals)+1)
	for i, v := range keyvals {
		if i%2 == 1 {
			if err, ok := v.(error); ok && err != nil {
				v = err.Error()
			}
		}
		out = append(out, v)
	}
	if len(out)%2 == 1 {
		out = append(out, "(MISSING)")
	}
	return out
}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
