package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger is a Logger backed by github.com/rs/zerolog.
type ZerologLogger struct {
	logger zerolog.Logger
}

var _ Logger = (*ZerologLogger)(nil)

// NewZerolog creates a zerolog based logger writing JSON lines to w.
// A nil writer means stdout.
func NewZerolog(w io.Writer, level Level) *ZerologLogger {
	if w == nil {
		w = os.Stdout
	}
	zl := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level))

	return &ZerologLogger{logger: zl}
}

func (l *ZerologLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *ZerologLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

// Fatal logs at error severity with a fatal marker and exits. zerolog's own
// Fatal would exit even when the level filters the event out.
func (l *ZerologLogger) Fatal(msg string, keysAndValues ...any) {
	l.logger.WithLevel(zerolog.FatalLevel).Fields(keysAndValues).Msg(msg)
	os.Exit(1)
}

func (l *ZerologLogger) With(keyValues ...any) Logger {
	return &ZerologLogger{logger: l.logger.With().Fields(keyValues).Logger()}
}

func (l *ZerologLogger) Level() Level {
	switch l.logger.GetLevel() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return DebugLevel
	case zerolog.InfoLevel:
		return InfoLevel
	case zerolog.WarnLevel:
		return WarnLevel
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return FatalLevel
	default:
		return ErrorLevel
	}
}

// SetLevel is not safe for use concurrently with logging calls.
func (l *ZerologLogger) SetLevel(level Level) {
	l.logger = l.logger.Level(toZerologLevel(level))
}

func toZerologLevel(level Level) zerolog.Level {
	switch level {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}
