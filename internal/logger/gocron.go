package logger

import (
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

// gocronLogger routes gocron's internal logging into slog.
type gocronLogger struct {
	log *slog.Logger
}

// Gocron adapts log for use with gocron.WithLogger. gocron's debug and info
// chatter is emitted at debug level.
func Gocron(log *slog.Logger) gocron.Logger {
	return gocronLogger{log: log.With("source", "gocron")}
}

func (l gocronLogger) Debug(msg string, args ...any) { l.log.Debug(msg, args...) }
func (l gocronLogger) Info(msg string, args ...any) { l.log.Debug(msg, args...) }
func (l gocronLogger) Warn(msg string, args ...any) { l.log.Warn(msg, args...) }
func (l gocronLogger) Error(msg string, args ...any) { l.log.Error(msg, args...) }
