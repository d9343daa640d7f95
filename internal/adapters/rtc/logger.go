package rtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// zerologFactory hands pion's scoped loggers to the global zerolog logger.
type zerologFactory struct{}

func NewLoggerFactory() logging.LoggerFactory { return zerologFactory{} }

func (zerologFactory) NewLogger(scope string) logging.LeveledLogger {
	return &zerologLogger{l: log.With().Str("module", "pion").Str("scope", scope).Logger()}
}

type zerologLogger struct {
	l zerolog.Logger
}

func (z *zerologLogger) Trace(msg string) { z.l.Trace().Msg(msg) }
func (z *zerologLogger) Tracef(format string, args ...interface{}) {
	z.l.Trace().Msgf(format, args...)
}
func (z *zerologLogger) Debug(msg string) { z.l.Debug().Msg(msg) }
func (z *zerologLogger) Debugf(format string, args ...interface{}) {
	z.l.Debug().Msgf(format, args...)
}
func (z *zerologLogger) Info(msg string) { z.l.Info().Msg(msg) }
func (z *zerologLogger) Infof(format string, args ...interface{}) {
	z.l.Info().Msgf(format, args...)
}
func (z *zerologLogger) Warn(msg string) { z.l.Warn().Msg(msg) }
func (z *zerologLogger) Warnf(format string, args ...interface{}) {
	z.l.Warn().Msgf(format, args...)
}
func (z *zerologLogger) Error(msg string) { z.l.Error().Msg(msg) }
func (z *zerologLogger) Errorf(format string, args ...interface{}) {
	z.l.Error().Msgf(format, args...)
}
