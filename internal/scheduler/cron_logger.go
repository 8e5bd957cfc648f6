package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CronLogger routes the cron library's own logging into zerolog.
// cron logs every wake-up at info level, so those go to debug.
type CronLogger struct {
	log zerolog.Logger
}

var _ cron.Logger = CronLogger{}

// NewCronLogger creates a cron.Logger backed by log
func NewCronLogger(log zerolog.Logger) CronLogger {
	return CronLogger{log: log.With().Str("source", "cron").Logger()}
}

// Info implements cron.Logger
func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(fields(keysAndValues)).Msg(msg)
}

// Error implements cron.Logger
func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(fields(keysAndValues)).Msg(msg)
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 < len(keysAndValues) {
			out[key] = keysAndValues[i+1]
		} else {
			out[key] = nil
		}
	}
	return out
}
