package logger

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

type cronLogger struct {
	l *Logger
}

// Cron adapts the logger to cron.Logger. Cron's info chatter is logged at debug level.
func (l *Logger) Cron() cron.Logger {
	return cronLogger{l: l}
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvLabels(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, err, kvLabels(keysAndValues))
}

func kvLabels(keysAndValues []interface{}) map[string]string {
	if len(keysAndValues) == 0 {
		return nil
	}
	labels := make(map[string]string, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		labels[fmt.Sprint(keysAndValues[i])] = fmt.Sprint(keysAndValues[i+1])
	}
	return labels
}
