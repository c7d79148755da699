package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// HourlySpec fires at minute 0 of every hour.
const HourlySpec = "0 * * * *"

// ParseSpec parses a standard five-field cron expression.
func ParseSpec(spec string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return schedule, nil
}
