// Package shortform classifies videos by their ISO-8601 duration.
package shortform

import (
	"fmt"
	"time"

	"github.com/sosodev/duration"
)

// MaxSeconds is the longest duration still counted as a short.
const MaxSeconds = 180

// Parse converts an ISO-8601 duration such as "PT2M30S" into whole seconds.
func Parse(durationText string) (int64, error) {
	d, err := duration.Parse(durationText)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", durationText, err)
	}
	return int64(d.ToTimeDuration() / time.Second), nil
}

// Seconds is Parse with failures mapped to 0.
func Seconds(durationText string) int64 {
	secs, err := Parse(durationText)
	if err != nil {
		return 0
	}
	return secs
}

// IsShortForm reports whether the duration is at most MaxSeconds.
// Unparseable durations count as 0 seconds and are therefore short.
func IsShortForm(durationText string) bool {
	return Seconds(durationText) <= MaxSeconds
}
