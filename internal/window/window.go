// Package window decides whether an instant falls on "today", where today is
// the calendar day in the fixed UTC+5:30 offset regardless of the host timezone.
package window

import (
	"time"

	"cloud.google.com/go/civil"
)

// IST is the fixed offset used for day boundaries.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// Day is the length of the window.
const Day = 24 * time.Hour

// Resolver computes the current day window from a clock.
type Resolver struct {
	now func() time.Time
}

// NewResolver returns a resolver driven by now. A nil now uses time.Now.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

// Today returns the current calendar date in IST.
func (r *Resolver) Today() civil.Date {
	return civil.DateOf(r.now().In(IST))
}

// Start returns IST midnight of the current date, in UTC.
func (r *Resolver) Start() time.Time {
	return r.Today().In(IST).UTC()
}

// End returns the exclusive end of the window.
func (r *Resolver) End() time.Time {
	return r.Start().Add(Day)
}

// Contains reports whether start <= t < start+24h.
func (r *Resolver) Contains(t time.Time) bool {
	start := r.Start()
	return !t.Before(start) && t.Before(start.Add(Day))
}

// ContainsRFC3339 parses s and reports whether it falls in the window.
// Unparseable input is never in the window.
func (r *Resolver) ContainsRFC3339(s string) bool {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return false
	}
	return r.Contains(t)
}
