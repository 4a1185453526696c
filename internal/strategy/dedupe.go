package strategy

import "time"

// DedupeTracker allows at most one alert per symbol per calendar day,
// with days counted in a fixed reference location.
type DedupeTracker struct {
	loc  *time.Location
	last map[string]string // symbol -> last alert date (YYYY-MM-DD)
}

// NewDedupeTracker creates a tracker. A nil location means UTC.
func NewDedupeTracker(loc *time.Location) *DedupeTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &DedupeTracker{loc: loc, last: make(map[string]string)}
}

// ShouldAlert reports whether an alert for symbol at ts may be surfaced and,
// if so, records it.
func (d *DedupeTracker) ShouldAlert(symbol string, ts time.Time) bool {
	date := ts.In(d.loc).Format(time.DateOnly)
	if d.last[symbol] == date {
		return false
	}
	d.last[symbol] = date
	return true
}

// LastAlertDate returns the recorded date for symbol, if any.
func (d *DedupeTracker) LastAlertDate(symbol string) (string, bool) {
	v, ok := d.last[symbol]
	return v, ok
}

// Location returns the reference location.
func (d *DedupeTracker) Location() *time.Location { return d.loc }
