// Package system provides the wall clock used for deadline decisions.
package system

import "time"

// sast is used when the tz database has no entry for the configured zone.
var sast = time.FixedZone("SAST", 2*60*60)

// Clock implements opportunity.Clock in a fixed location.
type Clock struct {
	loc *time.Location
}

// New creates a UTC clock.
func New() *Clock {
	return &Clock{loc: time.UTC}
}

// NewIn creates a clock reporting time in the named zone. An empty name
// means UTC; an unknown name falls back to South African Standard Time.
func NewIn(zone string) *Clock {
	if zone == "" {
		return New()
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = sast
	}
	return &Clock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	if c == nil || c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}

// Location reports the zone the clock uses.
func (c *Clock) Location() *time.Location {
	if c == nil || c.loc == nil {
		return time.UTC
	}
	return c.loc
}
