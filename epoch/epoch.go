// Package epoch provides a sub-nanosecond-resolution time instant used to
// timestamp filter estimates and residuals.
//
// The filter core never interprets an Epoch's calendar meaning; it only
// needs to compare, subtract and add instants. Duration is kept as a
// separate float64-seconds type (rather than time.Duration) so that
// arithmetic over long propagation spans doesn't lose precision to
// time.Duration's int64-nanosecond range.
package epoch

import (
	"fmt"
	"time"
)

// Duration is an elapsed number of seconds, signed, with sub-nanosecond
// resolution.
type Duration float64

// Seconds returns d as a plain float64 number of seconds.
func (d Duration) Seconds() float64 { return float64(d) }

// Epoch is a time instant on a TAI-like continuous timescale, stored as whole
// seconds since a fixed reference instant plus a sub-second float64
// remainder in [0, 1). FromTime takes the reference to be the Unix epoch
// (1970-01-01T00:00:00).
type Epoch struct {
	secs int64
	frac float64 // always in [0, 1)
}

// FromTAISeconds builds an Epoch from a (possibly fractional) count of TAI
// seconds since the reference epoch.
func FromTAISeconds(s float64) Epoch {
	whole := int64(s)
	frac := s - float64(whole)
	if frac < 0 {
		whole--
		frac += 1
	}
	return Epoch{secs: whole, frac: frac}
}

// FromTime builds an Epoch from a standard library time.Time, treating it
// as already expressed in a TAI-like continuous timescale (leap seconds are
// a collaborator concern, out of scope for the filter core).
func FromTime(t time.Time) Epoch {
	return FromTAISeconds(float64(t.Unix()) + float64(t.Nanosecond())*1e-9)
}

// TAISeconds returns e as a float64 count of seconds since the reference
// epoch. For epochs far from the reference this loses sub-nanosecond
// precision; prefer Sub for relative arithmetic.
func (e Epoch) TAISeconds() float64 {
	return float64(e.secs) + e.frac
}

// Add returns the epoch d seconds after e. It splits d into a whole-second
// count and a fractional remainder and combines each with e.secs/e.frac
// separately, mirroring Sub, so that for epochs far from the reference the
// result doesn't lose precision to a collapsed float64 TAISeconds sum.
func (e Epoch) Add(d Duration) Epoch {
	whole := int64(d)
	frac := float64(d) - float64(whole)

	newFrac := e.frac + frac
	switch {
	case newFrac >= 1:
		newFrac -= 1
		whole++
	case newFrac < 0:
		newFrac += 1
		whole--
	}

	return Epoch{secs: e.secs + whole, frac: newFrac}
}

// Sub returns the elapsed duration from other to e (positive if e is after
// other).
func (e Epoch) Sub(other Epoch) Duration {
	return Duration(float64(e.secs-other.secs) + (e.frac - other.frac))
}

// Before reports whether e occurs strictly before other.
func (e Epoch) Before(other Epoch) bool { return e.Sub(other) < 0 }

// After reports whether e occurs strictly after other.
func (e Epoch) After(other Epoch) bool { return e.Sub(other) > 0 }

// Equal reports whether e and other are the same instant to within 1ns.
func (e Epoch) Equal(other Epoch) bool {
	d := e.Sub(other)
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

// String implements fmt.Stringer.
func (e Epoch) String() string {
	return fmt.Sprintf("%d.%09d TAI", e.secs, int64(e.frac*1e9))
}
