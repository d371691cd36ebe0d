// Package clock converts between caller-local wall times and the UTC instants
// everything is persisted in.
package clock

import (
	"fmt"
	"time"

	"github.com/sumire/stressless/internal/domain"
)

// ReferenceZone is the fixed zone all instants are stored in.
var ReferenceZone = time.UTC

// ToAbsolute converts a local calendar date and "HH:MM" wall time in the named
// IANA zone to a UTC instant. Local times that do not exist (spring-forward
// gap) or occur twice (fall-back overlap) are rejected with
// domain.ErrInvalidTime rather than silently resolved to an offset.
func ToAbsolute(date time.Time, hhmm, tzName string) (time.Time, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, tzName)
	}

	var hh, mm int
	if _, err := fmt.Sscanf(hhmm, "%2d:%2d", &hh, &mm); err != nil || hh > 23 || mm > 59 || hh < 0 || mm < 0 {
		return time.Time{}, fmt.Errorf("%w: %q is not HH:MM", domain.ErrInvalidInput, hhmm)
	}

	local := time.Date(date.Year(), date.Month(), date.Day(), hh, mm, 0, 0, loc)

	// time.Date normalizes nonexistent wall times onto a real instant, so a
	// round trip that does not reproduce the requested fields means the wall
	// time fell in a DST gap.
	if local.Hour() != hh || local.Minute() != mm || local.Day() != date.Day() {
		return time.Time{}, fmt.Errorf("%w: %s %s in %s", domain.ErrInvalidTime, date.Format("2006-01-02"), hhmm, tzName)
	}

	// An ambiguous wall time maps to two instants an hour apart; which one
	// time.Date picks is unspecified, so probe both directions for a second
	// instant carrying the same wall clock.
	for _, d := range []time.Duration{-time.Hour, time.Hour} {
		if other := local.Add(d).In(loc); other.Hour() == hh && other.Minute() == mm && other.Day() == date.Day() {
			return time.Time{}, fmt.Errorf("%w: %s %s in %s", domain.ErrInvalidTime, date.Format("2006-01-02"), hhmm, tzName)
		}
	}

	return local.In(ReferenceZone), nil
}

// ToLocal renders a stored UTC instant in the named zone, returning the local
// calendar date and "HH:MM" wall time.
func ToLocal(instant time.Time, tzName string) (time.Time, string, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, tzName)
	}
	local := instant.In(loc)
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return date, local.Format("15:04"), nil
}
