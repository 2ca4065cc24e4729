package helpers

import (
	"math"
	"time"

	"xray-backend/internal/constants"
)

// Today truncates now to a calendar date in its own location
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// FormatDate renders a calendar date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(constants.DateFormat)
}

// ParseDate parses a YYYY-MM-DD date in loc
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(constants.DateFormat, s, loc)
}

// ExpiryFromNow returns today plus days as YYYY-MM-DD
func ExpiryFromNow(now time.Time, days int) string {
	return FormatDate(Today(now).AddDate(0, 0, days))
}

// DaysRemaining returns whole days until expiredAt, clamped at zero.
// Unparseable dates count as zero.
func DaysRemaining(expiredAt string, now time.Time) int {
	exp, err := ParseDate(expiredAt, now.Location())
	if err != nil {
		return 0
	}
	days := int(math.Round(exp.Sub(Today(now)).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}
