package clinictime

import (
	"fmt"
	"regexp"
	"time"
)

// The platform runs against a single clinic-local timezone. All calendar
// dates and HH:MM wall times are interpreted in that zone; recurrence is
// weekday-based only.

const DateLayout = "2006-01-02"

var hhmmRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// LoadZone resolves the configured IANA zone name.
func LoadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid clinic timezone %q: %w", name, err)
	}
	return loc, nil
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight in the clinic zone.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// ValidHHMM reports whether s is a 24h HH:MM wall time.
func ValidHHMM(s string) bool {
	return hhmmRegex.MatchString(s)
}

// MinutesOfDay converts an HH:MM wall time to minutes since midnight.
func MinutesOfDay(s string) (int, error) {
	if !ValidHHMM(s) {
		return 0, fmt.Errorf("invalid HH:MM time %q", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	return h*60 + m, nil
}

// At anchors an HH:MM wall time onto the given calendar day.
func At(day time.Time, hhmm string) (time.Time, error) {
	minutes, err := MinutesOfDay(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	year, month, dom := day.Date()
	return time.Date(year, month, dom, minutes/60, minutes%60, 0, 0, day.Location()), nil
}
