package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	clock12Regex = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*([AaPp][Mm])$`)
	clock24Regex = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

	ErrInvalidTime = errors.New("invalid time of day")
)

// ParseTimeOfDay reads "h:MM AM|PM" or 24h "HH:MM" and returns the hour (0-23) and minute.
// "12 AM" is hour 0; a PM hour below 12 is shifted by 12.
func ParseTimeOfDay(s string) (hour, min int, err error) {
	s = strings.TrimSpace(s)

	if m := clock12Regex.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		min, _ = strconv.Atoi(m[2])
		if hour < 1 || hour > 12 || min > 59 {
			return 0, 0, ErrInvalidTime
		}
		switch period := strings.ToUpper(m[3]); {
		case period == "PM" && hour < 12:
			hour += 12
		case period == "AM" && hour == 12:
			hour = 0
		}
		return hour, min, nil
	}

	if m := clock24Regex.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		min, _ = strconv.Atoi(m[2])
		if hour > 23 || min > 59 {
			return 0, 0, ErrInvalidTime
		}
		return hour, min, nil
	}
	return 0, 0, ErrInvalidTime
}

// FormatTimeOfDay renders hour (0-23) and minute as "h:MM AM|PM".
func FormatTimeOfDay(hour, min int) string {
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, min, period)
}

// NormalizeTimeOfDay accepts any format ParseTimeOfDay does and returns the "h:MM AM|PM" form.
func NormalizeTimeOfDay(s string) (string, error) {
	hour, min, err := ParseTimeOfDay(s)
	if err != nil {
		return "", err
	}
	return FormatTimeOfDay(hour, min), nil
}

// occurrence returns the moment the time of day s falls on the day of now, in now's location.
func occurrence(s string, now time.Time) (time.Time, error) {
	hour, min, err := ParseTimeOfDay(s)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := now.Date()
	return time.Date(y, mo, d, hour, min, 0, 0, now.Location()), nil
}
