package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Naive timestamps carry no zone. They are held as time.Time values labelled
// UTC so that comparisons only ever look at the wall clock.
const (
	isoLayout       = "2006-01-02T15:04:05.999999999"
	dateLayout      = "2006-01-02"
	timeOfDayLayout = "15:04:05"
	shortLayout     = "2006-01-02 15:04"
	humanLayout     = "2006-01-02 at 03:04 PM"
)

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// ParseTimestamp parses an ISO-8601 local date-time. The date and time may be
// separated by T or a single space. A trailing Z is accepted and dropped
// without any zone arithmetic. Other offsets are rejected.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "Z")
	s = strings.TrimSuffix(s, "+00:00")
	if len(s) > len(dateLayout) && s[len(dateLayout)] == ' ' {
		s = s[:len(dateLayout)] + "T" + s[len(dateLayout)+1:]
	}
	t, err := time.ParseInLocation(isoLayout, s, time.UTC)
	if err != nil {
		// fall back to a date-time without seconds, e.g. 2025-06-10T14:00
		t2, err2 := time.ParseInLocation("2006-01-02T15:04", s, time.UTC)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
		}
		t = t2
	}
	return t, nil
}

// Naive drops the zone of t, keeping its wall clock.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// FormatISO renders a naive timestamp the way it is accepted on the wire.
func FormatISO(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}

func FormatShort(t time.Time) string { return t.Format(shortLayout) }
func FormatHuman(t time.Time) string { return t.Format(humanLayout) }
func FormatDate(t time.Time) string  { return t.Format(dateLayout) }
func FormatClock(t time.Time) string { return t.Format("15:04") }

// ISOWeekday maps Monday to 1 and Sunday to 7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// StartOfDay returns midnight of t's date.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// TimeOfDay is an offset from midnight.
type TimeOfDay time.Duration

func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second)
}

// ParseTimeOfDay parses an HH:MM:SS 24-hour string. HH:MM is also accepted.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		t, err = time.Parse("15:04", s)
		if err != nil {
			return 0, fmt.Errorf("failed to parse time of day %q: %w", s, err)
		}
	}
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
}

// TimeOfDayOf returns the offset of t from its own midnight.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Sub(StartOfDay(t)))
}

// Add does not wrap at midnight, so a span running past it compares greater
// than any window end.
func (d TimeOfDay) Add(dur time.Duration) TimeOfDay {
	return d + TimeOfDay(dur)
}

// On anchors d to the date of day.
func (d TimeOfDay) On(day time.Time) time.Time {
	return StartOfDay(day).Add(time.Duration(d))
}

func (d TimeOfDay) String() string {
	total := int(time.Duration(d) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
