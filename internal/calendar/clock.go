package calendar

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// дробные секунды после 15:04:05 time.Parse принимает сам
var clockLayouts = []string{"15:04", "15:04:05"}

// ParseDate разбирает дату YYYY-MM-DD и возвращает полночь UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// ParseClock разбирает время суток (HH:MM, HH:MM:SS, HH:MM:SS.fff)
// и возвращает смещение от полуночи.
func ParseClock(s string) (time.Duration, error) {
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second +
			time.Duration(t.Nanosecond()), nil
	}
	return 0, fmt.Errorf("parse time %q: unsupported format", s)
}

// At — момент времени clock в день day.
func At(day time.Time, clock time.Duration) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Add(clock)
}

// DayWindow — окно [start, end) для дня по строкам HH:MM.
func DayWindow(day time.Time, start, end string) (TimeRange, error) {
	from, err := ParseClock(start)
	if err != nil {
		return TimeRange{}, err
	}
	to, err := ParseClock(end)
	if err != nil {
		return TimeRange{}, err
	}
	return NewTimeRange(At(day, from), At(day, to))
}

// FormatClock форматирует время как HH:MM.
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}

// FormatAppointment — человекочитаемая подпись записи, например "Wednesday 08:00 AM".
func FormatAppointment(t time.Time) string {
	return t.Format("Monday 03:04 PM")
}
