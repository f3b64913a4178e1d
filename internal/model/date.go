package model

import (
	"time"

	"github.com/mmeshcher/ludex-store/internal/validation"
)

// ParseDate разбирает календарную дату YYYY-MM-DD как полночь в локальной зоне.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.ParseInLocation(validation.DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate возвращает календарную дату момента t в локальной зоне.
func FormatDate(t time.Time) string {
	return t.In(time.Local).Format(validation.DateLayout)
}

// Midnight возвращает начало суток момента t в локальной зоне.
func Midnight(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
