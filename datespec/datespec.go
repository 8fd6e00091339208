// Package datespec turns the short date expressions typed at the prompt into
// concrete edition dates.
package datespec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Errors reported by Resolve and CheckAvailable.
var (
	ErrInvalidInput = errors.New("unrecognized date input")
	ErrNotArchived  = errors.New("edition predates the archive")
	ErrFutureDate   = errors.New("edition date is in the future")
)

// DefaultMinimumDate is the earliest edition the archive serves.
var DefaultMinimumDate = time.Date(2021, time.January, 1, 0, 0, 0, 0, time.Local)

// Spec is a resolved edition date. NeedsConfirmation is set for every form
// except the empty input, which always means "today".
type Spec struct {
	Date              time.Time
	NeedsConfirmation bool
}

// Resolve parses input relative to now. Accepted forms, tried in order:
//
//	""          today
//	"-N"        N days before today
//	"Y M D"     explicit date; a two-digit year is read as 20YY
//	"M D"       month and day of the current year
//	"W"         most recent ISO weekday W (1=Monday .. 7=Sunday), today included
//
// Anything else returns ErrInvalidInput.
func Resolve(input string, now time.Time) (Spec, error) {
	today := midnight(now)
	input = strings.TrimSpace(input)

	if input == "" {
		return Spec{Date: today}, nil
	}

	if rest, ok := strings.CutPrefix(input, "-"); ok {
		days, err := number(rest)
		if err != nil {
			return Spec{}, err
		}
		return Spec{Date: today.AddDate(0, 0, -days), NeedsConfirmation: true}, nil
	}

	fields := strings.Fields(input)
	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := number(f)
		if err != nil {
			return Spec{}, err
		}
		values[i] = v
	}

	switch len(fields) {
	case 3:
		year, err := widenYear(fields[0], values[0])
		if err != nil {
			return Spec{}, err
		}
		return dateSpec(year, values[1], values[2], now.Location())
	case 2:
		return dateSpec(today.Year(), values[0], values[1], now.Location())
	case 1:
		return weekdaySpec(values[0], today)
	}

	return Spec{}, fmt.Errorf("%w: %q", ErrInvalidInput, input)
}

// CheckAvailable rejects dates the archive cannot serve before any request is
// made. Both bounds compare calendar days.
func CheckAvailable(date, now, minimum time.Time) error {
	day := midnight(date)
	if day.Before(midnight(minimum.In(date.Location()))) {
		return fmt.Errorf("%w: %s is before %s", ErrNotArchived, Slug(day), Slug(minimum))
	}
	if day.After(midnight(now.In(date.Location()))) {
		return fmt.Errorf("%w: %s", ErrFutureDate, Slug(day))
	}
	return nil
}

// Slug formats a date as YYYY-MM-DD.
func Slug(t time.Time) string {
	return t.Format("2006-01-02")
}

var chineseWeekdays = [...]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

// FormatChinese renders a date the way the paper prints it on its masthead,
// e.g. 2024年3月5日星期二.
func FormatChinese(t time.Time) string {
	return fmt.Sprintf("%d年%d月%d日%s", t.Year(), int(t.Month()), t.Day(), chineseWeekdays[t.Weekday()])
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// number accepts a non-empty run of ASCII digits only; signs, spaces and
// non-ASCII digits are rejected.
func number(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty number", ErrInvalidInput)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, s)
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return v, nil
}

func widenYear(raw string, value int) (int, error) {
	switch len(raw) {
	case 4:
		return value, nil
	case 2:
		return 2000 + value, nil
	}
	return 0, fmt.Errorf("%w: year %q must have 2 or 4 digits", ErrInvalidInput, raw)
}

func dateSpec(year, month, day int, loc *time.Location) (Spec, error) {
	if month < 1 || month > 12 || day < 1 {
		return Spec{}, fmt.Errorf("%w: %04d-%02d-%02d is not a calendar date", ErrInvalidInput, year, month, day)
	}

	// time.Date normalizes overflow (Feb 30 -> Mar 1); a round trip catches it.
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return Spec{}, fmt.Errorf("%w: %04d-%02d-%02d is not a calendar date", ErrInvalidInput, year, month, day)
	}

	return Spec{Date: date, NeedsConfirmation: true}, nil
}

func weekdaySpec(weekday int, today time.Time) (Spec, error) {
	if weekday < 1 || weekday > 7 {
		return Spec{}, fmt.Errorf("%w: weekday must be between 1 and 7, got %d", ErrInvalidInput, weekday)
	}

	current := isoWeekday(today)
	offset := (current - weekday + 7) % 7

	// An offset of zero keeps today rather than going back a full week.
	return Spec{Date: today.AddDate(0, 0, -offset), NeedsConfirmation: true}, nil
}

func isoWeekday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}
