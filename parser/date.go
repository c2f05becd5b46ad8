package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	minYear = 1900
	maxYear = 2100
)

var (
	compactDate = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	isoDate     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	localDate   = regexp.MustCompile(`^(\d{1,2})([/.\-])(\d{1,2})([/.\-])(\d{2}|\d{4})$`)
)

// ParseStrictDate parses the compact YYYYMMDD form used by the strict
// ledger layout. The date must exist in the calendar.
func ParseStrictDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	m := compactDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYYMMDD", s)
	}
	return calendarDate(s, atoi(m[1]), atoi(m[2]), atoi(m[3]))
}

// ParseDate parses the date formats found in free-form exports:
//
//	2024-03-15
//	20240315
//	15/03/2024, 15-03-2024, 15.03.2024, 15/03/24
//
// Day and month are told apart when one of them exceeds 12; otherwise the
// day comes first. A trailing time of day is ignored.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if m := compactDate.FindStringSubmatch(s); m != nil {
		return calendarDate(s, atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := isoDate.FindStringSubmatch(s); m != nil {
		return calendarDate(s, atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := localDate.FindStringSubmatch(s); m != nil {
		if m[2] != m[4] {
			return time.Time{}, fmt.Errorf("invalid date %q: mixed separators", s)
		}
		first, second, year := atoi(m[1]), atoi(m[3]), atoi(m[5])
		if len(m[5]) == 2 {
			year += 2000
		}
		day, month := first, second
		if second > 12 && first <= 12 {
			day, month = second, first
		}
		return calendarDate(s, year, month, day)
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func calendarDate(raw string, year, month, day int) (time.Time, error) {
	if year < minYear || year > maxYear {
		return time.Time{}, fmt.Errorf("invalid date %q: year out of range", raw)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %q: no such day", raw)
	}
	return t, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
