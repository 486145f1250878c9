package core

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Month is a calendar month. The zero value means "unknown".
type Month struct {
	year  int
	month time.Month
}

var monthToken = regexp.MustCompile(`(\d{4})-(\d{2})`)

// NewMonth returns a normalized Month, so NewMonth(2024, 13) is 2025-01.
func NewMonth(year int, month time.Month) Month {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Month{year: t.Year(), month: t.Month()}
}

// ParseMonth parses a strict YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q want format YYYY-MM: %w", s, err)
	}
	return NewMonth(t.Year(), t.Month()), nil
}

// FindMonth returns the first valid YYYY-MM token embedded in s.
func FindMonth(s string) (Month, bool) {
	for _, m := range monthToken.FindAllStringSubmatch(s, -1) {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		if mo < 1 || mo > 12 {
			continue
		}
		return NewMonth(y, time.Month(mo)), true
	}
	return Month{}, false
}

func (m Month) Year() int           { return m.year }
func (m Month) Month() time.Month   { return m.month }
func (m Month) IsZero() bool        { return m.year == 0 && m.month == 0 }
func (m Month) Next() Month         { return NewMonth(m.year, m.month+1) }
func (m Month) Before(o Month) bool { return m.year < o.year || (m.year == o.year && m.month < o.month) }
func (m Month) After(o Month) bool  { return o.Before(m) }
func (m Month) FirstDay() Date      { return NewDate(m.year, m.month, 1) }
func (m Month) FiscalYear() int     { return FiscalYear(m.FirstDay().Time) }
func (m Month) Compare(o Month) int { return compareMonths(m, o) }
func (m Month) String() string      { return fmt.Sprintf("%04d-%02d", m.year, int(m.month)) }

// MarshalText implements encoding.TextMarshaler.
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(b []byte) error {
	v, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func compareMonths(a, b Month) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	}
	return 0
}

// MonthRange returns every month from 'from' to 'to', both included.
func MonthRange(from, to Month) []Month {
	var out []Month
	for m := from; !to.Before(m); m = m.Next() {
		out = append(out, m)
	}
	return out
}
