package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without a time of day. The zero value means "unset"
// and is encoded as JSON null.
type Date struct {
	t time.Time
}

// NewDate builds a Date from year/month/day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location, so
// "2025-01-01T00:00:00+05:30" is 2025-01-01 and not the previous UTC day.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// ParseDate parses YYYY-MM-DD. An empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for constants and tests.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d Date) AddDays(n int) Date {
	if d.IsZero() {
		return d
	}
	return Date{t: d.t.AddDate(0, 0, n)}
}

// Add moves the day forward by the span (calendar arithmetic).
func (d Date) Add(s Span) Date {
	if d.IsZero() {
		return d
	}
	return Date{t: d.t.AddDate(s.Years, s.Months, s.Days)}
}

// Sub moves the day backward by the span.
func (d Date) Sub(s Span) Date {
	return d.Add(Span{Years: -s.Years, Months: -s.Months, Days: -s.Days})
}

// DaysUntil returns the number of days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.t.Sub(d.t).Hours() / 24)
}

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// Weekday reports the day of the week.
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

// PrevWeekday returns the closest Monday–Friday strictly before d.
func (d Date) PrevWeekday() Date {
	p := d.AddDays(-1)
	for p.Weekday() == time.Saturday || p.Weekday() == time.Sunday {
		p = p.AddDays(-1)
	}
	return p
}

// MaxDate returns the later of the two days, ignoring unset values.
func MaxDate(a, b Date) Date {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.After(b) {
		return a
	}
	return b
}

// MinDate returns the earlier of the two days, ignoring unset values.
func MinDate(a, b Date) Date {
	if a.IsZero() {
		return b
	}
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Span is a calendar distance, applied with time.AddDate semantics.
type Span struct {
	Years  int
	Months int
	Days   int
}

func (s Span) IsZero() bool { return s.Years == 0 && s.Months == 0 && s.Days == 0 }

func (s Span) String() string {
	return fmt.Sprintf("%dy%dm%dd", s.Years, s.Months, s.Days)
}

// ParseSpan parses forms like "10y", "3m", "30d" or "1y6m".
func ParseSpan(s string) (Span, error) {
	var out Span
	if s == "" {
		return out, fmt.Errorf("empty span")
	}
	n := 0
	digits := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			n = n*10 + int(r-'0')
			digits = true
		case r == 'y' || r == 'm' || r == 'd':
			if !digits {
				return Span{}, fmt.Errorf("span %q: missing number before %q", s, r)
			}
			switch r {
			case 'y':
				out.Years += n
			case 'm':
				out.Months += n
			case 'd':
				out.Days += n
			}
			n, digits = 0, false
		default:
			return Span{}, fmt.Errorf("span %q: unexpected %q", s, r)
		}
	}
	if digits {
		return Span{}, fmt.Errorf("span %q: trailing number without unit", s)
	}
	if out.IsZero() {
		return Span{}, fmt.Errorf("span %q is zero", s)
	}
	return out, nil
}
