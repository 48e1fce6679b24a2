package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Timeframe is a candle granularity as the vendor names it: a unit and a
// multiplier. Its key ("days|1") addresses the state inside a record.
type Timeframe struct {
	Unit     string
	Interval string
}

// DefaultTimeframes is the set harvested when no override is configured.
var DefaultTimeframes = []Timeframe{
	{Unit: "days", Interval: "1"},
	{Unit: "hours", Interval: "4"},
	{Unit: "hours", Interval: "1"},
	{Unit: "minutes", Interval: "15"},
	{Unit: "minutes", Interval: "3"},
	{Unit: "minutes", Interval: "1"},
}

// earliest date the vendor serves per unit
var unitAvailability = map[string]Date{
	"minutes": NewDate(2022, 1, 1),
	"hours":   NewDate(2022, 1, 1),
	"days":    NewDate(2000, 1, 1),
	"weeks":   NewDate(2000, 1, 1),
	"months":  NewDate(2000, 1, 1),
}

// Key returns "<unit>|<interval>".
func (tf Timeframe) Key() string { return tf.Unit + "|" + tf.Interval }

func (tf Timeframe) String() string { return tf.Key() }

// ParseTimeframe accepts "days|1" (and "days:1" for env convenience).
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	unit, interval, ok := strings.Cut(s, "|")
	if !ok {
		unit, interval, ok = strings.Cut(s, ":")
	}
	if !ok {
		return Timeframe{}, fmt.Errorf("timeframe %q: want <unit>|<interval>", s)
	}
	if _, known := unitAvailability[unit]; !known {
		return Timeframe{}, fmt.Errorf("timeframe %q: unknown unit %q", s, unit)
	}
	n, err := strconv.Atoi(interval)
	if err != nil || n <= 0 {
		return Timeframe{}, fmt.Errorf("timeframe %q: interval must be a positive integer", s)
	}
	return Timeframe{Unit: unit, Interval: strconv.Itoa(n)}, nil
}

// ParseTimeframes parses a list and drops duplicates, keeping order.
func ParseTimeframes(keys []string) ([]Timeframe, error) {
	seen := make(map[string]bool)
	var out []Timeframe
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		tf, err := ParseTimeframe(k)
		if err != nil {
			return nil, err
		}
		if seen[tf.Key()] {
			continue
		}
		seen[tf.Key()] = true
		out = append(out, tf)
	}
	return out, nil
}

// Availability is the first day the vendor has data for this unit.
func (tf Timeframe) Availability() Date {
	if d, ok := unitAvailability[tf.Unit]; ok {
		return d
	}
	return NewDate(2000, 1, 1)
}

// DefaultChunk is the widest window the vendor accepts for one request.
func (tf Timeframe) DefaultChunk() Span {
	switch tf.Unit {
	case "days", "weeks", "months":
		return Span{Years: 10}
	case "hours":
		return Span{Months: 3}
	case "minutes":
		if n, err := strconv.Atoi(tf.Interval); err == nil && n <= 15 {
			return Span{Months: 1}
		}
		return Span{Months: 3}
	default:
		return Span{Months: 1}
	}
}
