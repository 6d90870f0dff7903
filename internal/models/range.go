package models

import (
	"fmt"
	"time"
)

// Range selects the aggregation window of a summary.
type Range string

const (
	RangeHour   Range = "hour"
	RangeDay    Range = "day"
	RangeCustom Range = "custom"
)

func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case RangeHour, RangeDay, RangeCustom:
		return r, nil
	}
	return "", fmt.Errorf("unknown range %q", s)
}

// Window returns the duration covered by a fixed range. Custom ranges carry
// explicit bounds and return 0.
func (r Range) Window() time.Duration {
	switch r {
	case RangeHour:
		return time.Hour
	case RangeDay:
		return 24 * time.Hour
	}
	return 0
}
