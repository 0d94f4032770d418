package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// WeatherSet lists the weather categories under which a task is feasible.
// Order is preserved; labels are unique.
type WeatherSet []string

// Validate rejects blank, repeated and non-UTF-8 labels.
func (w WeatherSet) Validate() error {
	seen := make(map[string]struct{}, len(w))
	for _, label := range w {
		if !utf8.ValidString(label) {
			return errors.New("weather category is not valid UTF-8: " + strconv.Quote(label))
		}
		if strings.TrimSpace(label) == "" {
			return errors.New("blank weather category")
		}
		if _, dup := seen[label]; dup {
			return errors.New("duplicate weather category " + label)
		}
		seen[label] = struct{}{}
	}
	return nil
}

// Contains reports whether label is one of the allowed categories.
func (w WeatherSet) Contains(label string) bool {
	for _, l := range w {
		if l == label {
			return true
		}
	}
	return false
}

// Normalize returns a non-nil set so it serializes as an empty array.
func (w WeatherSet) Normalize() WeatherSet {
	if w == nil {
		return WeatherSet{}
	}
	return w
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Validate enforces finite bounds and Min <= Max.
func (r Range) Validate() error {
	if isNonFinite(r.Min) || isNonFinite(r.Max) {
		return errors.New("bounds must be finite")
	}
	if r.Min > r.Max {
		return errors.New("min must not exceed max")
	}
	return nil
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func isNonFinite(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
