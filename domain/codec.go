package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Constraint is a structured task field persisted as serialized text.
type Constraint interface {
	WeatherSet | Range
}

// Encode serializes a constraint into its column form. It fails only for
// values Validate would reject, such as non-finite range bounds.
func Encode[T Constraint](v T) (string, error) {
	switch c := any(v).(type) {
	case WeatherSet:
		for _, label := range c {
			if !utf8.ValidString(label) {
				return "", fmt.Errorf("encode constraint: weather category %q is not valid UTF-8", label)
			}
		}
		v = any(c.Normalize()).(T)
	case Range:
		if isNonFinite(c.Min) || isNonFinite(c.Max) {
			return "", fmt.Errorf("encode constraint: non-finite range %v..%v", c.Min, c.Max)
		}
	}
	out, err := sonic.ConfigStd.MarshalToString(v)
	if err != nil {
		return "", fmt.Errorf("encode constraint: %w", err)
	}
	return out, nil
}

// Decode parses a column value produced by Encode. Anything else yields an
// error wrapping ErrMalformedConstraint.
func Decode[T Constraint](s string) (T, error) {
	var v T
	if !sonic.ConfigStd.Valid([]byte(s)) {
		return v, fmt.Errorf("%w: %q is not valid JSON", ErrMalformedConstraint, s)
	}
	if want := openingDelim(v); firstByte(s) != want && !(want == '[' && strings.TrimSpace(s) == "null") {
		return v, fmt.Errorf("%w: expected %c in %q", ErrMalformedConstraint, want, s)
	}
	if err := sonic.ConfigStd.UnmarshalFromString(s, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedConstraint, err)
	}
	if ws, ok := any(v).(WeatherSet); ok {
		v = any(ws.Normalize()).(T)
	}
	return v, nil
}

func openingDelim(v any) byte {
	if _, ok := v.(WeatherSet); ok {
		return '['
	}
	return '{'
}

func firstByte(s string) byte {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return s[0]
}

// EncodedConstraints holds the column form of a task's structured fields.
type EncodedConstraints struct {
	WeatherRestrictions string
	RequiredTemperature string
	IdealHumidity       string
}

// EncodeConstraints serializes all structured fields of t.
func EncodeConstraints(t Task) (EncodedConstraints, error) {
	var (
		enc EncodedConstraints
		err error
	)
	if enc.WeatherRestrictions, err = Encode(t.WeatherRestrictions); err != nil {
		return enc, err
	}
	if enc.RequiredTemperature, err = Encode(t.RequiredTemperature); err != nil {
		return enc, err
	}
	if enc.IdealHumidity, err = Encode(t.IdealHumidity); err != nil {
		return enc, err
	}
	return enc, nil
}

// DecodeConstraints fills the structured fields of t from their column form.
func DecodeConstraints(t *Task, enc EncodedConstraints) error {
	var err error
	if t.WeatherRestrictions, err = Decode[WeatherSet](enc.WeatherRestrictions); err != nil {
		return fmt.Errorf("weatherRestrictions: %w", err)
	}
	if t.RequiredTemperature, err = Decode[Range](enc.RequiredTemperature); err != nil {
		return fmt.Errorf("requiredTemperature: %w", err)
	}
	if t.IdealHumidity, err = Decode[Range](enc.IdealHumidity); err != nil {
		return fmt.Errorf("idealHumidity: %w", err)
	}
	return nil
}
