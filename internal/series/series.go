// Package series normalises raw hourly PV power values to a fixed annual length.
package series

import (
	"encoding/json"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// HoursPerYear is the fixed series length (non-leap calendar year).
const HoursPerYear = 8760

// Series is one cell's hourly yield; always HoursPerYear long once normalised.
type Series []float64

// Zero returns an all-zero annual series.
func Zero() Series {
	return make(Series, HoursPerYear)
}

// Sum is the annual yield of the series.
func (s Series) Sum() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Sum(s)
}

// Clone returns an independent copy.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Normalize converts raw JSON scalars to an annual series. Short input is padded
// with zeros, long input is truncated. Empty input or any non-numeric element
// yields an all-zero series.
func Normalize(raw []json.RawMessage) Series {
	if len(raw) == 0 {
		return Zero()
	}
	n := min(len(raw), HoursPerYear)
	out := Zero()
	for i := range n {
		v, ok := parseNumber(raw[i])
		if !ok {
			return Zero()
		}
		out[i] = v
	}
	return out
}

// FromFloats applies the same length rule as Normalize to numeric input.
// NaN and Inf are not valid yields and zero the whole series.
func FromFloats(vals []float64) Series {
	out := Zero()
	n := min(len(vals), HoursPerYear)
	for i := range n {
		v := vals[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Zero()
		}
		out[i] = v
	}
	return out
}

func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	// JSON numbers never start with a quote, brace or letter.
	switch raw[0] {
	case '"', '{', '[', 'n', 't', 'f':
		return 0, false
	}
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
