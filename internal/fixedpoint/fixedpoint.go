// Package fixedpoint
package fixedpoint

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a decimal represented as Mantissa * 10^Exp.
//
// Values are immutable; every operation returns a new Value. Add and Sub
// require both operands to carry the same exponent so that money amounts of
// different precision are never combined silently — callers re-scale with
// Round or use MinExpAdd/MinExpSub when operands may differ.
type Value struct {
	Mantissa int64
	Exp      int32
}

// New returns mantissa * 10^exp.
func New(mantissa int64, exp int32) Value {
	return Value{Mantissa: mantissa, Exp: exp}
}

// FromFloat converts raw to a Value with the given exponent, rounding half
// away from zero.
func FromFloat(raw float64, exp int32) Value {
	return New(int64(math.Round(raw*math.Pow10(int(-exp)))), exp)
}

// FromFloatFloor converts raw to a Value with the given exponent, truncating
// toward negative infinity.
func FromFloatFloor(raw float64, exp int32) Value {
	return New(int64(math.Floor(raw*math.Pow10(int(-exp)))), exp)
}

// FromString parses a decimal string at the given exponent.
func FromString(raw string, exp int32) (Value, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Value{}, fmt.Errorf("fixedpoint: parse %q: %w", raw, err)
	}
	return FromFloat(f, exp), nil
}

// Float64 returns the numeric value as a float64.
func (v Value) Float64() float64 {
	return float64(v.Mantissa) * math.Pow10(int(v.Exp))
}

// Int64 returns the value rounded to exponent 0.
func (v Value) Int64() int64 {
	return v.Round(0).Mantissa
}

// Round re-scales v to the given exponent, rounding half away from zero.
func (v Value) Round(exp int32) Value {
	return New(int64(math.Round(float64(v.Mantissa)*math.Pow10(int(v.Exp-exp)))), exp)
}

// Floor re-scales v to the given exponent, truncating toward negative infinity.
func (v Value) Floor(exp int32) Value {
	return New(int64(math.Floor(float64(v.Mantissa)*math.Pow10(int(v.Exp-exp)))), exp)
}

// Abs returns the absolute value.
func (v Value) Abs() Value {
	if v.Mantissa < 0 {
		return New(-v.Mantissa, v.Exp)
	}
	return v
}

// Add returns v + rhs. Panics if the exponents differ.
func (v Value) Add(rhs Value) Value {
	if v.Exp != rhs.Exp {
		panic(fmt.Sprintf("fixedpoint: Add exponent mismatch: %d != %d", v.Exp, rhs.Exp))
	}
	return New(v.Mantissa+rhs.Mantissa, v.Exp)
}

// Sub returns v - rhs. Panics if the exponents differ.
func (v Value) Sub(rhs Value) Value {
	if v.Exp != rhs.Exp {
		panic(fmt.Sprintf("fixedpoint: Sub exponent mismatch: %d != %d", v.Exp, rhs.Exp))
	}
	return New(v.Mantissa-rhs.Mantissa, v.Exp)
}

// MinExpAdd returns v + rhs after normalizing both operands to the smaller
// exponent. Used when operands may carry different precisions, e.g. summing
// quote balances against cost bases.
func (v Value) MinExpAdd(rhs Value) Value {
	exp := minExp(v.Exp, rhs.Exp)
	return New(v.Round(exp).Mantissa+rhs.Round(exp).Mantissa, exp)
}

// MinExpSub returns v - rhs after normalizing both operands to the smaller
// exponent.
func (v Value) MinExpSub(rhs Value) Value {
	exp := minExp(v.Exp, rhs.Exp)
	return New(v.Round(exp).Mantissa-rhs.Round(exp).Mantissa, exp)
}

// MulScalar returns v * rhs rounded at v's exponent.
func (v Value) MulScalar(rhs float64) Value {
	return New(int64(math.Round(float64(v.Mantissa)*rhs)), v.Exp)
}

// DivScalar returns v / rhs rounded at v's exponent.
func (v Value) DivScalar(rhs float64) Value {
	return New(int64(math.Round(float64(v.Mantissa)/rhs)), v.Exp)
}

// MulInt returns v * rhs.
func (v Value) MulInt(rhs int64) Value {
	return New(v.Mantissa*rhs, v.Exp)
}

// DivInt returns v / rhs with the mantissa truncated.
func (v Value) DivInt(rhs int64) Value {
	return New(v.Mantissa/rhs, v.Exp)
}

// Mul returns v * rhs; the exponents add.
func (v Value) Mul(rhs Value) Value {
	return New(v.Mantissa*rhs.Mantissa, v.Exp+rhs.Exp)
}

// DivRound returns v / rhs at the caller-specified exponent, rounding half
// away from zero. The quotient is computed through a float64 intermediate, so
// results are approximate beyond ~15 significant digits.
func (v Value) DivRound(rhs Value, exp int32) Value {
	return FromFloat(v.Float64()/rhs.Float64(), exp)
}

// DivFloor is DivRound with the result truncated toward negative infinity.
// Same float64 intermediate caveat as DivRound.
func (v Value) DivFloor(rhs Value, exp int32) Value {
	return FromFloatFloor(v.Float64()/rhs.Float64(), exp)
}

// Cmp compares v against rhs after normalizing both to the smaller exponent.
// It returns -1, 0 or 1.
func (v Value) Cmp(rhs Value) int {
	if v.Exp == rhs.Exp {
		return cmpInt64(v.Mantissa, rhs.Mantissa)
	}
	exp := minExp(v.Exp, rhs.Exp)
	return cmpInt64(v.Round(exp).Mantissa, rhs.Round(exp).Mantissa)
}

// Equal reports numeric equality: representations of the same value at
// different exponents compare equal.
func (v Value) Equal(rhs Value) bool { return v.Cmp(rhs) == 0 }

// Less reports v < rhs under normalized comparison.
func (v Value) Less(rhs Value) bool { return v.Cmp(rhs) < 0 }

// Greater reports v > rhs under normalized comparison.
func (v Value) Greater(rhs Value) bool { return v.Cmp(rhs) > 0 }

// String renders with exactly max(0, -Exp) fractional digits.
func (v Value) String() string {
	digits := 0
	if v.Exp < 0 {
		digits = int(-v.Exp)
	}
	return strconv.FormatFloat(v.Float64(), 'f', digits, 64)
}

func minExp(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
