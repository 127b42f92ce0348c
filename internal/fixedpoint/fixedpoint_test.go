package fixedpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithmetic(t *testing.T) {
	a := FromFloat(1.234, -2)
	b := FromFloat(2.345, -2)
	c := FromFloat(3.579, -2)

	t.Run("Add same exponent", func(t *testing.T) {
		assert.True(t, a.Add(b).Equal(c))
	})

	t.Run("Add exponent mismatch panics", func(t *testing.T) {
		assert.Panics(t, func() {
			a.Add(FromFloat(1.0, -3))
		})
	})

	t.Run("Scalar mul and div", func(t *testing.T) {
		assert.True(t, a.MulScalar(2).Equal(FromFloat(2.46, -2)))
		assert.True(t, a.DivScalar(2).Equal(FromFloat(0.62, -2)))
	})

	t.Run("Mul combines exponents", func(t *testing.T) {
		x := New(123, -2).Mul(New(2, -1)) // 1.23 * 0.2
		assert.Equal(t, int32(-3), x.Exp)
		assert.InDelta(t, 0.246, x.Float64(), 1e-12)
	})

	t.Run("MinExpAdd normalizes to smaller exponent", func(t *testing.T) {
		x := New(100, -2).MinExpAdd(New(5, -3)) // 1.00 + 0.005
		assert.Equal(t, int32(-3), x.Exp)
		assert.Equal(t, int64(1005), x.Mantissa)
	})

	t.Run("MinExpSub", func(t *testing.T) {
		x := New(100, -2).MinExpSub(New(5, -3))
		assert.Equal(t, int64(995), x.Mantissa)
	})

	t.Run("Abs", func(t *testing.T) {
		assert.Equal(t, New(5, -2), New(-5, -2).Abs())
		assert.Equal(t, New(5, -2), New(5, -2).Abs())
	})
}

func TestConversions(t *testing.T) {
	a := FromFloat(1.234, -2)

	assert.Equal(t, 1.23, a.Float64())
	assert.Equal(t, int64(1), a.Int64())
	assert.Equal(t, int64(4), FromFloat(3.579, -2).Int64())

	t.Run("Round below resolution is zero", func(t *testing.T) {
		x := New(1, -2) // 0.01
		assert.Equal(t, 0.01, x.Float64())
		assert.Equal(t, int64(0), x.Round(0).Mantissa)
	})

	t.Run("FromString round trip", func(t *testing.T) {
		v, err := FromString("123.456", -2)
		require.NoError(t, err)
		assert.Equal(t, int64(12346), v.Mantissa)

		_, err = FromString("not a number", -2)
		assert.Error(t, err)
	})

	t.Run("FromFloatFloor truncates", func(t *testing.T) {
		assert.Equal(t, int64(123), FromFloatFloor(1.239, -2).Mantissa)
		assert.Equal(t, int64(123), FromFloat(1.234, -2).Mantissa)
	})

	t.Run("DivRound at caller exponent", func(t *testing.T) {
		q := FromFloat(10, 0).DivRound(FromFloat(3, 0), -2)
		assert.Equal(t, int64(333), q.Mantissa)
		assert.Equal(t, int32(-2), q.Exp)

		f := FromFloat(10, 0).DivFloor(FromFloat(3, 0), -2)
		assert.Equal(t, int64(333), f.Mantissa)
	})
}

func TestNormalizedComparison(t *testing.T) {
	t.Run("Different exponents different values", func(t *testing.T) {
		// 0.01 != 0.001
		assert.False(t, New(1, -2).Equal(New(1, -3)))
	})

	t.Run("Different representations same value", func(t *testing.T) {
		// 0.100 == 0.10
		assert.True(t, New(100, -3).Equal(New(10, -2)))
	})

	t.Run("Ordering", func(t *testing.T) {
		assert.True(t, New(99, -2).Less(New(1, 0)))
		assert.True(t, New(101, -2).Greater(New(1, 0)))
		assert.Equal(t, 0, New(100, -2).Cmp(New(1, 0)))
	})
}

func TestString(t *testing.T) {
	assert.Equal(t, "1.23", FromFloat(1.234, -2).String())
	assert.Equal(t, "1.234", FromFloat(1.234, -3).String())
	assert.Equal(t, "1.2340", FromFloat(1.234, -4).String())
	assert.Equal(t, "1", FromFloat(1.234, 0).String())
}
