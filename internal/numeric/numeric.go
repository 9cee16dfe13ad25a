package numeric

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

var ErrInvalidDecimal = errors.New("invalid decimal")

// Parse reads a decimal from its string form as written by Decimal.String.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty string", ErrInvalidDecimal)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	return d, nil
}

func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func FromFloat(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Zero
	}
	return decimal.NewFromFloat(v)
}

// Seconds converts a duration to seconds without rounding.
func Seconds(d time.Duration) decimal.Decimal {
	return decimal.New(int64(d), -9)
}

func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return Zero
	}
	return d
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// PowInt raises base to a non-negative integer power by repeated squaring,
// which keeps the result exact.
func PowInt(base decimal.Decimal, n int64) decimal.Decimal {
	if n <= 0 {
		return One
	}
	result := One
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base)
		}
		n >>= 1
		if n > 0 {
			base = base.Mul(base)
		}
	}
	return result
}

// FloorSqrt returns floor(sqrt(d)) for d >= 0, exact at any magnitude.
func FloorSqrt(d decimal.Decimal) decimal.Decimal {
	if !d.IsPositive() {
		return Zero
	}
	root := new(big.Int).Sqrt(d.Floor().BigInt())
	return decimal.NewFromBigInt(root, 0)
}

var suffixes = []string{"", "K", "M", "B", "T", "Qa", "Qi", "Sx", "Sp", "Oc", "No", "Dc"}

// Format renders a decimal for display: plain up to 1000, short-scale suffixes
// up to 1e36, scientific notation beyond.
func Format(d decimal.Decimal) string {
	neg := d.IsNegative()
	abs := d.Abs()
	var out string
	thousand := decimal.NewFromInt(1000)
	switch {
	case abs.LessThan(thousand):
		out = abs.Round(2).StringFixed(2)
		out = strings.TrimSuffix(strings.TrimRight(out, "0"), ".")
	default:
		idx := 0
		scaled := abs
		for scaled.GreaterThanOrEqual(thousand) && idx < len(suffixes)-1 {
			scaled = scaled.Div(thousand)
			idx++
		}
		if scaled.GreaterThanOrEqual(thousand) {
			exp := len(abs.Truncate(0).String()) - 1
			mant := abs.Shift(-int32(exp))
			out = mant.Truncate(2).StringFixed(2) + "e" + fmt.Sprint(exp)
		} else {
			out = scaled.Truncate(2).StringFixed(2) + suffixes[idx]
		}
	}
	if neg && out != "0" {
		return "-" + out
	}
	return out
}
