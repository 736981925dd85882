// Package wadray implements the fixed point arithmetic used by the lending
// engine. Wads carry 18 decimals, rays carry 27 decimals and percentages are
// expressed in basis points. Every helper rounds half up and reports
// overflow instead of wrapping.
package wadray

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// ErrMultiplicationOverflow signals that an intermediate product does not fit in 256 bits.
	ErrMultiplicationOverflow = errors.New("wadray: MultiplicationOverflow")
	// ErrDivisionByZero signals a zero divisor.
	ErrDivisionByZero = errors.New("wadray: DivisionByZero")
	// ErrUint128Overflow signals a value that exceeds the 128-bit storage width.
	ErrUint128Overflow = errors.New("wadray: Uint128Overflow")
)

var (
	WAD          = uint256.NewInt(1_000_000_000_000_000_000)
	HalfWAD      = uint256.NewInt(500_000_000_000_000_000)
	RAY          = uint256.MustFromDecimal("1000000000000000000000000000")
	HalfRAY      = uint256.MustFromDecimal("500000000000000000000000000")
	WadRayRatio  = uint256.NewInt(1_000_000_000)
	halfRatio    = uint256.NewInt(500_000_000)
	MaxUint128   = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	MaxUint256   = new(uint256.Int).SetAllOne()
	percentScale = uint256.NewInt(PercentageFactor)
	halfPercent  = uint256.NewInt(HalfPercentageFactor)
)

const (
	// PercentageFactor is 100.00% in basis points.
	PercentageFactor = 10_000
	// HalfPercentageFactor is 50.00% in basis points.
	HalfPercentageFactor = 5_000
)

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// Ray returns a fresh copy of RAY.
func Ray() *uint256.Int { return new(uint256.Int).Set(RAY) }

// IsZero treats nil as zero.
func IsZero(v *uint256.Int) bool { return v == nil || v.IsZero() }

// Or returns v, or zero when v is nil.
func Or(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// mulScaled computes (a*b + half) / unit with overflow detection on the
// numerator.
func mulScaled(a, b, half, unit *uint256.Int) (*uint256.Int, error) {
	if a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	if _, overflow = product.AddOverflow(product, half); overflow {
		return nil, ErrMultiplicationOverflow
	}
	return product.Div(product, unit), nil
}

// divScaled computes (a*unit + b/2) / b.
func divScaled(a, b, unit *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	numerator, overflow := new(uint256.Int).MulOverflow(a, unit)
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	half := new(uint256.Int).Rsh(b, 1)
	if _, overflow = numerator.AddOverflow(numerator, half); overflow {
		return nil, ErrMultiplicationOverflow
	}
	return numerator.Div(numerator, b), nil
}

// RayMul returns round(a*b / RAY).
func RayMul(a, b *uint256.Int) (*uint256.Int, error) {
	return mulScaled(Or(a), Or(b), HalfRAY, RAY)
}

// RayDiv returns round(a*RAY / b).
func RayDiv(a, b *uint256.Int) (*uint256.Int, error) {
	return divScaled(Or(a), Or(b), RAY)
}

// WadMul returns round(a*b / WAD).
func WadMul(a, b *uint256.Int) (*uint256.Int, error) {
	return mulScaled(Or(a), Or(b), HalfWAD, WAD)
}

// WadDiv returns round(a*WAD / b).
func WadDiv(a, b *uint256.Int) (*uint256.Int, error) {
	return divScaled(Or(a), Or(b), WAD)
}

// RayToWad converts a ray into a wad, rounding half up.
func RayToWad(a *uint256.Int) *uint256.Int {
	quotient, remainder := new(uint256.Int).DivMod(Or(a), WadRayRatio, new(uint256.Int))
	if remainder.Cmp(halfRatio) >= 0 {
		quotient.AddUint64(quotient, 1)
	}
	return quotient
}

// WadToRay converts a wad into a ray.
func WadToRay(a *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(Or(a), WadRayRatio)
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	return out, nil
}

// PercentMul returns round(value*bps / 10000).
func PercentMul(value *uint256.Int, bps uint64) (*uint256.Int, error) {
	return mulScaled(Or(value), uint256.NewInt(bps), halfPercent, percentScale)
}

// PercentDiv returns round(value*10000 / bps).
func PercentDiv(value *uint256.Int, bps uint64) (*uint256.Int, error) {
	return divScaled(Or(value), uint256.NewInt(bps), percentScale)
}

// ToUint128 checks that v fits the 128-bit storage width and returns a copy.
func ToUint128(v *uint256.Int) (*uint256.Int, error) {
	v = Or(v)
	if v.Cmp(MaxUint128) > 0 {
		return nil, ErrUint128Overflow
	}
	return new(uint256.Int).Set(v), nil
}

// MustRayMul is RayMul for operands known to be in range.
func MustRayMul(a, b *uint256.Int) *uint256.Int {
	out, err := RayMul(a, b)
	if err != nil {
		panic(err)
	}
	return out
}

// Add returns a+b, failing on overflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(Or(a), Or(b))
	if overflow {
		return nil, ErrMultiplicationOverflow
	}
	return out, nil
}

// SubFloor returns a-b, clamped at zero.
func SubFloor(a, b *uint256.Int) *uint256.Int {
	a, b = Or(a), Or(b)
	if a.Cmp(b) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// Min returns a copy of the smaller operand.
func Min(a, b *uint256.Int) *uint256.Int {
	a, b = Or(a), Or(b)
	if a.Cmp(b) <= 0 {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// Pow10 returns 10^n.
func Pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// ParseRay parses a decimal fraction such as "0.04" into its ray value.
func ParseRay(s string) (*uint256.Int, error) {
	return parseFixed(s, 27)
}

// ParseUnits parses a decimal amount such as "10.5" using the given number
// of decimals.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	return parseFixed(s, int(decimals))
}

var errInvalidDecimal = errors.New("wadray: invalid decimal")

func parseFixed(s string, places int) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errInvalidDecimal
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > places {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", errInvalidDecimal, s, places)
	}
	frac += strings.Repeat("0", places-len(frac))
	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	out, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errInvalidDecimal, s)
	}
	return out, nil
}
