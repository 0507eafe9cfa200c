package avtk

import (
	"fmt"
	"math"
	"math/bits"
)

// Rational is an exact fraction used as a time base. A stream with time
// base 1/90000 counts ticks of 1/90000th of a second.
type Rational struct {
	Num int
	Den int
}

// R is shorthand for constructing a Rational.
func R(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Float returns the rational as a float64. A zero denominator yields 0.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Invert swaps numerator and denominator.
func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// IsValid reports whether the rational can be used as a time base.
func (r Rational) IsValid() bool {
	return r.Num > 0 && r.Den > 0
}

// NoPTS marks an unset timestamp. Rescaling passes it through untouched.
const NoPTS = int64(math.MinInt64)

// Rounding selects how rescaled values are rounded.
type Rounding int

const (
	// RoundZero rounds toward zero.
	RoundZero Rounding = 0
	// RoundInf rounds away from zero.
	RoundInf Rounding = 1
	// RoundDown rounds toward negative infinity.
	RoundDown Rounding = 2
	// RoundUp rounds toward positive infinity.
	RoundUp Rounding = 3
	// RoundNearInf rounds to nearest, halfway cases away from zero.
	RoundNearInf Rounding = 5
)

// Rescale computes a*b/c with round-to-nearest. It is exact for any
// operands whose true result fits in an int64.
func Rescale(a, b, c int64) int64 {
	return RescaleRnd(a, b, c, RoundNearInf)
}

// RescaleRnd computes a*b/c with the given rounding, using 128-bit
// intermediates when a*b would overflow. Results outside the int64
// range, c <= 0 or b < 0 yield NoPTS.
func RescaleRnd(a, b, c int64, rnd Rounding) int64 {
	if c <= 0 || b < 0 || !(rnd == RoundZero || rnd == RoundInf || rnd == RoundDown || rnd == RoundUp || rnd == RoundNearInf) {
		return NoPTS
	}
	if a == NoPTS {
		return NoPTS
	}
	if a < 0 {
		// Negating the input flips the direction of Up/Down.
		return -RescaleRnd(-a, b, c, rnd^Rounding((rnd>>1)&1))
	}

	var r int64
	switch {
	case rnd == RoundNearInf:
		r = c / 2
	case rnd&1 != 0:
		r = c - 1
	}

	if b <= math.MaxInt32 && c <= math.MaxInt32 {
		if a <= math.MaxInt32 {
			return (a*b + r) / c
		}
		ad := a / c
		a2 := (a%c*b + r) / c
		if ad > (math.MaxInt64-a2)/b {
			return NoPTS
		}
		return ad*b + a2
	}

	hi, lo := bits.Mul64(uint64(a), uint64(b))
	lo, carry := bits.Add64(lo, uint64(r), 0)
	hi += carry
	if hi >= uint64(c) {
		return NoPTS
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return NoPTS
	}
	return int64(q)
}

// RescaleQ converts a timestamp counted in time base from into one
// counted in time base to, rounding to nearest.
func RescaleQ(ts int64, from, to Rational) int64 {
	return RescaleQRnd(ts, from, to, RoundNearInf)
}

// RescaleQRnd is RescaleQ with an explicit rounding mode.
func RescaleQRnd(ts int64, from, to Rational, rnd Rounding) int64 {
	if ts == NoPTS {
		return NoPTS
	}
	b := int64(from.Num) * int64(to.Den)
	c := int64(from.Den) * int64(to.Num)
	return RescaleRnd(ts, b, c, rnd)
}

// CompareTS compares two timestamps counted in different time bases.
// It returns -1 if a is earlier, 1 if b is earlier and 0 if they
// denote the same instant. The comparison is exact, never lossy.
func CompareTS(aTS int64, aTB Rational, bTS int64, bTB Rational) int {
	a := int64(aTB.Num) * int64(bTB.Den)
	b := int64(bTB.Num) * int64(aTB.Den)
	if (abs64(aTS)|a|abs64(bTS)|b) <= math.MaxInt32 {
		switch {
		case aTS*a < bTS*b:
			return -1
		case aTS*a > bTS*b:
			return 1
		}
		return 0
	}
	if RescaleRnd(aTS, a, b, RoundDown) < bTS {
		return -1
	}
	if RescaleRnd(bTS, b, a, RoundDown) < aTS {
		return 1
	}
	return 0
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
