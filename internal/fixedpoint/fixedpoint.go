// Package fixedpoint converts between human prices, raw quote/base prices,
// discrete ticks on the 1.0001 logarithmic grid, and the Q64.96 square-root
// price representation pools keep as their canonical state.
package fixedpoint

import (
	"errors"
	"math"
	"math/big"
)

// Tick bounds from Uniswap V3
// https://github.com/Uniswap/v3-core/blob/main/contracts/libraries/TickMath.sol
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// DefaultExactDigits is the working precision, in decimal digits, of the
// exact square-root path. 96 digits keep the integer result bit-stable for
// prices in [1e-12, 1e12].
const DefaultExactDigits uint = 96

var (
	// Q96 is 2^96, the fixed-point scale of sqrtPriceX96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	ErrInvalidPrice = errors.New("price must be positive and finite")
)

var (
	logBase  = math.Log(1.0001)
	q96Float = math.Pow(2, 96)
)

// tickSnap absorbs last-ulp rounding noise when a price sits on a grid
// point, e.g. a grid price recovered from a truncated sqrtPriceX96, which
// can land up to ~2e-16 relative below the Pow-computed grid value. A few
// ulps is all it may span: anything wider would misassign representable
// prices just below a grid point to the tick above, breaking the floor
// contract.
const tickSnap = 1e-15

// TickFromPrice returns the unique tick satisfying
// 1.0001^tick <= price < 1.0001^(tick+1), clamped to [MinTick, MaxTick].
// It is monotonic non-decreasing in price.
func TickFromPrice(price float64) (int32, error) {
	if !validPrice(price) {
		return 0, ErrInvalidPrice
	}

	p := price * (1 + tickSnap)
	t := int32(math.Floor(math.Log(p) / logBase))
	if t > MaxTick {
		t = MaxTick
	}
	if t < MinTick {
		t = MinTick
	}

	// The log ratio can be off by an ulp near grid points; settle against
	// the canonical grid so the tick invariant holds exactly.
	for t < MaxTick && PriceFromTick(t+1) <= p {
		t++
	}
	for t > MinTick && PriceFromTick(t) > p {
		t--
	}

	return t, nil
}

// PriceFromTick returns 1.0001^tick, the canonical grid price of a tick.
func PriceFromTick(tick int32) float64 {
	return math.Pow(1.0001, float64(tick))
}

// SqrtPriceX96FromPrice returns floor(sqrt(price) * 2^96) using
// double-precision arithmetic. This is the approximate derivation; see
// SqrtPriceX96FromPriceExact for the high-precision one.
func SqrtPriceX96FromPrice(price float64) (*big.Int, error) {
	if !validPrice(price) {
		return nil, ErrInvalidPrice
	}

	f := math.Sqrt(price) * q96Float
	result, _ := new(big.Float).SetFloat64(f).Int(nil)
	return result, nil
}

// SqrtPriceX96FromPriceExact returns floor(sqrt(price) * 2^96) computed with
// an arbitrary-precision square root at the given number of decimal digits
// of working precision (DefaultExactDigits when digits is zero).
//
// The difference against SqrtPriceX96FromPrice is an observable quantity,
// not an error; the two derivations are never silently mixed.
func SqrtPriceX96FromPriceExact(price float64, digits uint) (*big.Int, error) {
	if !validPrice(price) {
		return nil, ErrInvalidPrice
	}
	if digits == 0 {
		digits = DefaultExactDigits
	}

	// ~3.33 bits per decimal digit, plus headroom for the final truncation.
	prec := uint(math.Ceil(float64(digits)*math.Log2(10))) + 16

	p := new(big.Float).SetPrec(prec).SetFloat64(price)
	s := new(big.Float).SetPrec(prec).Sqrt(p)
	s.Mul(s, new(big.Float).SetPrec(prec).SetInt(Q96))

	result, _ := s.Int(nil)
	return result, nil
}

// SqrtDivergence reports approx - exact for the two sqrtPriceX96 derivations
// of the same price.
func SqrtDivergence(price float64, digits uint) (*big.Int, error) {
	approx, err := SqrtPriceX96FromPrice(price)
	if err != nil {
		return nil, err
	}
	exact, err := SqrtPriceX96FromPriceExact(price, digits)
	if err != nil {
		return nil, err
	}
	return approx.Sub(approx, exact), nil
}

// SqrtPriceX96AtTick returns the sqrt price of a tick's grid price. This is
// the tick-quantized derivation used for range bounds. Results are memoized;
// the returned value is the caller's to mutate.
func SqrtPriceX96AtTick(tick int32) *big.Int {
	if v := memo.get(tick); v != nil {
		return v
	}

	// Grid prices are always positive and finite within tick bounds.
	v, _ := SqrtPriceX96FromPrice(PriceFromTick(tick))
	memo.put(tick, v)
	return new(big.Int).Set(v)
}

// PriceFromSqrtPriceX96 returns (sqrtPriceX96 / 2^96)^2, the raw price a
// sqrt price represents. Right inverse of the sqrt conversions up to the
// truncation they perform.
func PriceFromSqrtPriceX96(sqrtPriceX96 *big.Int) float64 {
	q := new(big.Float).SetInt(Q96)
	s, _ := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q).Float64()
	return s * s
}

// PriceFromHuman converts a human-quoted price into the raw quote/base
// ratio P = token1/token0. When baseIsToken0, the human quote already is
// token1 per token0 and passes through; otherwise the orientation flips to
// 1/human.
func PriceFromHuman(human float64, baseIsToken0 bool) (float64, error) {
	if !validPrice(human) {
		return 0, ErrInvalidPrice
	}
	if baseIsToken0 {
		return human, nil
	}
	return 1 / human, nil
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 1) && !math.IsNaN(p)
}
