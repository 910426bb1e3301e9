// Package liquidity sizes single-range liquidity from token amounts and
// derives the token amounts a given liquidity requires.
package liquidity

import (
	"errors"
	"math/big"

	"github.com/rangepool/rangepool/internal/fixedpoint"
	"github.com/rangepool/rangepool/internal/swapmath"
)

var (
	ErrDegenerateRange = errors.New("range boundaries must differ")
	ErrPriceOutOfRange = errors.New("current price outside the range")
)

// Side identifies which token's amount limited a liquidity computation.
type Side int

const (
	Token0Side Side = iota
	Token1Side
)

func (s Side) String() string {
	if s == Token0Side {
		return "token0"
	}
	return "token1"
}

// FromAmount0 returns the liquidity amount0 raw units of token0 support
// over [sqrtA, sqrtB]:
//
//	L0 = amount0 * (sqrtA * sqrtB / 2^96) / (sqrtB - sqrtA)
//
// Boundary order is normalized; passing them reversed is part of the
// contract, not an accident callers may rely on breaking.
func FromAmount0(amount0, sqrtA, sqrtB *big.Int) (*big.Int, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.Cmp(sqrtB) == 0 {
		return nil, ErrDegenerateRange
	}

	l := new(big.Int).Mul(amount0, sqrtA)
	l.Mul(l, sqrtB)
	l.Div(l, fixedpoint.Q96)
	return l.Div(l, new(big.Int).Sub(sqrtB, sqrtA)), nil
}

// FromAmount1 returns the liquidity amount1 raw units of token1 support:
//
//	L1 = amount1 * 2^96 / (sqrtB - sqrtA)
func FromAmount1(amount1, sqrtA, sqrtB *big.Int) (*big.Int, error) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.Cmp(sqrtB) == 0 {
		return nil, ErrDegenerateRange
	}

	l := new(big.Int).Mul(amount1, fixedpoint.Q96)
	return l.Div(l, new(big.Int).Sub(sqrtB, sqrtA)), nil
}

// Binding returns min(l0, l1) and which side limited it. Ties report the
// token0 side.
func Binding(l0, l1 *big.Int) (*big.Int, Side) {
	if l0.Cmp(l1) <= 0 {
		return new(big.Int).Set(l0), Token0Side
	}
	return new(big.Int).Set(l1), Token1Side
}

// RequiredAmounts inverts the sizing: the token amounts a mint of liquidity
// l needs when the current price sits inside [sqrtLower, sqrtUpper]. This
// model does not support minting with the price outside the range.
func RequiredAmounts(l, sqrtLower, sqrtUpper, sqrtCurrent *big.Int) (amount0, amount1 *big.Int, err error) {
	if sqrtCurrent.Cmp(sqrtLower) < 0 || sqrtCurrent.Cmp(sqrtUpper) > 0 {
		return nil, nil, ErrPriceOutOfRange
	}

	amount0 = swapmath.Amount0Delta(l, sqrtUpper, sqrtCurrent)
	amount1 = swapmath.Amount1Delta(l, sqrtCurrent, sqrtLower)
	return amount0, amount1, nil
}
