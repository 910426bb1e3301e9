// Package swapmath advances a pool's sqrt price against constant liquidity.
// All functions are pure; the caller decides whether to commit a result.
package swapmath

import (
	"errors"
	"math/big"

	"github.com/rangepool/rangepool/internal/fixedpoint"
)

var (
	ErrNonPositiveLiquidity = errors.New("liquidity must be positive")
	ErrNegativeAmount       = errors.New("amount must not be negative")
	ErrOutsideRange         = errors.New("current price outside the clamp range")
)

// Range holds the sqrt prices of a single active range's boundaries.
type Range struct {
	SqrtLower *big.Int
	SqrtUpper *big.Int
}

// Result is the outcome of a swap computation. No state is mutated;
// SqrtNext is what the pool would commit.
type Result struct {
	SqrtNext    *big.Int
	Amount0Out  *big.Int
	Amount1Used *big.Int
	Clamped     bool
}

// Amount1Delta returns floor(L * (sqrtB - sqrtA) / 2^96). Bounds are
// normalized, so argument order does not matter.
//
// Floor division means a computed amount can be a negligible amount below
// the real-valued ideal, never above; cross-checks against floating point
// must allow for that epsilon.
func Amount1Delta(liquidity, sqrtB, sqrtA *big.Int) *big.Int {
	if sqrtB.Cmp(sqrtA) < 0 {
		sqrtB, sqrtA = sqrtA, sqrtB
	}
	d := new(big.Int).Sub(sqrtB, sqrtA)
	d.Mul(liquidity, d)
	return d.Div(d, fixedpoint.Q96)
}

// Amount0Delta returns floor(L * (sqrtB - sqrtA) * 2^96 / (sqrtB * sqrtA)).
// Bounds are normalized as in Amount1Delta.
func Amount0Delta(liquidity, sqrtB, sqrtA *big.Int) *big.Int {
	if sqrtB.Cmp(sqrtA) < 0 {
		sqrtB, sqrtA = sqrtA, sqrtB
	}
	num := new(big.Int).Sub(sqrtB, sqrtA)
	num.Mul(liquidity, num)
	num.Mul(num, fixedpoint.Q96)
	den := new(big.Int).Mul(sqrtB, sqrtA)
	return num.Div(num, den)
}

// SwapToken1In moves the sqrt price up by amount1In of token1 against
// constant liquidity:
//
//	deltaSqrt = floor(amount1In * 2^96 / L)
//
// Token1 in always raises the price; the token0-in, price-decreasing
// direction is not modeled. When clamping is enabled the current price
// must already sit inside [r.SqrtLower, r.SqrtUpper] (ErrOutsideRange
// otherwise), and a move past the upper boundary stops exactly on it:
// Clamped is set and Amount1Used is recomputed for the shorter move, so
// Amount1Used <= amount1In always holds. Unclamped, Amount1Used == amount1In.
func SwapToken1In(liquidity, sqrtCurrent, amount1In *big.Int, r Range, clamp bool) (Result, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return Result{}, ErrNonPositiveLiquidity
	}
	if sqrtCurrent == nil || sqrtCurrent.Sign() <= 0 {
		return Result{}, fixedpoint.ErrInvalidPrice
	}
	if amount1In == nil || amount1In.Sign() < 0 {
		return Result{}, ErrNegativeAmount
	}
	if clamp && (sqrtCurrent.Cmp(r.SqrtLower) < 0 || sqrtCurrent.Cmp(r.SqrtUpper) > 0) {
		return Result{}, ErrOutsideRange
	}

	deltaSqrt := new(big.Int).Mul(amount1In, fixedpoint.Q96)
	deltaSqrt.Div(deltaSqrt, liquidity)
	sqrtNext := deltaSqrt.Add(sqrtCurrent, deltaSqrt)

	// The price only moves up, so the lower boundary can never be crossed.
	clamped := false
	if clamp && sqrtNext.Cmp(r.SqrtUpper) > 0 {
		sqrtNext = new(big.Int).Set(r.SqrtUpper)
		clamped = true
	}

	amount1Used := amount1In
	if clamped {
		amount1Used = Amount1Delta(liquidity, sqrtNext, sqrtCurrent)
	}

	return Result{
		SqrtNext:    sqrtNext,
		Amount0Out:  Amount0Delta(liquidity, sqrtNext, sqrtCurrent),
		Amount1Used: new(big.Int).Set(amount1Used),
		Clamped:     clamped,
	}, nil
}
