package liquidity

import (
	"context"
	"math/big"

	"golang.org/x/sync/errgroup"
)

// CandidateRange is one price range to evaluate, as sqrt price boundaries.
type CandidateRange struct {
	SqrtLower *big.Int
	SqrtUpper *big.Int
}

// RangeSizing is the binding liquidity of one candidate range. Err carries
// per-range failures (degenerate range, price outside range) so one bad
// candidate does not sink the batch.
type RangeSizing struct {
	Index     int
	Liquidity *big.Int
	Side      Side
	Err       error
}

// SizeRanges evaluates the binding liquidity the given amounts would reach
// in each candidate range, at most workers ranges at a time. The token0
// side is sized over [current, upper] and the token1 side over
// [lower, current], so the current price must sit inside each range.
func SizeRanges(ctx context.Context, amount0, amount1, sqrtCurrent *big.Int, ranges []CandidateRange, workers int) []RangeSizing {
	if workers <= 0 {
		workers = 1
	}

	results := make([]RangeSizing, len(ranges))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, r := range ranges {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				results[i] = RangeSizing{Index: i, Err: ctx.Err()}
				return nil
			default:
			}
			results[i] = sizeOne(i, amount0, amount1, sqrtCurrent, r)
			return nil
		})
	}
	g.Wait()

	return results
}

func sizeOne(i int, amount0, amount1, sqrtCurrent *big.Int, r CandidateRange) RangeSizing {
	if sqrtCurrent.Cmp(r.SqrtLower) < 0 || sqrtCurrent.Cmp(r.SqrtUpper) > 0 {
		return RangeSizing{Index: i, Err: ErrPriceOutOfRange}
	}

	l0, err := FromAmount0(amount0, sqrtCurrent, r.SqrtUpper)
	if err != nil {
		return RangeSizing{Index: i, Err: err}
	}
	l1, err := FromAmount1(amount1, r.SqrtLower, sqrtCurrent)
	if err != nil {
		return RangeSizing{Index: i, Err: err}
	}

	l, side := Binding(l0, l1)
	return RangeSizing{Index: i, Liquidity: l, Side: side}
}
