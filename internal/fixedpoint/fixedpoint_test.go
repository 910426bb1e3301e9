package fixedpoint

import (
	"errors"
	"math/big"
	"testing"
)

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int literal %q", s)
	}
	return n
}

func TestTickFromPrice(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		expected int32
	}{
		{"lower bound 4545", 4545, 84222},
		{"current 5000", 5000, 85176},
		{"upper bound 5500", 5500, 86129},
		{"unit price", 1, 0},
		{"one grid step up", 1.0001, 1},
		{"just below one grid step", 1.00009, 0},
		{"below unit", 0.5, -6932},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TickFromPrice(tt.price)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("TickFromPrice(%v) = %d, want %d", tt.price, got, tt.expected)
			}
		})
	}
}

func TestTickFromPriceInvalid(t *testing.T) {
	for _, price := range []float64{0, -1, -5000} {
		if _, err := TickFromPrice(price); !errors.Is(err, ErrInvalidPrice) {
			t.Errorf("TickFromPrice(%v) error = %v, want ErrInvalidPrice", price, err)
		}
	}
}

func TestTickRoundTrip(t *testing.T) {
	// tickFromPrice(priceFromTick(t)) == t across the grid, including the
	// ticks where a naive floor(log/log) drifts by one.
	ticks := []int32{MinTick, -100000, -6932, -1, 0, 1, 84222, 85176, 86129, 100000, MaxTick}
	for _, tick := range ticks {
		got, err := TickFromPrice(PriceFromTick(tick))
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}
		if got != tick {
			t.Errorf("round trip tick %d -> %d", tick, got)
		}
	}
}

func TestTickFromPriceBelowGridPoint(t *testing.T) {
	// A price measurably below a grid point belongs to the cell below it.
	// 1e-10 relative is far above rounding noise but well inside one grid
	// cell (1e-4), so the floor contract must assign tick-1.
	for _, tick := range []int32{-100000, -1, 1, 100, 85176, 86129} {
		price := PriceFromTick(tick) * (1 - 1e-10)
		got, err := TickFromPrice(price)
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}
		if got != tick-1 {
			t.Errorf("TickFromPrice just below grid point %d = %d, want %d", tick, got, tick-1)
		}
	}
}

func TestTickFromTruncatedGridSqrt(t *testing.T) {
	// Recovering a grid price from its truncated sqrtPriceX96 loses at most
	// a couple of ulps; the tick assignment must not slip a cell. 84222 is
	// a tick where the recovered price actually lands below the grid value.
	for _, tick := range []int32{84222, 85176, 86129, -100000, -1, 100} {
		back, err := TickFromPrice(PriceFromSqrtPriceX96(SqrtPriceX96AtTick(tick)))
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}
		if back != tick {
			t.Errorf("truncated sqrt at tick %d maps back to tick %d", tick, back)
		}
	}
}

func TestTickMonotonicity(t *testing.T) {
	prices := []float64{1e-9, 0.37, 0.9999, 1, 1.0002, 42, 4545, 4999.99, 5000, 5500, 1e9}
	prev := int32(MinTick)
	for i, p := range prices {
		tick, err := TickFromPrice(p)
		if err != nil {
			t.Fatalf("price %v: %v", p, err)
		}
		if i > 0 && tick < prev {
			t.Errorf("tick decreased: price %v -> %d after %d", p, tick, prev)
		}
		prev = tick
	}
}

func TestSqrtPriceX96FromPrice(t *testing.T) {
	got, err := SqrtPriceX96FromPrice(5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := mustBig(t, "5602277097478614198912276234240")
	if got.Cmp(want) != 0 {
		t.Errorf("SqrtPriceX96FromPrice(5000) = %s, want %s", got, want)
	}
}

func TestSqrtPriceX96Monotonicity(t *testing.T) {
	prices := []float64{0.01, 1, 42, 4545, 5000, 5500, 123456}
	var prev *big.Int
	for _, p := range prices {
		cur, err := SqrtPriceX96FromPrice(p)
		if err != nil {
			t.Fatalf("price %v: %v", p, err)
		}
		if prev != nil && cur.Cmp(prev) <= 0 {
			t.Errorf("sqrt price not strictly increasing at price %v", p)
		}
		prev = cur
	}
}

func TestSqrtPriceX96Exact(t *testing.T) {
	got, err := SqrtPriceX96FromPriceExact(5000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := mustBig(t, "5602277097478613991873193822745")
	if got.Cmp(want) != 0 {
		t.Errorf("exact sqrt price = %s, want %s", got, want)
	}
}

func TestSqrtDivergence(t *testing.T) {
	// The float path and the exact path disagree by a tiny, observable
	// amount; for 5000 the float result lands above the exact one.
	d, err := SqrtDivergence(5000, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Sign() <= 0 {
		t.Fatalf("divergence = %s, want positive", d)
	}
	// Double precision carries ~53 significant bits; the remaining ~50 low
	// bits of a Q96 value are noise.
	if d.BitLen() > 52 {
		t.Errorf("divergence %s is larger than double-precision rounding allows", d)
	}
}

func TestPriceFromSqrtPriceX96RoundTrip(t *testing.T) {
	for _, p := range []float64{0.25, 1, 4545, 5000, 5500} {
		x, err := SqrtPriceX96FromPrice(p)
		if err != nil {
			t.Fatalf("price %v: %v", p, err)
		}
		back := PriceFromSqrtPriceX96(x)
		if diff := (back - p) / p; diff > 1e-12 || diff < -1e-12 {
			t.Errorf("price %v round-tripped to %v", p, back)
		}
	}
}

func TestSqrtPriceX96AtTick(t *testing.T) {
	tick := int32(85176)
	first := SqrtPriceX96AtTick(tick)
	second := SqrtPriceX96AtTick(tick)
	if first.Cmp(second) != 0 {
		t.Fatalf("memoized values differ: %s vs %s", first, second)
	}

	// Returned values are copies; mutating one must not poison the memo.
	first.SetInt64(0)
	third := SqrtPriceX96AtTick(tick)
	if third.Cmp(second) != 0 {
		t.Errorf("memo was corrupted by caller mutation")
	}

	// The grid value round-trips to its own tick.
	back, err := TickFromPrice(PriceFromSqrtPriceX96(third))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back != tick {
		t.Errorf("sqrt at tick %d maps back to tick %d", tick, back)
	}
}

func TestPriceFromHuman(t *testing.T) {
	tests := []struct {
		name         string
		human        float64
		baseIsToken0 bool
		expected     float64
	}{
		{"token0 is base", 5000, true, 5000},
		{"token0 is quote", 5000, false, 1.0 / 5000},
		{"sub-unit flipped", 0.25, false, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PriceFromHuman(tt.human, tt.baseIsToken0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}

	if _, err := PriceFromHuman(0, true); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero human price error = %v, want ErrInvalidPrice", err)
	}
}
