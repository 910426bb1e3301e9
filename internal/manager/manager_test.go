package manager

import (
	"context"
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/rangepool/rangepool/internal/journal"
	"github.com/rangepool/rangepool/internal/ledger"
	"github.com/rangepool/rangepool/internal/platform/observability"
	"github.com/rangepool/rangepool/internal/pool"
)

const (
	managerAddr = ledger.Address("manager")
	poolAddr    = ledger.Address("pool")
	alice       = ledger.Address("alice")
	bob         = ledger.Address("bob")
)

var bookLiquidity = mustBig("1517882343751509783892")

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal " + s)
	}
	return n
}

type fixture struct {
	led *ledger.Ledger
	jnl *journal.Journal
	mgr *Manager
	p   *pool.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	led := ledger.New()
	eth, err := led.Register("ETH", 18)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	usdc, err := led.Register("USDC", 18)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	led.Mint(eth, alice, mustBig("10000000000000000000"))         // 10 ETH
	led.Mint(usdc, alice, mustBig("100000000000000000000000000")) // 100M USDC

	p, err := pool.New(pool.Config{
		Address:      poolAddr,
		Token0:       eth,
		Token1:       usdc,
		InitialPrice: 5000,
		Clamp:        true,
	}, led)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	jnl := journal.New()
	metrics, err := observability.NewMetrics("test", false)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	mgr := New(managerAddr, led, jnl, observability.NewLogger("error", "text"), metrics, nil)

	return &fixture{led: led, jnl: jnl, mgr: mgr, p: p}
}

func (f *fixture) approveAll(t *testing.T) {
	t.Helper()
	max := mustBig("1000000000000000000000000000")
	if err := f.mgr.Approve(f.p.Token0(), alice, max); err != nil {
		t.Fatalf("approve token0: %v", err)
	}
	if err := f.mgr.Approve(f.p.Token1(), alice, max); err != nil {
		t.Fatalf("approve token1: %v", err)
	}
}

func (f *fixture) mint(t *testing.T) (amount0, amount1 *big.Int) {
	t.Helper()
	amount0, amount1, err := f.mgr.Mint(context.Background(), f.p, alice, 84222, 86129, bookLiquidity)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return amount0, amount1
}

func TestApproveMintSwap(t *testing.T) {
	f := newFixture(t)
	f.approveAll(t)

	supply0Before, _ := f.led.TotalSupply(f.p.Token0())
	supply1Before, _ := f.led.TotalSupply(f.p.Token1())

	amount0, amount1 := f.mint(t)

	// The deposit landed on the pool.
	b0, _ := f.led.BalanceOf(f.p.Token0(), poolAddr)
	b1, _ := f.led.BalanceOf(f.p.Token1(), poolAddr)
	if b0.Cmp(amount0) != 0 || b1.Cmp(amount1) != 0 {
		t.Errorf("pool holds (%s, %s), want (%s, %s)", b0, b1, amount0, amount1)
	}
	if got := f.p.Snapshot().Liquidity; got.Cmp(bookLiquidity) != 0 {
		t.Errorf("liquidity = %s, want %s", got, bookLiquidity)
	}

	amountIn := mustBig("42000000000000000000")
	used, out, clamped, err := f.mgr.Swap(context.Background(), f.p, alice, bob, amountIn)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if clamped {
		t.Error("small swap clamped")
	}
	if used.Cmp(amountIn) != 0 {
		t.Errorf("amount1Used = %s, want %s", used, amountIn)
	}
	if got, _ := f.led.BalanceOf(f.p.Token0(), bob); got.Cmp(out) != 0 {
		t.Errorf("recipient got %s, want %s", got, out)
	}

	// Transfers only shuffle balances, never supply.
	supply0After, _ := f.led.TotalSupply(f.p.Token0())
	supply1After, _ := f.led.TotalSupply(f.p.Token1())
	if supply0Before.Cmp(supply0After) != 0 || supply1Before.Cmp(supply1After) != 0 {
		t.Error("total supply changed across mint and swap")
	}
}

func TestMintWithoutAllowanceLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	// Only token0 approved; token1's leg must be rejected up front.
	if err := f.mgr.Approve(f.p.Token0(), alice, mustBig("1000000000000000000000000000")); err != nil {
		t.Fatalf("approve: %v", err)
	}
	aliceBefore, _ := f.led.BalanceOf(f.p.Token0(), alice)

	_, _, err := f.mgr.Mint(context.Background(), f.p, alice, 84222, 86129, bookLiquidity)
	if !errors.Is(err, pool.ErrSettlement) {
		t.Fatalf("error = %v, want ErrSettlement", err)
	}
	if !errors.Is(err, ledger.ErrInsufficientAllowance) {
		t.Fatalf("error = %v, want ErrInsufficientAllowance cause", err)
	}

	// Neither leg moved, even the approved one.
	aliceAfter, _ := f.led.BalanceOf(f.p.Token0(), alice)
	if aliceBefore.Cmp(aliceAfter) != 0 {
		t.Error("token0 leg moved despite rejected settlement")
	}
	if b, _ := f.led.BalanceOf(f.p.Token1(), poolAddr); b.Sign() != 0 {
		t.Error("pool funded despite rejected settlement")
	}
	if f.p.Snapshot().Liquidity.Sign() != 0 {
		t.Error("liquidity committed despite rejected settlement")
	}
}

func TestMintUnderfundedPayer(t *testing.T) {
	f := newFixture(t)
	f.approveAll(t)

	// Allowance is plentiful but alice's 10 ETH cannot cover 100x the
	// book position's token0 leg.
	hundredX := new(big.Int).Mul(bookLiquidity, big.NewInt(100))
	_, _, err := f.mgr.Mint(context.Background(), f.p, alice, 84222, 86129, hundredX)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance cause", err)
	}
	if f.p.Snapshot().Liquidity.Sign() != 0 {
		t.Error("liquidity committed despite underfunded payer")
	}
}

func TestJournalOrder(t *testing.T) {
	f := newFixture(t)
	f.approveAll(t)
	f.jnl.Append("---") // marker so only the mint entries follow
	f.mint(t)

	entries := f.jnl.Entries()
	var tail []string
	for i, e := range entries {
		if e == "---" {
			tail = entries[i+1:]
			break
		}
	}

	want := []string{"Manager.mint(", "  transferFrom(", "  transferFrom(", "Manager.mint ok:"}
	if len(tail) != len(want) {
		t.Fatalf("journal has %d entries after marker, want %d: %q", len(tail), len(want), tail)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tail[i], prefix) {
			t.Errorf("entry %d = %q, want prefix %q", i, tail[i], prefix)
		}
	}
}

func TestJournalRecordsFailure(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.mgr.Mint(context.Background(), f.p, alice, 84222, 86129, bookLiquidity)
	if err == nil {
		t.Fatal("mint succeeded without allowance")
	}

	entries := f.jnl.Entries()
	last := entries[len(entries)-1]
	if !strings.HasPrefix(last, "Manager.mint failed:") {
		t.Errorf("last entry = %q, want a mint failure record", last)
	}
}

func TestSwapClampedAtRangeBoundary(t *testing.T) {
	f := newFixture(t)
	f.approveAll(t)
	f.mint(t)

	amountIn := mustBig("10000000000000000000000000") // 10M USDC
	used, out, clamped, err := f.mgr.Swap(context.Background(), f.p, alice, bob, amountIn)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	if !clamped {
		t.Fatal("expected clamp at the upper boundary")
	}
	if used.Cmp(amountIn) >= 0 {
		t.Errorf("amount1Used = %s, want partial fill", used)
	}

	// The fill drains what a ~1 ETH + 5000 USDC position can absorb:
	// roughly 5239 USDC in, just under 1 ETH out.
	usedF, _ := new(big.Float).SetInt(used).Float64()
	if math.Abs(usedF-5.238677582189381e21)/5.238677582189381e21 > 0.01 {
		t.Errorf("amount1Used = %s, want ~5238.7e18", used)
	}
	outF, _ := new(big.Float).SetInt(out).Float64()
	if math.Abs(outF-9.98976618347425e17)/9.98976618347425e17 > 0.01 {
		t.Errorf("amount0Out = %s, want ~0.999e18", out)
	}

	snap := f.p.Snapshot()
	if snap.Tick != snap.UpperTick {
		t.Errorf("tick after clamped swap = %d, want upper tick %d", snap.Tick, snap.UpperTick)
	}
}
