// Package pool owns the price, range and liquidity state of one token
// pair. Mint and swap compute their token deltas first, demand payment
// through the settlement port, and only then commit state: a failed
// settlement leaves the pool exactly as it was.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/rangepool/rangepool/internal/fixedpoint"
	"github.com/rangepool/rangepool/internal/ledger"
	"github.com/rangepool/rangepool/internal/liquidity"
	"github.com/rangepool/rangepool/internal/swapmath"
)

var (
	ErrInvalidRange = errors.New("lower tick must be below upper tick")
	ErrNoLiquidity  = errors.New("pool has no liquidity, mint first")
	// ErrSettlement wraps any failure raised inside a settlement callback.
	ErrSettlement = errors.New("settlement failed")
)

// InitMode selects how the initial price becomes the pool's sqrtPriceX96.
type InitMode int

const (
	// ContinuousApprox takes the configured price as-is through the
	// double-precision sqrt.
	ContinuousApprox InitMode = iota
	// ContinuousExact takes it through the arbitrary-precision sqrt.
	ContinuousExact
	// TickQuantized snaps the price to its tick's grid price first.
	TickQuantized
)

// ParseInitMode maps a config string to an InitMode.
func ParseInitMode(s string) (InitMode, error) {
	switch s {
	case "continuous", "continuous-approx", "":
		return ContinuousApprox, nil
	case "continuous-exact":
		return ContinuousExact, nil
	case "tick-quantized":
		return TickQuantized, nil
	}
	return 0, fmt.Errorf("unknown pool init mode %q", s)
}

// SettleContext tells the settler who pays and in what.
type SettleContext struct {
	Pool   ledger.Address
	Payer  ledger.Address
	Token0 ledger.TokenID
	Token1 ledger.TokenID
}

// Settler is the settlement port the pool demands payment through. Amounts
// follow the sign convention "positive = pool receives this token,
// negative = pool pays this token"; mint settlements are always
// non-negative on both legs.
type Settler interface {
	MintSettlement(ctx context.Context, sc SettleContext, amount0, amount1 *big.Int) error
	SwapSettlement(ctx context.Context, sc SettleContext, amount0, amount1 *big.Int) error
}

// Books is the narrow slice of the ledger the pool needs to pay out and to
// verify its own funding. The pool never sees approve or transferFrom.
type Books interface {
	Transfer(token ledger.TokenID, from, to ledger.Address, raw *big.Int) error
	BalanceOf(token ledger.TokenID, addr ledger.Address) (*big.Int, error)
}

// Config describes a pool at construction.
type Config struct {
	Address ledger.Address
	Token0  ledger.TokenID // base; price is token1 per token0
	Token1  ledger.TokenID
	// InitialPrice is the raw price P = token1/token0.
	InitialPrice float64
	InitMode     InitMode
	// ExactDigits is the working precision for ContinuousExact.
	ExactDigits uint
	// Clamp keeps swaps inside the active range.
	Clamp bool
}

// Pool holds one pair's state. All state moves under mu, so the
// compute / settle / commit sequence is observed atomically.
type Pool struct {
	mu     sync.Mutex
	addr   ledger.Address
	token0 ledger.TokenID
	token1 ledger.TokenID
	clamp  bool
	books  Books

	sqrtPriceX96 *big.Int
	lowerTick    int32
	upperTick    int32
	liquidity    *big.Int
}

// Snapshot is a read-only view for displays.
type Snapshot struct {
	Price        float64
	Tick         int32
	LowerTick    int32
	UpperTick    int32
	Liquidity    *big.Int
	SqrtPriceX96 *big.Int
}

// New builds a pool at its initial price with a default range around it
// and no liquidity. The range and liquidity only change through Mint.
func New(cfg Config, books Books) (*Pool, error) {
	var sqrt *big.Int
	var err error
	switch cfg.InitMode {
	case ContinuousExact:
		sqrt, err = fixedpoint.SqrtPriceX96FromPriceExact(cfg.InitialPrice, cfg.ExactDigits)
	case TickQuantized:
		var tick int32
		tick, err = fixedpoint.TickFromPrice(cfg.InitialPrice)
		if err == nil {
			sqrt = fixedpoint.SqrtPriceX96AtTick(tick)
		}
	default:
		sqrt, err = fixedpoint.SqrtPriceX96FromPrice(cfg.InitialPrice)
	}
	if err != nil {
		return nil, err
	}

	lower, err := fixedpoint.TickFromPrice(cfg.InitialPrice * 0.91)
	if err != nil {
		return nil, err
	}
	upper, err := fixedpoint.TickFromPrice(cfg.InitialPrice * 1.10)
	if err != nil {
		return nil, err
	}

	return &Pool{
		addr:         cfg.Address,
		token0:       cfg.Token0,
		token1:       cfg.Token1,
		clamp:        cfg.Clamp,
		books:        books,
		sqrtPriceX96: sqrt,
		lowerTick:    lower,
		upperTick:    upper,
		liquidity:    new(big.Int),
	}, nil
}

func (p *Pool) Address() ledger.Address { return p.addr }
func (p *Pool) Token0() ledger.TokenID  { return p.token0 }
func (p *Pool) Token1() ledger.TokenID  { return p.token1 }

// Mint sets the active range and adds liquidity, pulling the required
// amounts from the payer through the settler. All-or-nothing: the range,
// the liquidity and the payer's funds move only if settlement succeeds.
func (p *Pool) Mint(ctx context.Context, settler Settler, payer ledger.Address, lowerTick, upperTick int32, liquidityToAdd *big.Int) (amount0, amount1 *big.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if lowerTick >= upperTick {
		return nil, nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, lowerTick, upperTick)
	}
	if liquidityToAdd == nil || liquidityToAdd.Sign() <= 0 {
		return nil, nil, swapmath.ErrNonPositiveLiquidity
	}

	sqrtLower := fixedpoint.SqrtPriceX96AtTick(lowerTick)
	sqrtUpper := fixedpoint.SqrtPriceX96AtTick(upperTick)

	amount0, amount1, err = liquidity.RequiredAmounts(liquidityToAdd, sqrtLower, sqrtUpper, p.sqrtPriceX96)
	if err != nil {
		return nil, nil, err
	}

	if err := settler.MintSettlement(ctx, p.settleContext(payer), amount0, amount1); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSettlement, err)
	}

	p.lowerTick = lowerTick
	p.upperTick = upperTick
	p.liquidity.Add(p.liquidity, liquidityToAdd)
	return amount0, amount1, nil
}

// Swap takes amount1In of token1 from the payer and pays token0 out to the
// recipient, moving the price up. The price commits last; a settlement or
// payout failure leaves it untouched.
func (p *Pool) Swap(ctx context.Context, settler Settler, payer, recipient ledger.Address, amount1In *big.Int) (amount1Used, amount0Out *big.Int, clamped bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.liquidity.Sign() <= 0 {
		return nil, nil, false, ErrNoLiquidity
	}

	r := swapmath.Range{
		SqrtLower: fixedpoint.SqrtPriceX96AtTick(p.lowerTick),
		SqrtUpper: fixedpoint.SqrtPriceX96AtTick(p.upperTick),
	}
	res, err := swapmath.SwapToken1In(p.liquidity, p.sqrtPriceX96, amount1In, r, p.clamp)
	if err != nil {
		return nil, nil, false, err
	}

	// Verify the payout is funded before anything moves, so the payer's
	// settlement is never stranded by a failing transfer afterwards. Mint
	// funds the pool; falling short here is a setup error.
	funded, err := p.books.BalanceOf(p.token0, p.addr)
	if err != nil {
		return nil, nil, false, err
	}
	if funded.Cmp(res.Amount0Out) < 0 {
		return nil, nil, false, fmt.Errorf("%w: pool %s holds %s, owes %s",
			ledger.ErrInsufficientBalance, p.addr, funded, res.Amount0Out)
	}

	if err := settler.SwapSettlement(ctx, p.settleContext(payer),
		new(big.Int).Neg(res.Amount0Out), res.Amount1Used); err != nil {
		return nil, nil, false, fmt.Errorf("%w: %w", ErrSettlement, err)
	}

	if err := p.books.Transfer(p.token0, p.addr, recipient, res.Amount0Out); err != nil {
		return nil, nil, false, err
	}

	p.sqrtPriceX96 = res.SqrtNext
	return res.Amount1Used, res.Amount0Out, res.Clamped, nil
}

// Snapshot returns the current state. Prices and ticks derive from the
// committed sqrtPriceX96.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	price := fixedpoint.PriceFromSqrtPriceX96(p.sqrtPriceX96)
	tick, _ := fixedpoint.TickFromPrice(price)
	return Snapshot{
		Price:        price,
		Tick:         tick,
		LowerTick:    p.lowerTick,
		UpperTick:    p.upperTick,
		Liquidity:    new(big.Int).Set(p.liquidity),
		SqrtPriceX96: new(big.Int).Set(p.sqrtPriceX96),
	}
}

func (p *Pool) settleContext(payer ledger.Address) SettleContext {
	return SettleContext{
		Pool:   p.addr,
		Payer:  payer,
		Token0: p.token0,
		Token1: p.token1,
	}
}
