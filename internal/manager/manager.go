// Package manager is the position manager: the single entry point for
// liquidity provision and swaps. It fronts a pool, settles with the ledger
// on the pool's behalf and keeps a human-readable journal of everything
// it does.
package manager

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rangepool/rangepool/internal/journal"
	"github.com/rangepool/rangepool/internal/ledger"
	"github.com/rangepool/rangepool/internal/platform/observability"
	"github.com/rangepool/rangepool/internal/pool"
)

// Manager implements pool.Settler. Payers approve the manager on the
// ledger; during settlement it pulls funds from them by allowance.
type Manager struct {
	addr    ledger.Address
	led     *ledger.Ledger
	jnl     *journal.Journal
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// New builds a manager. The tracer may be nil; the global (no-op by
// default) tracer is used then.
func New(addr ledger.Address, led *ledger.Ledger, jnl *journal.Journal, logger *observability.Logger, metrics *observability.Metrics, tracer trace.Tracer) *Manager {
	if tracer == nil {
		tracer = otel.Tracer("manager")
	}
	return &Manager{
		addr:    addr,
		led:     led,
		jnl:     jnl,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}
}

// Address returns the manager's ledger address, the spender payers approve.
func (m *Manager) Address() ledger.Address { return m.addr }

// Approve grants the manager an allowance of raw units of token from owner.
func (m *Manager) Approve(token ledger.TokenID, owner ledger.Address, raw *big.Int) error {
	if err := m.led.Approve(token, owner, m.addr, raw); err != nil {
		return err
	}
	m.jnl.Append("%s.approve(%s, %s)", owner, m.led.Symbol(token), raw)
	return nil
}

// Mint adds liquidity to the pool's range on behalf of caller, pulling the
// required token amounts from caller by allowance.
func (m *Manager) Mint(ctx context.Context, p *pool.Pool, caller ledger.Address, lowerTick, upperTick int32, liquidityToAdd *big.Int) (amount0, amount1 *big.Int, err error) {
	ctx, span := m.tracer.Start(ctx, "manager.mint", trace.WithAttributes(
		attribute.String("pool", string(p.Address())),
		attribute.String("caller", string(caller)),
		attribute.Int("lower_tick", int(lowerTick)),
		attribute.Int("upper_tick", int(upperTick)),
	))
	defer func() { observability.EndSpanWithError(span, err) }()
	start := time.Now()

	m.jnl.Append("Manager.mint(%s, ticks=[%d, %d], L=%s)", caller, lowerTick, upperTick, liquidityToAdd)

	amount0, amount1, err = p.Mint(ctx, m, caller, lowerTick, upperTick, liquidityToAdd)
	if err != nil {
		m.jnl.Append("Manager.mint failed: %v", err)
		m.metrics.RecordError(ctx, "mint")
		m.logger.LogError(ctx, "mint failed", err, "caller", caller)
		return nil, nil, err
	}

	m.jnl.Append("Manager.mint ok: amount0=%s amount1=%s", amount0, amount1)
	m.metrics.RecordMint(ctx, string(p.Address()), time.Since(start))
	m.logger.LogInfo(ctx, "mint executed",
		"caller", caller,
		"amount0", amount0.String(),
		"amount1", amount1.String(),
	)
	return amount0, amount1, nil
}

// Swap sells token1InRaw of token1 into the pool on behalf of caller and
// pays the token0 proceeds to recipient.
func (m *Manager) Swap(ctx context.Context, p *pool.Pool, caller, recipient ledger.Address, token1InRaw *big.Int) (amount1Used, amount0Out *big.Int, clamped bool, err error) {
	ctx, span := m.tracer.Start(ctx, "manager.swap", trace.WithAttributes(
		attribute.String("pool", string(p.Address())),
		attribute.String("caller", string(caller)),
	))
	defer func() { observability.EndSpanWithError(span, err) }()
	start := time.Now()

	m.jnl.Append("Manager.swap(%s, amount1In=%s)", caller, token1InRaw)

	amount1Used, amount0Out, clamped, err = p.Swap(ctx, m, caller, recipient, token1InRaw)
	if err != nil {
		m.jnl.Append("Manager.swap failed: %v", err)
		m.metrics.RecordError(ctx, "swap")
		m.logger.LogError(ctx, "swap failed", err, "caller", caller)
		return nil, nil, false, err
	}

	m.jnl.Append("Manager.swap ok: amount1Used=%s amount0Out=%s clamped=%v", amount1Used, amount0Out, clamped)
	m.metrics.RecordSwap(ctx, string(p.Address()), clamped, time.Since(start))
	m.logger.LogInfo(ctx, "swap executed",
		"caller", caller,
		"amount1_used", amount1Used.String(),
		"amount0_out", amount0Out.String(),
		"clamped", clamped,
	)
	return amount1Used, amount0Out, clamped, nil
}

// MintSettlement pulls both deposit legs from the payer. Both legs are
// validated before either moves, so a rejection leaves the ledger exactly
// as it was.
func (m *Manager) MintSettlement(ctx context.Context, sc pool.SettleContext, amount0, amount1 *big.Int) error {
	legs := []struct {
		token ledger.TokenID
		raw   *big.Int
	}{
		{sc.Token0, amount0},
		{sc.Token1, amount1},
	}

	for _, leg := range legs {
		if err := m.checkFunds(leg.token, sc.Payer, leg.raw); err != nil {
			m.metrics.RecordSettlementFailure(ctx, string(sc.Pool), "mint")
			return err
		}
	}
	for _, leg := range legs {
		if err := m.pull(leg.token, sc.Payer, sc.Pool, leg.raw); err != nil {
			return err
		}
	}
	return nil
}

// SwapSettlement pulls the positive-signed legs from the payer. The
// negative leg is the pool's payout and is not the settler's to move.
func (m *Manager) SwapSettlement(ctx context.Context, sc pool.SettleContext, amount0, amount1 *big.Int) error {
	legs := []struct {
		token ledger.TokenID
		raw   *big.Int
	}{
		{sc.Token0, amount0},
		{sc.Token1, amount1},
	}

	for _, leg := range legs {
		if leg.raw.Sign() <= 0 {
			continue
		}
		if err := m.checkFunds(leg.token, sc.Payer, leg.raw); err != nil {
			m.metrics.RecordSettlementFailure(ctx, string(sc.Pool), "swap")
			return err
		}
	}
	for _, leg := range legs {
		if leg.raw.Sign() <= 0 {
			continue
		}
		if err := m.pull(leg.token, sc.Payer, sc.Pool, leg.raw); err != nil {
			return err
		}
	}
	return nil
}

// checkFunds verifies allowance then balance for one settlement leg
// without moving anything.
func (m *Manager) checkFunds(token ledger.TokenID, payer ledger.Address, raw *big.Int) error {
	if raw == nil || raw.Sign() <= 0 {
		return nil
	}
	allowed, err := m.led.Allowance(token, payer, m.addr)
	if err != nil {
		return err
	}
	if allowed.Cmp(raw) < 0 {
		return fmt.Errorf("%w: %s allows %s of %s, settlement needs %s",
			ledger.ErrInsufficientAllowance, payer, allowed, m.led.Symbol(token), raw)
	}
	balance, err := m.led.BalanceOf(token, payer)
	if err != nil {
		return err
	}
	if balance.Cmp(raw) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, settlement needs %s",
			ledger.ErrInsufficientBalance, payer, balance, m.led.Symbol(token), raw)
	}
	return nil
}

func (m *Manager) pull(token ledger.TokenID, payer, to ledger.Address, raw *big.Int) error {
	if raw == nil || raw.Sign() <= 0 {
		return nil
	}
	if err := m.led.TransferFrom(token, m.addr, payer, to, raw); err != nil {
		return err
	}
	m.jnl.Append("  transferFrom(%s -> %s, %s %s)", payer, to, raw, m.led.Symbol(token))
	return nil
}
