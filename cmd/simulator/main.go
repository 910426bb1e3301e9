package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rangepool/rangepool/internal/fixedpoint"
	"github.com/rangepool/rangepool/internal/journal"
	"github.com/rangepool/rangepool/internal/ledger"
	"github.com/rangepool/rangepool/internal/liquidity"
	"github.com/rangepool/rangepool/internal/manager"
	"github.com/rangepool/rangepool/internal/platform/config"
	"github.com/rangepool/rangepool/internal/platform/observability"
	"github.com/rangepool/rangepool/internal/pool"
)

const managerAddr = ledger.Address("manager")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Loading configuration...")
	cfg := config.MustLoad("config.yaml")

	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("range-pool-simulator", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracer, err := observability.NewTracerProvider(ctx, "range-pool-simulator", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	logger.Info("observability setup complete")

	// Ledger: register and fund every configured token.
	led := ledger.New()
	tokens := make(map[string]ledger.TokenID, len(cfg.Tokens))
	for _, tok := range cfg.Tokens {
		id, err := led.Register(tok.Symbol, tok.Decimals)
		if err != nil {
			log.Fatalf("Failed to register token %s: %v", tok.Symbol, err)
		}
		tokens[tok.Symbol] = id

		for addr, human := range tok.Funding {
			raw, err := led.HumanToRaw(id, human)
			if err != nil {
				log.Fatalf("Failed to parse funding for %s: %v", tok.Symbol, err)
			}
			if err := led.Mint(id, ledger.Address(addr), raw); err != nil {
				log.Fatalf("Failed to fund %s with %s: %v", addr, tok.Symbol, err)
			}
			logger.Info("funded address", "address", addr, "token", tok.Symbol, "amount", human)
		}
	}

	initialPrice, err := fixedpoint.PriceFromHuman(cfg.Pool.InitialPrice, cfg.Pool.BaseIsToken0)
	if err != nil {
		log.Fatalf("Invalid initial price: %v", err)
	}

	p, err := pool.New(pool.Config{
		Address:      ledger.Address(cfg.Pool.Address),
		Token0:       tokens[cfg.Pool.Token0],
		Token1:       tokens[cfg.Pool.Token1],
		InitialPrice: initialPrice,
		InitMode:     cfg.Pool.ParsedInitMode(),
		ExactDigits:  cfg.Math.ExactPrecisionDigits,
		Clamp:        cfg.Swap.Clamp,
	}, led)
	if err != nil {
		log.Fatalf("Failed to create pool: %v", err)
	}

	jnl := journal.New()
	mgr := manager.New(managerAddr, led, jnl, logger, metrics, tracer.Tracer())

	logger.Info("pool created",
		"pair", fmt.Sprintf("%s/%s", cfg.Pool.Token0, cfg.Pool.Token1),
		"price", p.Snapshot().Price,
		"init_mode", cfg.Pool.InitMode,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveHTTP(gctx, cfg.HTTP.Port, metrics, logger)
	})

	g.Go(func() error {
		if err := runScenario(gctx, cfg, led, p, mgr, logger, metrics); err != nil {
			logger.LogError(gctx, "scenario failed", err)
			return err
		}
		printSummary(p, led, jnl, tokens, cfg)
		logger.Info("scenario complete, serving metrics until shutdown")
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("Simulator error: %v", err)
	}
	logger.Info("simulator stopped")
}

// runScenario executes the scripted approve, mint, swap sequence from
// the configuration.
func runScenario(
	ctx context.Context,
	cfg *config.Config,
	led *ledger.Ledger,
	p *pool.Pool,
	mgr *manager.Manager,
	logger *observability.Logger,
	metrics *observability.Metrics,
) error {
	sc := cfg.Scenario
	payer := ledger.Address(sc.Payer)
	recipient := ledger.Address(sc.Recipient)

	amount0, err := led.HumanToRaw(p.Token0(), sc.DepositAmount0)
	if err != nil {
		return fmt.Errorf("deposit amount0: %w", err)
	}
	amount1, err := led.HumanToRaw(p.Token1(), sc.DepositAmount1)
	if err != nil {
		return fmt.Errorf("deposit amount1: %w", err)
	}

	if err := mgr.Approve(p.Token0(), payer, amount0); err != nil {
		return fmt.Errorf("approve token0: %w", err)
	}
	if err := mgr.Approve(p.Token1(), payer, amount1); err != nil {
		return fmt.Errorf("approve token1: %w", err)
	}

	lowerTick, upperTick, err := scenarioRange(cfg, p)
	if err != nil {
		return err
	}

	sqrtLower := fixedpoint.SqrtPriceX96AtTick(lowerTick)
	sqrtUpper := fixedpoint.SqrtPriceX96AtTick(upperTick)
	sqrtCurrent := p.Snapshot().SqrtPriceX96

	// Survey a few alternative widths around the chosen range before
	// committing, the way an LP compares placements.
	surveyRanges(ctx, logger, amount0, amount1, sqrtCurrent, lowerTick, upperTick)

	l0, err := liquidity.FromAmount0(amount0, sqrtCurrent, sqrtUpper)
	if err != nil {
		return fmt.Errorf("sizing token0: %w", err)
	}
	l1, err := liquidity.FromAmount1(amount1, sqrtLower, sqrtCurrent)
	if err != nil {
		return fmt.Errorf("sizing token1: %w", err)
	}
	l, side := liquidity.Binding(l0, l1)
	logger.Info("position sized",
		"liquidity", l.String(),
		"binding_side", side.String(),
		"ticks", fmt.Sprintf("[%d, %d]", lowerTick, upperTick),
	)

	if _, _, err := mgr.Mint(ctx, p, payer, lowerTick, upperTick, l); err != nil {
		return fmt.Errorf("mint: %w", err)
	}

	swapIn, err := led.HumanToRaw(p.Token1(), sc.SwapAmount1In)
	if err != nil {
		return fmt.Errorf("swap amount: %w", err)
	}
	if err := mgr.Approve(p.Token1(), payer, swapIn); err != nil {
		return fmt.Errorf("approve swap: %w", err)
	}
	if _, _, _, err := mgr.Swap(ctx, p, payer, recipient, swapIn); err != nil {
		return fmt.Errorf("swap: %w", err)
	}

	snap := p.Snapshot()
	liqF, _ := new(big.Float).SetInt(snap.Liquidity).Float64()
	metrics.SetPoolState(ctx, string(p.Address()), snap.Price, liqF)
	return nil
}

// scenarioRange resolves the configured price range to ticks, falling back
// to the pool's default range when no prices are set.
func scenarioRange(cfg *config.Config, p *pool.Pool) (int32, int32, error) {
	sc := cfg.Scenario
	snap := p.Snapshot()
	if sc.LowerPrice <= 0 || sc.UpperPrice <= 0 {
		return snap.LowerTick, snap.UpperTick, nil
	}

	lowerRaw, err := fixedpoint.PriceFromHuman(sc.LowerPrice, cfg.Pool.BaseIsToken0)
	if err != nil {
		return 0, 0, fmt.Errorf("lower price: %w", err)
	}
	upperRaw, err := fixedpoint.PriceFromHuman(sc.UpperPrice, cfg.Pool.BaseIsToken0)
	if err != nil {
		return 0, 0, fmt.Errorf("upper price: %w", err)
	}
	// An inverted orientation flips the bounds.
	if lowerRaw > upperRaw {
		lowerRaw, upperRaw = upperRaw, lowerRaw
	}

	lowerTick, err := fixedpoint.TickFromPrice(lowerRaw)
	if err != nil {
		return 0, 0, err
	}
	upperTick, err := fixedpoint.TickFromPrice(upperRaw)
	if err != nil {
		return 0, 0, err
	}
	return lowerTick, upperTick, nil
}

// surveyRanges logs the binding liquidity the deposit would reach in the
// chosen range and a few wider and narrower alternatives.
func surveyRanges(ctx context.Context, logger *observability.Logger, amount0, amount1, sqrtCurrent *big.Int, lowerTick, upperTick int32) {
	width := upperTick - lowerTick
	mid := (lowerTick + upperTick) / 2
	candidates := make([]liquidity.CandidateRange, 0, 3)
	widths := make([]int32, 0, 3)
	for _, w := range []int32{width / 2, width, width * 2} {
		if w < 2 {
			continue
		}
		candidates = append(candidates, liquidity.CandidateRange{
			SqrtLower: fixedpoint.SqrtPriceX96AtTick(mid - w/2),
			SqrtUpper: fixedpoint.SqrtPriceX96AtTick(mid + w/2),
		})
		widths = append(widths, w)
	}

	for _, r := range liquidity.SizeRanges(ctx, amount0, amount1, sqrtCurrent, candidates, len(candidates)) {
		if r.Err != nil {
			logger.Warn("range candidate rejected", "index", r.Index, "error", r.Err.Error())
			continue
		}
		logger.Info("range candidate",
			"index", r.Index,
			"width_ticks", widths[r.Index],
			"liquidity", r.Liquidity.String(),
			"binding_side", r.Side.String(),
		)
	}
}

// printSummary dumps the pool snapshot, the demo balances and the journal.
func printSummary(p *pool.Pool, led *ledger.Ledger, jnl *journal.Journal, tokens map[string]ledger.TokenID, cfg *config.Config) {
	snap := p.Snapshot()
	fmt.Println("--- pool ---")
	fmt.Printf("price         %.6f\n", snap.Price)
	fmt.Printf("tick          %d in [%d, %d]\n", snap.Tick, snap.LowerTick, snap.UpperTick)
	fmt.Printf("liquidity     %s\n", snap.Liquidity)
	fmt.Printf("sqrtPriceX96  %s\n", snap.SqrtPriceX96)

	fmt.Println("--- balances ---")
	holders := []string{cfg.Scenario.Payer, cfg.Scenario.Recipient, cfg.Pool.Address}
	for _, holder := range holders {
		for _, symbol := range []string{cfg.Pool.Token0, cfg.Pool.Token1} {
			raw, err := led.BalanceOf(tokens[symbol], ledger.Address(holder))
			if err != nil {
				continue
			}
			human, err := led.RawToHuman(tokens[symbol], raw)
			if err != nil {
				continue
			}
			fmt.Printf("%-10s %-6s %s\n", holder, symbol, human.String())
		}
	}

	fmt.Println("--- journal ---")
	for _, entry := range jnl.Tail(20) {
		fmt.Println(entry)
	}
}

// serveHTTP serves health and metrics endpoints until ctx is cancelled.
func serveHTTP(ctx context.Context, port int, metrics *observability.Metrics, logger *observability.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	mux.Handle("/metrics", metrics.Handler())

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("HTTP server listening", "address", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
