package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/events"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/history"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/logger"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/phase"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/treasury"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/venue"
)

var testPool = solana.PublicKeyFromBytes(bytes.Repeat([]byte{7}, 32))

type mockGateway struct {
	mu           sync.Mutex
	probeCalls   int
	feeCalls     int
	claimCalls   int
	buyCalls     int
	depositCalls int
	lastBuy      uint64
	lastBuyKind  venue.MarketKind
	lastDeposit  uint64
	lastPool     solana.PublicKey

	probeFunc   func(ctx context.Context) (*venue.CurveState, error)
	deriveFunc  func() (solana.PublicKey, error)
	existsFunc  func(ctx context.Context, addr solana.PublicKey) (bool, error)
	feeFunc     func(ctx context.Context, market venue.Market) (uint64, error)
	claimFunc   func(ctx context.Context, market venue.Market) (*venue.TxResult, error)
	buyFunc     func(ctx context.Context, market venue.Market, lamports uint64) (*venue.TxResult, error)
	depositFunc func(ctx context.Context, pool solana.PublicKey, lamports uint64) (*venue.TxResult, error)
	tokenFunc   func(ctx context.Context) (uint64, error)
}

func (g *mockGateway) ProbeBondingCurve(ctx context.Context) (*venue.CurveState, error) {
	g.mu.Lock()
	g.probeCalls++
	g.mu.Unlock()
	if g.probeFunc == nil {
		return activeCurve(), nil
	}
	return g.probeFunc(ctx)
}

func (g *mockGateway) DerivePoolAddress() (solana.PublicKey, error) {
	if g.deriveFunc == nil {
		return testPool, nil
	}
	return g.deriveFunc()
}

func (g *mockGateway) AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error) {
	if g.existsFunc == nil {
		return true, nil
	}
	return g.existsFunc(ctx, addr)
}

func (g *mockGateway) ReadFeeBalance(ctx context.Context, market venue.Market) (uint64, error) {
	g.mu.Lock()
	g.feeCalls++
	g.mu.Unlock()
	if g.feeFunc == nil {
		return 0, nil
	}
	return g.feeFunc(ctx, market)
}

func (g *mockGateway) ClaimFees(ctx context.Context, market venue.Market) (*venue.TxResult, error) {
	g.mu.Lock()
	g.claimCalls++
	g.mu.Unlock()
	if g.claimFunc == nil {
		return nil, errors.New("unexpected ClaimFees call")
	}
	return g.claimFunc(ctx, market)
}

func (g *mockGateway) Buy(ctx context.Context, market venue.Market, lamports uint64) (*venue.TxResult, error) {
	g.mu.Lock()
	g.buyCalls++
	g.lastBuy = lamports
	g.lastBuyKind = market.Kind
	g.mu.Unlock()
	if g.buyFunc == nil {
		return nil, errors.New("unexpected Buy call")
	}
	return g.buyFunc(ctx, market, lamports)
}

func (g *mockGateway) DepositLiquidity(ctx context.Context, pool solana.PublicKey, lamports uint64) (*venue.TxResult, error) {
	g.mu.Lock()
	g.depositCalls++
	g.lastDeposit = lamports
	g.lastPool = pool
	g.mu.Unlock()
	if g.depositFunc == nil {
		return nil, errors.New("unexpected DepositLiquidity call")
	}
	return g.depositFunc(ctx, pool, lamports)
}

func (g *mockGateway) ReadTokenBalance(ctx context.Context) (uint64, error) {
	if g.tokenFunc == nil {
		return 0, nil
	}
	return g.tokenFunc(ctx)
}

func (g *mockGateway) counts() (probe, fee, claim, buy, deposit int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.probeCalls, g.feeCalls, g.claimCalls, g.buyCalls, g.depositCalls
}

func (g *mockGateway) feeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.feeCalls
}

func activeCurve() *venue.CurveState {
	return &venue.CurveState{
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
		RealTokenReserves:    793_100_000_000_000,
		TokenTotalSupply:     1_000_000_000_000_000,
	}
}

func completeCurve() *venue.CurveState {
	c := activeCurve()
	c.Complete = true
	return c
}

func okTx(b byte) *venue.TxResult {
	return &venue.TxResult{Signature: solana.Signature{b}}
}

func succeed(b byte) func(ctx context.Context, market venue.Market) (*venue.TxResult, error) {
	return func(ctx context.Context, market venue.Market) (*venue.TxResult, error) {
		return okTx(b), nil
	}
}

func newTestBot(t *testing.T, gw *mockGateway, mutate func(cfg *Config)) (*Bot, *events.Sink) {
	t.Helper()
	log := logger.NewTest()
	sink := events.NewSink(log, 500)
	cfg := Config{
		Logger:     log,
		Events:     sink,
		Gateway:    gw,
		Detector:   phase.NewDetector(log, gw),
		Ledger:     treasury.NewLedger(),
		Clock:      clockwork.NewFakeClock(),
		BuybackPct: 50,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	return b, sink
}

func hasEvent(sink *events.Sink, severity events.Severity, substr string) bool {
	for _, e := range sink.Recent(500) {
		if e.Severity == severity && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func countEvents(sink *events.Sink, severity events.Severity, substr string) int {
	n := 0
	for _, e := range sink.Recent(500) {
		if e.Severity == severity && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

func TestLiquid_Bot_ConfigValidate(t *testing.T) {
	log := logger.NewTest()
	sink := events.NewSink(log, 10)
	gw := &mockGateway{}
	base := Config{
		Logger:   log,
		Events:   sink,
		Gateway:  gw,
		Detector: phase.NewDetector(log, gw),
		Ledger:   treasury.NewLedger(),
	}

	cfg := base
	cfg.Logger = nil
	require.ErrorContains(t, (&cfg).Validate(), "logger")

	cfg = base
	cfg.Events = nil
	require.ErrorContains(t, (&cfg).Validate(), "event sink")

	cfg = base
	cfg.Gateway = nil
	require.ErrorContains(t, (&cfg).Validate(), "gateway")

	cfg = base
	cfg.Detector = nil
	require.ErrorContains(t, (&cfg).Validate(), "detector")

	cfg = base
	cfg.Ledger = nil
	require.ErrorContains(t, (&cfg).Validate(), "ledger")

	cfg = base
	cfg.BuybackPct = 101
	require.ErrorContains(t, (&cfg).Validate(), "out of range")

	cfg = base
	require.NoError(t, (&cfg).Validate())
	require.Equal(t, time.Minute, cfg.Interval)
	require.Equal(t, uint64(15_000_000), cfg.MinFeeThreshold)
	require.NotNil(t, cfg.Clock)
	require.NotNil(t, cfg.History)
	require.NotNil(t, cfg.Notifier)
}

func TestLiquid_Bot_CurveHarvestSplitsFees(t *testing.T) {
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 20_000_000, nil
		},
		claimFunc: succeed(1),
		buyFunc: func(ctx context.Context, market venue.Market, lamports uint64) (*venue.TxResult, error) {
			return okTx(2), nil
		},
	}
	b, sink := newTestBot(t, gw, nil)

	require.NoError(t, b.RunCycle(context.Background()))

	_, _, claims, buys, deposits := gw.counts()
	require.Equal(t, 1, claims)
	require.Equal(t, 1, buys)
	require.Zero(t, deposits)
	require.Equal(t, uint64(10_000_000), gw.lastBuy)
	require.Equal(t, venue.MarketCurve, gw.lastBuyKind)

	st := b.Status()
	require.Equal(t, phase.BondingCurve, st.Phase)
	require.Equal(t, "ok", st.LastOutcome)
	require.Equal(t, treasury.State{
		TotalFeesCollected: 20_000_000,
		TotalBuybackSpent:  10_000_000,
		HeldReserve:        10_000_000,
	}, st.Treasury)

	require.True(t, hasEvent(sink, events.SeveritySuccess, "Collected 0.02 SOL in creator fees"))
	require.True(t, hasEvent(sink, events.SeveritySuccess, "Executed buyback of 0.01 SOL"))
}

func TestLiquid_Bot_BelowThresholdLeavesFees(t *testing.T) {
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 10_000_000, nil
		},
	}
	b, sink := newTestBot(t, gw, nil)

	require.NoError(t, b.RunCycle(context.Background()))

	_, _, claims, buys, _ := gw.counts()
	require.Zero(t, claims)
	require.Zero(t, buys)
	require.Equal(t, treasury.State{}, b.Status().Treasury)
	require.True(t, hasEvent(sink, events.SeverityInfo, "Fees below threshold (0.01 < 0.015 SOL)"))
}

func TestLiquid_Bot_GraduationDepositsEntireReserve(t *testing.T) {
	gw := &mockGateway{
		probeFunc: func(ctx context.Context) (*venue.CurveState, error) {
			return completeCurve(), nil
		},
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 20_000_000, nil
		},
		claimFunc: succeed(1),
		buyFunc: func(ctx context.Context, market venue.Market, lamports uint64) (*venue.TxResult, error) {
			return okTx(2), nil
		},
		depositFunc: func(ctx context.Context, pool solana.PublicKey, lamports uint64) (*venue.TxResult, error) {
			return okTx(3), nil
		},
	}
	b, sink := newTestBot(t, gw, func(cfg *Config) {
		cfg.Ledger.Restore(treasury.State{TotalFeesCollected: 50_000_000, HeldReserve: 50_000_000})
	})

	require.NoError(t, b.RunCycle(context.Background()))

	require.Equal(t, venue.MarketPool, gw.lastBuyKind)
	require.Equal(t, uint64(10_000_000), gw.lastBuy)

	// This cycle's hold joins the carried reserve and the whole lot is
	// deposited.
	require.Equal(t, uint64(60_000_000), gw.lastDeposit)
	require.Equal(t, testPool, gw.lastPool)

	st := b.Status()
	require.Equal(t, phase.Liquidity, st.Phase)
	require.Equal(t, testPool.String(), st.Pool)
	require.Equal(t, treasury.State{
		TotalFeesCollected:      70_000_000,
		TotalBuybackSpent:       10_000_000,
		HeldReserve:             0,
		TotalLiquidityDeposited: 60_000_000,
	}, st.Treasury)

	require.True(t, hasEvent(sink, events.SeveritySuccess, "Deposited 0.06 SOL into liquidity pool"))
}

func TestLiquid_Bot_ClaimFailureAbortsMonetarySteps(t *testing.T) {
	claimErr := errors.New("blockhash not found")
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 20_000_000, nil
		},
		claimFunc: func(ctx context.Context, market venue.Market) (*venue.TxResult, error) {
			return nil, claimErr
		},
	}
	restored := treasury.State{TotalFeesCollected: 30_000_000, HeldReserve: 30_000_000}
	b, sink := newTestBot(t, gw, func(cfg *Config) {
		cfg.Detector.SeedPool(testPool)
		cfg.Ledger.Restore(restored)
	})

	err := b.RunCycle(context.Background())
	require.ErrorIs(t, err, claimErr)

	// No ledger mutation and no further spending, even with a reserve
	// waiting to be deposited.
	_, _, claims, buys, deposits := gw.counts()
	require.Equal(t, 1, claims)
	require.Zero(t, buys)
	require.Zero(t, deposits)
	require.Equal(t, restored, b.Status().Treasury)
	require.Equal(t, "error", b.Status().LastOutcome)
	require.True(t, hasEvent(sink, events.SeverityError, "Fee claim failed"))

	// The loop is not poisoned: once the chain recovers the next cycle
	// harvests and deposits as usual.
	gw.claimFunc = succeed(1)
	gw.buyFunc = func(ctx context.Context, market venue.Market, lamports uint64) (*venue.TxResult, error) {
		return okTx(2), nil
	}
	gw.depositFunc = func(ctx context.Context, pool solana.PublicKey, lamports uint64) (*venue.TxResult, error) {
		return okTx(3), nil
	}
	require.NoError(t, b.RunCycle(context.Background()))
	require.Equal(t, uint64(40_000_000), gw.lastDeposit)
	require.Equal(t, treasury.State{
		TotalFeesCollected:      50_000_000,
		TotalBuybackSpent:       10_000_000,
		HeldReserve:             0,
		TotalLiquidityDeposited: 40_000_000,
	}, b.Status().Treasury)
	require.Equal(t, "ok", b.Status().LastOutcome)
}

func TestLiquid_Bot_BuyFailureStillDeposits(t *testing.T) {
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 20_000_000, nil
		},
		claimFunc: succeed(1),
		buyFunc: func(ctx context.Context, market venue.Market, lamports uint64) (*venue.TxResult, error) {
			return nil, errors.New("slippage exceeded")
		},
		depositFunc: func(ctx context.Context, pool solana.PublicKey, lamports uint64) (*venue.TxResult, error) {
			return okTx(3), nil
		},
	}
	b, sink := newTestBot(t, gw, func(cfg *Config) {
		cfg.Detector.SeedPool(testPool)
	})

	err := b.RunCycle(context.Background())
	require.ErrorContains(t, err, "buyback")

	// The failed buyback is never recorded as spent; the hold leg still
	// reaches the pool.
	require.Equal(t, uint64(10_000_000), gw.lastDeposit)
	require.Equal(t, treasury.State{
		TotalFeesCollected:      20_000_000,
		TotalBuybackSpent:       0,
		HeldReserve:             0,
		TotalLiquidityDeposited: 10_000_000,
	}, b.Status().Treasury)
	require.True(t, hasEvent(sink, events.SeverityError, "Buyback failed"))
}

func TestLiquid_Bot_FeeReadFailureDegrades(t *testing.T) {
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 0, errors.New("rpc timeout")
		},
		depositFunc: func(ctx context.Context, pool solana.PublicKey, lamports uint64) (*venue.TxResult, error) {
			return okTx(3), nil
		},
	}
	b, sink := newTestBot(t, gw, func(cfg *Config) {
		cfg.Detector.SeedPool(testPool)
		cfg.Ledger.Restore(treasury.State{TotalFeesCollected: 40_000_000, HeldReserve: 40_000_000})
	})

	require.NoError(t, b.RunCycle(context.Background()))

	// Harvesting is skipped, but the reserve deposit does not depend on
	// this cycle's fee read.
	_, _, claims, _, deposits := gw.counts()
	require.Zero(t, claims)
	require.Equal(t, 1, deposits)
	require.Equal(t, uint64(40_000_000), gw.lastDeposit)
	require.Equal(t, "degraded", b.Status().LastOutcome)
	require.True(t, hasEvent(sink, events.SeverityWarning, "Fee balance read failed"))
}

func TestLiquid_Bot_PhaseProbeFailureDegrades(t *testing.T) {
	gw := &mockGateway{
		probeFunc: func(ctx context.Context) (*venue.CurveState, error) {
			return nil, errors.New("rpc unavailable")
		},
		// No pool either, so detection cannot fall back on migration
		// evidence.
		existsFunc: func(ctx context.Context, addr solana.PublicKey) (bool, error) {
			return false, nil
		},
	}
	b, sink := newTestBot(t, gw, nil)

	require.NoError(t, b.RunCycle(context.Background()))

	st := b.Status()
	require.Equal(t, phase.Unknown, st.Phase)
	require.Equal(t, "degraded", st.LastOutcome)
	require.True(t, hasEvent(sink, events.SeverityWarning, "Phase detection failed"))
}

func TestLiquid_Bot_UnknownPhaseClaimsWithoutBuying(t *testing.T) {
	gw := &mockGateway{
		probeFunc: func(ctx context.Context) (*venue.CurveState, error) {
			return nil, errors.New("rpc unavailable")
		},
		existsFunc: func(ctx context.Context, addr solana.PublicKey) (bool, error) {
			return false, nil
		},
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 20_000_000, nil
		},
		claimFunc: succeed(1),
	}
	b, sink := newTestBot(t, gw, nil)

	require.NoError(t, b.RunCycle(context.Background()))

	// Fees are swept even while the phase is unresolved, but no venue is
	// trusted with a buy until detection settles.
	_, _, claims, buys, deposits := gw.counts()
	require.Equal(t, 1, claims)
	require.Zero(t, buys)
	require.Zero(t, deposits)
	require.Equal(t, treasury.State{
		TotalFeesCollected: 20_000_000,
		HeldReserve:        10_000_000,
	}, b.Status().Treasury)
	require.True(t, hasEvent(sink, events.SeveritySuccess, "Collected 0.02 SOL"))
	require.False(t, hasEvent(sink, events.SeverityError, "Buyback failed"))
}

func TestLiquid_Bot_TokenBalanceReadFailureKeepsLastValue(t *testing.T) {
	bal := uint64(777)
	var readErr error
	gw := &mockGateway{
		tokenFunc: func(ctx context.Context) (uint64, error) {
			return bal, readErr
		},
	}
	b, sink := newTestBot(t, gw, nil)

	require.NoError(t, b.RunCycle(context.Background()))
	require.Equal(t, uint64(777), b.Status().TokenBalance)

	readErr = errors.New("rpc timeout")
	require.NoError(t, b.RunCycle(context.Background()))

	require.Equal(t, uint64(777), b.Status().TokenBalance)
	require.Equal(t, "degraded", b.Status().LastOutcome)
	require.True(t, hasEvent(sink, events.SeverityWarning, "Token balance read failed"))
}

func TestLiquid_Bot_ClassifyDemotesNotFound(t *testing.T) {
	f := classify(FaultTransientRead, "fee read", fmt.Errorf("read vault: %w", venue.ErrAccountNotFound))
	require.Equal(t, FaultAccountNotFound, f.Kind)
	require.ErrorIs(t, f, venue.ErrAccountNotFound)

	f = classify(FaultWriteTransaction, "buyback", errors.New("blockhash expired"))
	require.Equal(t, FaultWriteTransaction, f.Kind)
	require.Equal(t, "buyback: blockhash expired", f.Error())
	require.Equal(t, "write_transaction", f.Kind.String())
}

func TestLiquid_Bot_SkipsWhenCycleInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			once.Do(func() { close(started) })
			<-release
			return 0, nil
		},
	}
	b, sink := newTestBot(t, gw, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- b.RunCycle(context.Background()) }()
	<-started

	require.NoError(t, b.RunCycle(context.Background()))
	require.True(t, hasEvent(sink, events.SeverityWarning, "skipping this tick"))
	require.Equal(t, 1, gw.feeCount())

	close(release)
	require.NoError(t, <-errCh)
}

func TestLiquid_Bot_StartStopIdempotent(t *testing.T) {
	gw := &mockGateway{}
	b, sink := newTestBot(t, gw, nil)
	b.Run(context.Background())

	require.True(t, b.Start())
	require.True(t, b.Running())
	require.Eventually(t, func() bool {
		return b.Status().LastCycleID != ""
	}, time.Second, 5*time.Millisecond)

	require.False(t, b.Start())
	require.True(t, hasEvent(sink, events.SeverityWarning, "Bot is already running"))

	require.True(t, b.Stop())
	require.False(t, b.Running())
	require.True(t, hasEvent(sink, events.SeverityInfo, "Bot stopped"))

	require.False(t, b.Stop())
	require.True(t, hasEvent(sink, events.SeverityWarning, "Bot is not running"))

	require.True(t, b.Start())
	require.True(t, b.Running())
	require.Equal(t, 2, countEvents(sink, events.SeveritySuccess, "Bot started"))
	b.Stop()
}

func TestLiquid_Bot_TickerDrivesCycles(t *testing.T) {
	fc := clockwork.NewFakeClock()
	gw := &mockGateway{}
	b, _ := newTestBot(t, gw, func(cfg *Config) {
		cfg.Clock = fc
		cfg.Interval = time.Minute
	})
	ctx := context.Background()
	b.Run(ctx)

	require.True(t, b.Start())
	require.Eventually(t, func() bool { return b.Status().LastCycleID != "" }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, gw.feeCount())

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Minute)
	require.Eventually(t, func() bool { return gw.feeCount() == 2 }, time.Second, 5*time.Millisecond)

	require.True(t, b.Stop())
	time.Sleep(20 * time.Millisecond)
	fc.Advance(2 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 2, gw.feeCount())
}

func TestLiquid_Bot_StopLeavesInFlightCycleRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			once.Do(func() { close(started) })
			select {
			case <-release:
				return 0, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		},
	}
	b, _ := newTestBot(t, gw, nil)
	b.Run(context.Background())

	require.True(t, b.Start())
	<-started

	// Stop cancels the ticker, not the cycle already in flight.
	require.True(t, b.Stop())
	close(release)
	require.Eventually(t, func() bool {
		return b.Status().LastCycleID != ""
	}, time.Second, 5*time.Millisecond)
	require.False(t, b.Running())
}

func TestLiquid_Bot_RestoresSnapshotFromStore(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	store := treasury.NewFileStore(statePath)

	gw := &mockGateway{
		probeFunc: func(ctx context.Context) (*venue.CurveState, error) {
			return completeCurve(), nil
		},
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 20_000_000, nil
		},
		claimFunc: succeed(1),
		buyFunc: func(ctx context.Context, market venue.Market, lamports uint64) (*venue.TxResult, error) {
			return okTx(2), nil
		},
		depositFunc: func(ctx context.Context, pool solana.PublicKey, lamports uint64) (*venue.TxResult, error) {
			return okTx(3), nil
		},
	}
	b1, _ := newTestBot(t, gw, func(cfg *Config) { cfg.Store = store })
	require.NoError(t, b1.RunCycle(context.Background()))

	// A fresh process restores the accounting and the graduation without
	// touching the chain.
	gw2 := &mockGateway{
		probeFunc: func(ctx context.Context) (*venue.CurveState, error) {
			return nil, errors.New("must not probe after restore")
		},
	}
	b2, _ := newTestBot(t, gw2, func(cfg *Config) { cfg.Store = store })

	st := b2.Status()
	require.Equal(t, phase.Liquidity, st.Phase)
	require.Equal(t, testPool.String(), st.Pool)
	require.Equal(t, treasury.State{
		TotalFeesCollected:      20_000_000,
		TotalBuybackSpent:       10_000_000,
		HeldReserve:             0,
		TotalLiquidityDeposited: 10_000_000,
	}, st.Treasury)

	require.NoError(t, b2.RunCycle(context.Background()))
	probes, _, _, _, _ := gw2.counts()
	require.Zero(t, probes)
}

func TestLiquid_Bot_LoopSurvivesPanic(t *testing.T) {
	fc := clockwork.NewFakeClock()
	var probes int32
	gw := &mockGateway{
		probeFunc: func(ctx context.Context) (*venue.CurveState, error) {
			if atomic.AddInt32(&probes, 1) == 1 {
				panic("probe exploded")
			}
			return activeCurve(), nil
		},
	}
	b, _ := newTestBot(t, gw, func(cfg *Config) {
		cfg.Clock = fc
		cfg.Interval = time.Minute
	})
	ctx := context.Background()
	b.Run(ctx)

	require.True(t, b.Start())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&probes) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return b.Status().LastCycleID != ""
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, phase.BondingCurve, b.Status().Phase)
	b.Stop()
}

type mockRecorder struct {
	mu     sync.Mutex
	cycles []history.CycleRecord
	txs    []history.TransactionRecord
}

func (r *mockRecorder) RecordCycle(ctx context.Context, rec history.CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, rec)
	return nil
}

func (r *mockRecorder) RecordTransaction(ctx context.Context, rec history.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, rec)
	return nil
}

func (r *mockRecorder) RecentCycles(ctx context.Context, limit int) ([]history.CycleRecord, error) {
	return nil, nil
}

func (r *mockRecorder) Close() error { return nil }

func TestLiquid_Bot_RecordsCycleHistory(t *testing.T) {
	rec := &mockRecorder{}
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 20_000_000, nil
		},
		claimFunc: succeed(1),
		buyFunc: func(ctx context.Context, market venue.Market, lamports uint64) (*venue.TxResult, error) {
			return okTx(2), nil
		},
	}
	b, _ := newTestBot(t, gw, func(cfg *Config) { cfg.History = rec })

	require.NoError(t, b.RunCycle(context.Background()))

	require.Len(t, rec.cycles, 1)
	c := rec.cycles[0]
	require.Equal(t, "ok", c.Outcome)
	require.Equal(t, string(phase.BondingCurve), c.Phase)
	require.Equal(t, uint64(20_000_000), c.FeesClaimed)
	require.Equal(t, uint64(10_000_000), c.BuybackSpent)
	require.Equal(t, uint64(10_000_000), c.HeldReserve)
	require.NotEmpty(t, c.CycleID)

	require.Len(t, rec.txs, 2)
	require.Equal(t, "claim", rec.txs[0].Kind)
	require.Equal(t, "buyback", rec.txs[1].Kind)
	require.Equal(t, c.CycleID, rec.txs[0].CycleID)
}

type mockNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (n *mockNotifier) Notify(ctx context.Context, severity events.Severity, message string, fields map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, message)
	return nil
}

func TestLiquid_Bot_NotifiesOnHarvest(t *testing.T) {
	notes := &mockNotifier{}
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 20_000_000, nil
		},
		claimFunc: succeed(1),
		buyFunc: func(ctx context.Context, market venue.Market, lamports uint64) (*venue.TxResult, error) {
			return okTx(2), nil
		},
	}
	b, _ := newTestBot(t, gw, func(cfg *Config) { cfg.Notifier = notes })

	require.NoError(t, b.RunCycle(context.Background()))

	require.Len(t, notes.notes, 1)
	require.Contains(t, notes.notes[0], "Collected 0.02 SOL")
}

func TestLiquid_Bot_NotifiesOnGraduationOnce(t *testing.T) {
	notes := &mockNotifier{}
	gw := &mockGateway{
		probeFunc: func(ctx context.Context) (*venue.CurveState, error) {
			return completeCurve(), nil
		},
	}
	b, _ := newTestBot(t, gw, func(cfg *Config) { cfg.Notifier = notes })

	require.NoError(t, b.RunCycle(context.Background()))
	require.NoError(t, b.RunCycle(context.Background()))

	require.Len(t, notes.notes, 1)
	require.Contains(t, notes.notes[0], "graduated")
}

func TestLiquid_Bot_NotifiesOnCycleError(t *testing.T) {
	notes := &mockNotifier{}
	gw := &mockGateway{
		feeFunc: func(ctx context.Context, market venue.Market) (uint64, error) {
			return 20_000_000, nil
		},
	}
	b, _ := newTestBot(t, gw, func(cfg *Config) { cfg.Notifier = notes })

	require.Error(t, b.RunCycle(context.Background()))

	require.Len(t, notes.notes, 1)
	require.Contains(t, notes.notes[0], "Cycle completed with errors")
}

func TestLiquid_Bot_BroadcastsStatusSnapshot(t *testing.T) {
	gw := &mockGateway{}
	b, sink := newTestBot(t, gw, nil)

	ch := sink.Subscribe()
	defer sink.Unsubscribe(ch)

	require.NoError(t, b.RunCycle(context.Background()))

	deadline := time.After(time.Second)
	for {
		select {
		case e := <-ch:
			if e.Kind != events.KindStatus {
				continue
			}
			st, ok := e.Data["status"].(Status)
			require.True(t, ok)
			require.NotEmpty(t, st.LastCycleID)
			require.Equal(t, phase.BondingCurve, st.Phase)
			return
		case <-deadline:
			t.Fatal("no status broadcast received")
		}
	}
}
