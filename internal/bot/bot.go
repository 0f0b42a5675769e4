// Package bot runs the treasury reconciliation loop: detect the phase,
// harvest creator fees, apply buy-pressure and move the held reserve into
// pool liquidity once the token graduates.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/events"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/history"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/metrics"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/notify"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/phase"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/treasury"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/venue"
)

// Config wires a Bot.
type Config struct {
	Logger   *slog.Logger
	Events   *events.Sink
	Gateway  venue.Gateway
	Detector *phase.Detector
	Ledger   *treasury.Ledger

	// Store persists the treasury snapshot across restarts. Optional.
	Store treasury.Store

	// History records cycle outcomes. Defaults to a no-op recorder.
	History history.Recorder

	// Notifier pushes notable activity out-of-band. Defaults to no-op.
	Notifier notify.Notifier

	Clock clockwork.Clock

	// Interval between reconciliation cycles. Defaults to one minute.
	Interval time.Duration

	// MinFeeThreshold is the claimable balance, in lamports, below which
	// fees are left to accrue. Defaults to 0.015 SOL.
	MinFeeThreshold uint64

	// BuybackPct is the share of each harvest spent on buy-pressure; the
	// remainder is held for liquidity.
	BuybackPct int
}

// Validate checks required fields and applies defaults.
func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Events == nil {
		return errors.New("event sink is required")
	}
	if cfg.Gateway == nil {
		return errors.New("venue gateway is required")
	}
	if cfg.Detector == nil {
		return errors.New("phase detector is required")
	}
	if cfg.Ledger == nil {
		return errors.New("treasury ledger is required")
	}
	if cfg.BuybackPct < 0 || cfg.BuybackPct > 100 {
		return fmt.Errorf("buyback percentage %d out of range", cfg.BuybackPct)
	}
	if cfg.History == nil {
		cfg.History = history.Noop{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Noop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MinFeeThreshold == 0 {
		cfg.MinFeeThreshold = 15_000_000
	}
	return nil
}

// Status is the bot's externally visible state.
type Status struct {
	Running      bool           `json:"running"`
	Phase        phase.Phase    `json:"phase"`
	Pool         string         `json:"pool,omitempty"`
	Treasury     treasury.State `json:"treasury"`
	TokenBalance uint64         `json:"tokenBalance"`
	LastCycleID  string         `json:"lastCycleId,omitempty"`
	LastCycleAt  *time.Time     `json:"lastCycleAt,omitempty"`
	LastOutcome  string         `json:"lastOutcome,omitempty"`
	Config       StatusConfig   `json:"config"`
}

// StatusConfig echoes the operating parameters.
type StatusConfig struct {
	MinFeeThresholdSol float64 `json:"minFeeThresholdSol"`
	BuybackPct         int     `json:"buybackPct"`
	IntervalMs         int64   `json:"intervalMs"`
}

// Bot owns the reconciliation loop.
type Bot struct {
	log *slog.Logger
	cfg Config

	// cycleMu enforces one cycle at a time; a tick that finds it held is
	// skipped with a warning instead of queueing.
	cycleMu sync.Mutex

	mu      sync.Mutex
	baseCtx context.Context
	running bool
	stop    context.CancelFunc
	status  Status
}

// New builds a Bot and, when a store is configured, restores the
// persisted treasury snapshot and graduation state.
func New(cfg Config) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bot{
		log: cfg.Logger.With("component", "bot"),
		cfg: cfg,
		status: Status{
			Phase: phase.Unknown,
			Config: StatusConfig{
				MinFeeThresholdSol: float64(cfg.MinFeeThreshold) / float64(venue.LamportsPerSOL),
				BuybackPct:         cfg.BuybackPct,
				IntervalMs:         cfg.Interval.Milliseconds(),
			},
		},
	}

	if cfg.Store != nil {
		snap, err := cfg.Store.Load()
		if err != nil {
			return nil, fmt.Errorf("load treasury snapshot: %w", err)
		}
		if snap != nil {
			cfg.Ledger.Restore(snap.Treasury)
			b.status.Treasury = snap.Treasury
			if snap.Pool != "" {
				pool, err := solana.PublicKeyFromBase58(snap.Pool)
				if err != nil {
					return nil, fmt.Errorf("parse persisted pool %q: %w", snap.Pool, err)
				}
				cfg.Detector.SeedPool(pool)
				b.status.Phase = phase.Liquidity
				b.status.Pool = snap.Pool
			}
			b.log.Info("restored treasury snapshot",
				"fees_collected", snap.Treasury.TotalFeesCollected,
				"held_reserve", snap.Treasury.HeldReserve,
				"pool", snap.Pool)
		}
	}

	return b, nil
}

// Run binds the bot to the process context. Cycles started before the
// context is cancelled run against it, so shutdown interrupts RPC work
// while a plain Stop does not.
func (b *Bot) Run(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseCtx = ctx
}

// Start launches the reconciliation loop. Publishes a warning and
// returns false when the loop is already running.
func (b *Bot) Start() bool {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		b.cfg.Events.Warning("Bot is already running", nil)
		return false
	}
	base := b.baseCtx
	if base == nil {
		base = context.Background()
		b.baseCtx = base
	}
	loopCtx, cancel := context.WithCancel(base)
	b.running = true
	b.stop = cancel
	b.mu.Unlock()

	b.cfg.Events.Success("Bot started", map[string]any{
		"intervalMs": b.cfg.Interval.Milliseconds(),
	})
	go b.loop(loopCtx, base)
	return true
}

// Stop cancels the loop. An in-flight cycle runs to completion.
// Publishes a warning and returns false when the loop is not running.
func (b *Bot) Stop() bool {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		b.cfg.Events.Warning("Bot is not running", nil)
		return false
	}
	b.stop()
	b.running = false
	b.stop = nil
	b.mu.Unlock()

	b.cfg.Events.Info("Bot stopped", nil)
	return true
}

// Running reports whether the loop is active.
func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Status returns the latest published snapshot.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.status
	st.Running = b.running
	return st
}

func (b *Bot) loop(loopCtx, cycleCtx context.Context) {
	b.log.Info("starting reconciliation loop", "interval", b.cfg.Interval)

	b.safeCycle(cycleCtx)

	ticker := b.cfg.Clock.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-loopCtx.Done():
			b.log.Info("reconciliation loop stopped")
			return
		case <-ticker.Chan():
			b.safeCycle(cycleCtx)
		}
	}
}

func (b *Bot) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("cycle panicked", "panic", r)
			sentry.CurrentHub().Recover(r)
			metrics.CyclesTotal.WithLabelValues("panic").Inc()
		}
	}()

	if err := b.RunCycle(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		b.log.Error("cycle failed", "error", err)
	}
}

// RunCycle executes one reconciliation cycle. Concurrent calls are not
// queued: if a cycle is already in flight the call publishes a warning
// and returns nil.
func (b *Bot) RunCycle(ctx context.Context) error {
	if !b.cycleMu.TryLock() {
		b.cfg.Events.Warning("Previous cycle still running, skipping this tick", nil)
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	defer b.cycleMu.Unlock()

	cycleID := uuid.NewString()
	start := time.Now()

	span := sentry.StartSpan(ctx, "treasury.cycle", sentry.WithDescription(cycleID))
	defer span.Finish()
	ctx = span.Context()

	log := b.log.With("cycle", cycleID)
	log.Debug("cycle started")

	res := b.reconcile(ctx, cycleID, log)
	res.startedAt = start
	res.finishedAt = time.Now()

	duration := res.finishedAt.Sub(start)
	metrics.CycleDuration.Observe(duration.Seconds())
	metrics.CyclesTotal.WithLabelValues(res.outcome).Inc()
	metrics.HeldReserve.Set(float64(b.cfg.Ledger.HeldReserve()))
	if res.err != nil {
		span.Status = sentry.SpanStatusInternalError
	} else {
		span.Status = sentry.SpanStatusOK
	}

	b.publishStatus(res)
	b.persist(log)
	b.recordCycle(ctx, log, res)
	if res.err != nil {
		b.push(ctx, log, events.SeverityError, "Cycle completed with errors", map[string]string{
			"error": res.err.Error(),
		})
	}

	log.Info("cycle completed", "duration", duration.String(), "outcome", res.outcome)
	return res.err
}

type cycleResult struct {
	cycleID    string
	startedAt  time.Time
	finishedAt time.Time
	phase      phase.State
	claimed    uint64
	buyback    uint64
	deposited  uint64
	tokenBal   uint64
	tokenRead  bool
	outcome    string
	err        error
}

// reconcile walks the cycle steps. Read failures degrade the cycle;
// failed monetary steps surface as error events without ever mutating
// the ledger for work that did not confirm.
func (b *Bot) reconcile(ctx context.Context, cycleID string, log *slog.Logger) cycleResult {
	res := cycleResult{cycleID: cycleID, outcome: "ok"}
	ev := func(severity events.Severity, message string, data map[string]any) {
		b.cfg.Events.Publish(events.Entry{
			Severity: severity,
			Message:  message,
			CycleID:  cycleID,
			Data:     data,
		})
	}
	// fail is the single fault consumer of the cycle: severity and
	// outcome follow the kind, and the raw cause rides along in the
	// event data.
	fail := func(f *Fault, message string, data map[string]any) {
		if data == nil {
			data = map[string]any{}
		}
		data["error"] = f.Err.Error()
		data["kind"] = f.Kind.String()
		if f.Kind == FaultWriteTransaction {
			ev(events.SeverityError, message, data)
			res.outcome = "error"
			res.err = errors.Join(res.err, f)
			return
		}
		ev(events.SeverityWarning, message, data)
		if res.outcome == "ok" {
			res.outcome = "degraded"
		}
	}

	// Phase first: it decides which venue every later step talks to.
	state, err := b.cfg.Detector.Detect(ctx)
	if err != nil {
		fail(classify(FaultTransientRead, "phase probe", err), "Phase detection failed", nil)
	}
	res.phase = state
	b.setPhaseMetric(state.Phase)

	// The transition fires once: a bot restored after graduation already
	// reports Liquidity.
	b.mu.Lock()
	prev := b.status.Phase
	b.mu.Unlock()
	if state.Phase == phase.Liquidity && prev != phase.Liquidity {
		graduated := "Token graduated, treasury now targets the liquidity pool"
		ev(events.SeveritySuccess, graduated, map[string]any{"pool": state.Pool.String()})
		b.push(ctx, log, events.SeveritySuccess, graduated, map[string]string{
			"pool": state.Pool.String(),
		})
	}

	market := state.Market()
	claimFailed := false
	fees, feeErr := b.cfg.Gateway.ReadFeeBalance(ctx, market)
	switch {
	case feeErr != nil:
		fail(classify(FaultTransientRead, "fee read", feeErr), "Fee balance read failed", nil)

	case fees >= b.cfg.MinFeeThreshold:
		txr, err := b.cfg.Gateway.ClaimFees(ctx, market)
		if err != nil {
			// Nothing was recorded and nothing else monetary runs this
			// cycle: an unhealthy chain is no place to keep spending.
			fail(classify(FaultWriteTransaction, "claim fees", err), "Fee claim failed", nil)
			claimFailed = true
			break
		}
		res.claimed = fees
		buyback, hold := b.cfg.Ledger.RecordHarvest(fees, b.cfg.BuybackPct)
		metrics.FeesCollectedTotal.Add(float64(fees))
		claimed := fmt.Sprintf("Collected %s SOL in creator fees", formatSOL(fees))
		ev(events.SeveritySuccess, claimed, map[string]any{
			"lamports":  fees,
			"buyback":   buyback,
			"held":      hold,
			"signature": txr.Signature.String(),
		})
		b.recordTx(ctx, log, cycleID, "claim", txr.Signature.String(), fees)
		b.push(ctx, log, events.SeveritySuccess, claimed, map[string]string{
			"amount": formatSOL(fees) + " SOL",
			"phase":  string(state.Phase),
		})

		// An unresolved phase claims but spends nothing; the split sits
		// in the wallet until detection settles on a venue.
		if buyback > 0 && state.Phase != phase.Unknown {
			btxr, err := b.cfg.Gateway.Buy(ctx, market, buyback)
			if err != nil {
				fail(classify(FaultWriteTransaction, "buyback", err), "Buyback failed", map[string]any{"lamports": buyback})
			} else {
				b.cfg.Ledger.RecordSpend(treasury.SpendBuyback, buyback)
				res.buyback = buyback
				metrics.BuybackSpentTotal.Add(float64(buyback))
				ev(events.SeveritySuccess, fmt.Sprintf("Executed buyback of %s SOL", formatSOL(buyback)), map[string]any{
					"lamports":  buyback,
					"signature": btxr.Signature.String(),
				})
				b.recordTx(ctx, log, cycleID, "buyback", btxr.Signature.String(), buyback)
			}
		}

	case fees > 0:
		ev(events.SeverityInfo, fmt.Sprintf("Fees below threshold (%s < %s SOL)", formatSOL(fees), formatSOL(b.cfg.MinFeeThreshold)), map[string]any{
			"lamports":  fees,
			"threshold": b.cfg.MinFeeThreshold,
		})

	default:
		log.Debug("no claimable fees")
	}

	// After graduation the whole reserve moves into pool liquidity,
	// including what this cycle just held back. A failed claim parks
	// the deposit with the rest of the monetary steps.
	if state.Phase == phase.Liquidity && !claimFailed {
		if reserve := b.cfg.Ledger.HeldReserve(); reserve > 0 {
			dtxr, err := b.cfg.Gateway.DepositLiquidity(ctx, state.Pool, reserve)
			if err != nil {
				fail(classify(FaultWriteTransaction, "deposit liquidity", err), "Liquidity deposit failed, reserve retained", map[string]any{"lamports": reserve})
			} else {
				b.cfg.Ledger.RecordSpend(treasury.SpendLiquidityDeposit, reserve)
				res.deposited = reserve
				metrics.LiquidityDepositedTotal.Add(float64(reserve))
				deposited := fmt.Sprintf("Deposited %s SOL into liquidity pool", formatSOL(reserve))
				ev(events.SeveritySuccess, deposited, map[string]any{
					"lamports":  reserve,
					"signature": dtxr.Signature.String(),
				})
				b.recordTx(ctx, log, cycleID, "deposit", dtxr.Signature.String(), reserve)
				b.push(ctx, log, events.SeveritySuccess, deposited, map[string]string{
					"amount": formatSOL(reserve) + " SOL",
					"pool":   state.Pool.String(),
				})
			}
		}
	}

	if bal, err := b.cfg.Gateway.ReadTokenBalance(ctx); err != nil {
		fail(classify(FaultTransientRead, "token balance read", err), "Token balance read failed", nil)
	} else {
		res.tokenBal = bal
		res.tokenRead = true
		metrics.TokenBalance.Set(float64(bal))
	}

	return res
}

// publishStatus refreshes the snapshot and broadcasts it to stream
// subscribers. Status pushes are transient, never retained in the log
// ring.
func (b *Bot) publishStatus(res cycleResult) {
	b.mu.Lock()
	b.status.Phase = res.phase.Phase
	if res.phase.Phase == phase.Liquidity {
		b.status.Pool = res.phase.Pool.String()
	}
	b.status.Treasury = b.cfg.Ledger.Snapshot()
	if res.tokenRead {
		b.status.TokenBalance = res.tokenBal
	}
	b.status.LastCycleID = res.cycleID
	at := res.finishedAt
	b.status.LastCycleAt = &at
	b.status.LastOutcome = res.outcome
	st := b.status
	st.Running = b.running
	b.mu.Unlock()

	b.cfg.Events.Broadcast(events.Entry{
		Kind:     events.KindStatus,
		Severity: events.SeverityInfo,
		Message:  "status",
		CycleID:  res.cycleID,
		Data:     map[string]any{"status": st},
	})
}

// persist writes the treasury snapshot. Best-effort: a failed save is a
// warning, the chain remains the source of truth.
func (b *Bot) persist(log *slog.Logger) {
	if b.cfg.Store == nil {
		return
	}
	pool := ""
	if p, graduated := b.cfg.Detector.Pool(); graduated {
		pool = p.String()
	}
	snap := treasury.Snapshot{
		Treasury: b.cfg.Ledger.Snapshot(),
		Pool:     pool,
		SavedAt:  time.Now().UTC(),
	}
	if err := b.cfg.Store.Save(snap); err != nil {
		log.Warn("treasury snapshot save failed", "error", err)
	}
}

func (b *Bot) recordCycle(ctx context.Context, log *slog.Logger, res cycleResult) {
	detail := ""
	if res.err != nil {
		detail = res.err.Error()
	}
	rec := history.CycleRecord{
		CycleID:            res.cycleID,
		StartedAt:          res.startedAt,
		FinishedAt:         res.finishedAt,
		Phase:              string(res.phase.Phase),
		Outcome:            res.outcome,
		FeesClaimed:        res.claimed,
		BuybackSpent:       res.buyback,
		LiquidityDeposited: res.deposited,
		HeldReserve:        b.cfg.Ledger.HeldReserve(),
		Detail:             detail,
	}
	if err := b.cfg.History.RecordCycle(ctx, rec); err != nil {
		log.Warn("cycle history write failed", "error", err)
	}
}

func (b *Bot) recordTx(ctx context.Context, log *slog.Logger, cycleID, kind, signature string, lamports uint64) {
	err := b.cfg.History.RecordTransaction(ctx, history.TransactionRecord{
		CycleID:   cycleID,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Signature: signature,
		Lamports:  lamports,
	})
	if err != nil {
		log.Warn("transaction history write failed", "error", err)
	}
}

// push sends an out-of-band notification. Best-effort.
func (b *Bot) push(ctx context.Context, log *slog.Logger, severity events.Severity, message string, fields map[string]string) {
	if err := b.cfg.Notifier.Notify(ctx, severity, message, fields); err != nil {
		log.Warn("notification failed", "error", err)
	}
}

func (b *Bot) setPhaseMetric(current phase.Phase) {
	for _, p := range []phase.Phase{phase.BondingCurve, phase.Liquidity, phase.Unknown} {
		v := 0.0
		if p == current {
			v = 1.0
		}
		metrics.Phase.WithLabelValues(string(p)).Set(v)
	}
}

func formatSOL(lamports uint64) string {
	return strconv.FormatFloat(float64(lamports)/float64(venue.LamportsPerSOL), 'f', -1, 64)
}
