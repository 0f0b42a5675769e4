// Package phase resolves which venue the managed token currently trades
// on. Detection is one-way: once graduation to the AMM pool is observed,
// the pool address is cached and the chain is never probed again.
package phase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/venue"
)

// Phase identifies where the token currently trades.
type Phase string

const (
	// BondingCurve means the token still trades on the pump.fun curve.
	BondingCurve Phase = "bondingCurve"
	// Liquidity means the token has graduated to the AMM pool.
	Liquidity Phase = "liquidity"
	// Unknown means detection could not settle on either venue, usually
	// because the migration is in flight or the probe failed.
	Unknown Phase = "unknown"
)

// State pairs a phase with the pool address once graduated. Pool is only
// set when Phase is Liquidity.
type State struct {
	Phase Phase
	Pool  solana.PublicKey
}

// Market maps the state onto the venue an operation should target.
// Unknown routes to the curve, which is the safe side during migration.
func (s State) Market() venue.Market {
	if s.Phase == Liquidity {
		return venue.PoolMarket(s.Pool)
	}
	return venue.CurveMarket()
}

// Prober is the slice of the venue gateway the detector reads through.
type Prober interface {
	ProbeBondingCurve(ctx context.Context) (*venue.CurveState, error)
	DerivePoolAddress() (solana.PublicKey, error)
	AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error)
}

// Detector resolves the current phase against the chain.
type Detector struct {
	log    *slog.Logger
	prober Prober

	mu        sync.Mutex
	graduated bool
	pool      solana.PublicKey
}

// NewDetector builds a detector reading through prober.
func NewDetector(log *slog.Logger, prober Prober) *Detector {
	return &Detector{
		log:    log.With("component", "phase"),
		prober: prober,
	}
}

// SeedPool marks graduation as already observed, with the given pool.
// Used when restoring persisted state across restarts.
func (d *Detector) SeedPool(pool solana.PublicKey) {
	if pool.IsZero() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.graduated = true
	d.pool = pool
}

// Pool returns the cached pool address and whether graduation has been
// observed.
func (d *Detector) Pool() (solana.PublicKey, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pool, d.graduated
}

// Detect resolves the current phase. After graduation has been observed
// once, the cached state is returned without touching the chain. A probe
// failure resolves to Unknown alongside the error so the caller can
// degrade instead of aborting.
func (d *Detector) Detect(ctx context.Context) (State, error) {
	d.mu.Lock()
	if d.graduated {
		st := State{Phase: Liquidity, Pool: d.pool}
		d.mu.Unlock()
		return st, nil
	}
	d.mu.Unlock()

	curve, probeErr := d.prober.ProbeBondingCurve(ctx)
	if probeErr == nil && !curve.Complete {
		return State{Phase: BondingCurve}, nil
	}

	// Curve complete, closed by the migration, or unreadable. The pool
	// account is the deciding evidence either way: an existing pool wins
	// over a stale or erroring curve read.
	st, err := d.resolvePool(ctx)
	if st.Phase == Liquidity {
		if probeErr != nil && !errors.Is(probeErr, venue.ErrAccountNotFound) {
			d.log.Debug("curve probe failed but pool exists", "error", probeErr)
		}
		return st, nil
	}
	if probeErr != nil && !errors.Is(probeErr, venue.ErrAccountNotFound) {
		return st, fmt.Errorf("probe bonding curve: %w", probeErr)
	}
	return st, err
}

// resolvePool confirms the canonical pool exists before declaring
// graduation. A complete curve with no pool yet means the migration is
// still in flight.
func (d *Detector) resolvePool(ctx context.Context) (State, error) {
	pool, err := d.prober.DerivePoolAddress()
	if err != nil {
		return State{Phase: Unknown}, fmt.Errorf("derive pool address: %w", err)
	}
	exists, err := d.prober.AccountExists(ctx, pool)
	if err != nil {
		return State{Phase: Unknown}, fmt.Errorf("check pool account: %w", err)
	}
	if !exists {
		return State{Phase: Unknown}, nil
	}

	d.mu.Lock()
	d.graduated = true
	d.pool = pool
	d.mu.Unlock()

	d.log.Info("graduation detected", "pool", pool.String())
	return State{Phase: Liquidity, Pool: pool}, nil
}
