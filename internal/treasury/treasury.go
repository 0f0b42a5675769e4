package treasury

// State is a value snapshot of the treasury accounting. All amounts are
// lamports.
type State struct {
	TotalFeesCollected      uint64 `json:"totalFeesCollected"`
	TotalBuybackSpent       uint64 `json:"totalBuybackSpent"`
	HeldReserve             uint64 `json:"heldReserve"`
	TotalLiquidityDeposited uint64 `json:"totalLiquidityDeposited"`
}

// SpendKind names the two ways harvested capital leaves the treasury.
type SpendKind int

const (
	SpendBuyback SpendKind = iota
	SpendLiquidityDeposit
)

func (k SpendKind) String() string {
	switch k {
	case SpendBuyback:
		return "buyback"
	case SpendLiquidityDeposit:
		return "liquidityDeposit"
	default:
		return "unknown"
	}
}

// Ledger tracks cumulative fee flows across cycles. It is owned by the
// reconciliation loop and mutated only between confirmed on-chain actions;
// observers read snapshots published by the loop, never the ledger itself.
//
// Conservation invariant:
//
//	TotalFeesCollected == TotalBuybackSpent + HeldReserve + TotalLiquidityDeposited
//
// A buyback leg whose buy fails is never recorded as spent; those lamports
// stay in the wallet as slack on the collected side.
type Ledger struct {
	totalFeesCollected      uint64
	totalBuybackSpent       uint64
	heldReserve             uint64
	totalLiquidityDeposited uint64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Restore overwrites the ledger with a previously saved state.
func (l *Ledger) Restore(st State) {
	l.totalFeesCollected = st.TotalFeesCollected
	l.totalBuybackSpent = st.TotalBuybackSpent
	l.heldReserve = st.HeldReserve
	l.totalLiquidityDeposited = st.TotalLiquidityDeposited
}

// RecordHarvest splits a confirmed fee claim into its buyback and hold legs
// and applies it to the accumulators. The buyback leg is floored integer
// math (amount*pct/100); the hold leg takes the remainder, so the two legs
// always sum to amount exactly.
func (l *Ledger) RecordHarvest(amount uint64, buybackPct int) (buyback, hold uint64) {
	pct := uint64(buybackPct)
	// floor(amount*pct/100) without overflowing the intermediate product.
	buyback = amount/100*pct + amount%100*pct/100
	hold = amount - buyback

	l.totalFeesCollected += amount
	l.heldReserve += hold
	return buyback, hold
}

// RecordSpend applies a confirmed on-chain spend. Buybacks accumulate into
// TotalBuybackSpent; liquidity deposits drain HeldReserve (clamped at zero)
// into TotalLiquidityDeposited. Failed on-chain actions must not be
// recorded.
func (l *Ledger) RecordSpend(kind SpendKind, amount uint64) {
	switch kind {
	case SpendBuyback:
		l.totalBuybackSpent += amount
	case SpendLiquidityDeposit:
		cleared := amount
		if cleared > l.heldReserve {
			cleared = l.heldReserve
		}
		l.heldReserve -= cleared
		l.totalLiquidityDeposited += cleared
	}
}

// HeldReserve returns the lamports currently earmarked for liquidity.
func (l *Ledger) HeldReserve() uint64 {
	return l.heldReserve
}

// Snapshot returns a value copy of the current state.
func (l *Ledger) Snapshot() State {
	return State{
		TotalFeesCollected:      l.totalFeesCollected,
		TotalBuybackSpent:       l.totalBuybackSpent,
		HeldReserve:             l.heldReserve,
		TotalLiquidityDeposited: l.totalLiquidityDeposited,
	}
}
