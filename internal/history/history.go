// Package history persists per-cycle outcomes so treasury activity can be
// audited and charted after the fact.
package history

import (
	"context"
	"time"
)

// CycleRecord is one reconciliation cycle's outcome.
type CycleRecord struct {
	CycleID            string    `json:"cycleId"`
	StartedAt          time.Time `json:"startedAt"`
	FinishedAt         time.Time `json:"finishedAt"`
	Phase              string    `json:"phase"`
	Outcome            string    `json:"outcome"`
	FeesClaimed        uint64    `json:"feesClaimed"`
	BuybackSpent       uint64    `json:"buybackSpent"`
	LiquidityDeposited uint64    `json:"liquidityDeposited"`
	HeldReserve        uint64    `json:"heldReserve"`
	Detail             string    `json:"detail,omitempty"`
}

// TransactionRecord is one confirmed on-chain transaction.
type TransactionRecord struct {
	CycleID   string
	Timestamp time.Time
	Kind      string
	Signature string
	Lamports  uint64
}

// Recorder persists cycle history.
type Recorder interface {
	RecordCycle(ctx context.Context, rec CycleRecord) error
	RecordTransaction(ctx context.Context, rec TransactionRecord) error
	RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error)
	Close() error
}

// Noop discards history. Used when no database path is configured.
type Noop struct{}

func (Noop) RecordCycle(context.Context, CycleRecord) error             { return nil }
func (Noop) RecordTransaction(context.Context, TransactionRecord) error { return nil }
func (Noop) RecentCycles(context.Context, int) ([]CycleRecord, error)   { return nil, nil }
func (Noop) Close() error                                               { return nil }
