package bot

import (
	"errors"
	"fmt"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/venue"
)

// FaultKind classifies the failures a cycle can observe. The set is
// closed: every fault maps to exactly one kind, and the cycle boundary
// derives severity and outcome from the kind alone.
type FaultKind int

const (
	// FaultTransientRead is a probe or balance read that failed in
	// transport. The step degrades to a safe default and the cycle
	// continues.
	FaultTransientRead FaultKind = iota

	// FaultWriteTransaction is a claim, buyback or deposit that did not
	// confirm. The ledger is left untouched for the failed action and
	// the dependent monetary remainder is abandoned for this cycle.
	FaultWriteTransaction

	// FaultAccountNotFound is a read of an account that does not exist.
	// Absence is an answer, not an error: the value reads as zero.
	FaultAccountNotFound
)

func (k FaultKind) String() string {
	switch k {
	case FaultTransientRead:
		return "transient_read"
	case FaultWriteTransaction:
		return "write_transaction"
	case FaultAccountNotFound:
		return "account_not_found"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Fault is a classified cycle failure: the step that failed, its kind
// and the raw cause.
type Fault struct {
	Kind FaultKind
	Step string
	Err  error
}

func (f *Fault) Error() string { return fmt.Sprintf("%s: %v", f.Step, f.Err) }

func (f *Fault) Unwrap() error { return f.Err }

// classify wraps a step failure with its kind, demoting anything that
// wraps the not-found sentinel to FaultAccountNotFound.
func classify(kind FaultKind, step string, err error) *Fault {
	if errors.Is(err, venue.ErrAccountNotFound) {
		kind = FaultAccountNotFound
	}
	return &Fault{Kind: kind, Step: step, Err: err}
}
