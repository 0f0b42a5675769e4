// Package venue talks to the two trading venues a pump.fun token moves
// through: the bonding curve it launches on and the AMM pool it graduates
// into. It owns address derivation, account decoding and transaction
// construction for both.
package venue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrAccountNotFound reports that an account does not exist on chain.
// Reads translate the RPC not-found sentinel into this error so callers
// can treat absence as an answer rather than a fault.
var ErrAccountNotFound = errors.New("account not found")

// MarketKind selects which venue an operation targets.
type MarketKind int

const (
	MarketCurve MarketKind = iota
	MarketPool
)

func (k MarketKind) String() string {
	switch k {
	case MarketCurve:
		return "curve"
	case MarketPool:
		return "pool"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Market identifies the venue a monetary operation should run against.
// Pool is set only when Kind is MarketPool.
type Market struct {
	Kind MarketKind
	Pool solana.PublicKey
}

// CurveMarket returns a Market targeting the bonding curve.
func CurveMarket() Market { return Market{Kind: MarketCurve} }

// PoolMarket returns a Market targeting the given AMM pool.
func PoolMarket(pool solana.PublicKey) Market {
	return Market{Kind: MarketPool, Pool: pool}
}

func (m Market) String() string {
	if m.Kind == MarketPool {
		return fmt.Sprintf("pool %s", m.Pool)
	}
	return m.Kind.String()
}

// TxResult carries the confirmed signature of a submitted transaction.
type TxResult struct {
	Signature solana.Signature
}

// Gateway is the on-chain surface the reconciliation loop drives.
type Gateway interface {
	// ProbeBondingCurve fetches and decodes the bonding curve account.
	// Returns ErrAccountNotFound if the account does not exist.
	ProbeBondingCurve(ctx context.Context) (*CurveState, error)

	// DerivePoolAddress returns the canonical PumpSwap pool address for
	// the configured mint. Pure derivation, no RPC.
	DerivePoolAddress() (solana.PublicKey, error)

	// AccountExists reports whether an account exists on chain.
	AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error)

	// ReadFeeBalance returns the claimable creator fee balance in
	// lamports on the given market. A vault that does not exist yet
	// reads as zero.
	ReadFeeBalance(ctx context.Context, market Market) (uint64, error)

	// ClaimFees sweeps the accrued creator fees into the wallet.
	ClaimFees(ctx context.Context, market Market) (*TxResult, error)

	// Buy swaps lamportsIn of SOL into the token on the given market.
	Buy(ctx context.Context, market Market, lamportsIn uint64) (*TxResult, error)

	// DepositLiquidity adds liquidity to the pool sized by quoteLamports
	// on the quote side, drawing the matching base amount from the
	// wallet's token balance.
	DepositLiquidity(ctx context.Context, pool solana.PublicKey, quoteLamports uint64) (*TxResult, error)

	// ReadTokenBalance returns the wallet's raw token balance.
	ReadTokenBalance(ctx context.Context) (uint64, error)
}
