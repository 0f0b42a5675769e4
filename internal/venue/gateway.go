package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/retry"
)

// Config wires a ChainGateway.
type Config struct {
	Logger *slog.Logger
	RPC    RPCClient
	Sender Sender

	// Wallet signs every transaction. It is assumed to be the token
	// creator whose fees the bot harvests.
	Wallet solana.PrivateKey

	// Mint is the token under management.
	Mint solana.PublicKey

	// SlippageBps bounds how far a swap or deposit may move against us,
	// in basis points. Defaults to 500.
	SlippageBps uint64

	// PriorityFeeMicroLamports is the compute unit price attached to
	// every transaction. Zero omits the instruction.
	PriorityFeeMicroLamports uint64

	// Retry governs chain reads. Zero value takes the default policy.
	Retry retry.Config
}

// Validate checks required fields and applies defaults.
func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Sender == nil {
		return errors.New("sender is required")
	}
	if len(cfg.Wallet) == 0 {
		return errors.New("wallet is required")
	}
	if cfg.Mint.IsZero() {
		return errors.New("mint is required")
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = 500
	}
	if cfg.SlippageBps >= 10_000 {
		return fmt.Errorf("slippage %d bps must be below 10000", cfg.SlippageBps)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// ChainGateway implements Gateway against a live Solana cluster.
type ChainGateway struct {
	log    *slog.Logger
	cfg    Config
	wallet solana.PublicKey

	// Derived once at construction. The wallet is the creator, so none
	// of these change for the life of the process.
	bondingCurve       solana.PublicKey
	curveTokenAccount  solana.PublicKey
	creatorVault       solana.PublicKey
	walletTokenAccount solana.PublicKey
	walletQuoteAccount solana.PublicKey

	ammGlobalConfig      solana.PublicKey
	ammEventAuthority    solana.PublicKey
	ammCreatorVaultAuth  solana.PublicKey
	ammCreatorVaultQuote solana.PublicKey
	protocolFeeQuote     solana.PublicKey
}

// New derives the static account set for the configured mint and wallet.
func New(cfg Config) (*ChainGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &ChainGateway{
		log:    cfg.Logger.With("component", "venue"),
		cfg:    cfg,
		wallet: cfg.Wallet.PublicKey(),
	}

	var err error
	if g.bondingCurve, err = DeriveBondingCurve(cfg.Mint); err != nil {
		return nil, fmt.Errorf("derive bonding curve: %w", err)
	}
	if g.curveTokenAccount, _, err = solana.FindAssociatedTokenAddress(g.bondingCurve, cfg.Mint); err != nil {
		return nil, fmt.Errorf("derive curve token account: %w", err)
	}
	if g.creatorVault, err = DeriveCreatorVault(g.wallet); err != nil {
		return nil, fmt.Errorf("derive creator vault: %w", err)
	}
	if g.walletTokenAccount, _, err = solana.FindAssociatedTokenAddress(g.wallet, cfg.Mint); err != nil {
		return nil, fmt.Errorf("derive wallet token account: %w", err)
	}
	if g.walletQuoteAccount, _, err = solana.FindAssociatedTokenAddress(g.wallet, WSOLMint); err != nil {
		return nil, fmt.Errorf("derive wallet quote account: %w", err)
	}
	if g.ammGlobalConfig, err = DeriveAmmGlobalConfig(); err != nil {
		return nil, fmt.Errorf("derive amm global config: %w", err)
	}
	if g.ammEventAuthority, err = DeriveAmmEventAuthority(); err != nil {
		return nil, fmt.Errorf("derive amm event authority: %w", err)
	}
	if g.ammCreatorVaultAuth, err = DeriveAmmCreatorVaultAuthority(g.wallet); err != nil {
		return nil, fmt.Errorf("derive amm creator vault authority: %w", err)
	}
	if g.ammCreatorVaultQuote, _, err = solana.FindAssociatedTokenAddress(g.ammCreatorVaultAuth, WSOLMint); err != nil {
		return nil, fmt.Errorf("derive amm creator vault token account: %w", err)
	}
	if g.protocolFeeQuote, _, err = solana.FindAssociatedTokenAddress(AmmProtocolFeeRecipient, WSOLMint); err != nil {
		return nil, fmt.Errorf("derive protocol fee token account: %w", err)
	}

	return g, nil
}

// Wallet returns the signing wallet's public key.
func (g *ChainGateway) Wallet() solana.PublicKey { return g.wallet }

// Mint returns the managed token mint.
func (g *ChainGateway) Mint() solana.PublicKey { return g.cfg.Mint }

// ProbeBondingCurve fetches and decodes the bonding curve account.
func (g *ChainGateway) ProbeBondingCurve(ctx context.Context) (*CurveState, error) {
	var state *CurveState
	err := retry.Do(ctx, g.cfg.Retry, func() error {
		out, err := g.cfg.RPC.GetAccountInfo(ctx, g.bondingCurve)
		if err != nil {
			return err
		}
		st, err := DecodeCurveState(out.Value.Data.GetBinary())
		if err != nil {
			return err
		}
		state = st
		return nil
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("bonding curve %s: %w", g.bondingCurve, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("probe bonding curve: %w", err)
	}
	return state, nil
}

// DerivePoolAddress returns the canonical pool address for the mint.
func (g *ChainGateway) DerivePoolAddress() (solana.PublicKey, error) {
	return DeriveCanonicalPool(g.cfg.Mint)
}

// AccountExists reports whether an account exists on chain.
func (g *ChainGateway) AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error) {
	var exists bool
	err := retry.Do(ctx, g.cfg.Retry, func() error {
		_, err := g.cfg.RPC.GetAccountInfo(ctx, addr)
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("check account %s: %w", addr, err)
	}
	return exists, nil
}

// ReadFeeBalance returns the claimable creator fee balance in lamports on
// the given market.
func (g *ChainGateway) ReadFeeBalance(ctx context.Context, market Market) (uint64, error) {
	if market.Kind == MarketPool {
		return g.readTokenAccountBalance(ctx, g.ammCreatorVaultQuote)
	}
	return g.readCurveFeeBalance(ctx)
}

// readCurveFeeBalance reads the lamports sitting in the pump.fun creator
// vault above its rent floor. A vault that was never funded reads as zero.
func (g *ChainGateway) readCurveFeeBalance(ctx context.Context) (uint64, error) {
	var balance uint64
	err := retry.Do(ctx, g.cfg.Retry, func() error {
		out, err := g.cfg.RPC.GetBalance(ctx, g.creatorVault, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		balance = out.Value
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read creator vault balance: %w", err)
	}
	if balance <= creatorVaultRent {
		return 0, nil
	}
	return balance - creatorVaultRent, nil
}

// ReadTokenBalance returns the wallet's raw token balance.
func (g *ChainGateway) ReadTokenBalance(ctx context.Context) (uint64, error) {
	return g.readTokenAccountBalance(ctx, g.walletTokenAccount)
}

// readTokenAccountBalance reads a token account balance, treating a
// missing account as zero.
func (g *ChainGateway) readTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	exists, err := g.AccountExists(ctx, account)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var amount uint64
	err = retry.Do(ctx, g.cfg.Retry, func() error {
		out, err := g.cfg.RPC.GetTokenAccountBalance(ctx, account, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		v, err := strconv.ParseUint(out.Value.Amount, 10, 64)
		if err != nil {
			return fmt.Errorf("parse token amount %q: %w", out.Value.Amount, err)
		}
		amount = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read token balance of %s: %w", account, err)
	}
	return amount, nil
}

// fetchPoolState fetches and decodes a PumpSwap pool account.
func (g *ChainGateway) fetchPoolState(ctx context.Context, pool solana.PublicKey) (*PoolState, error) {
	var state *PoolState
	err := retry.Do(ctx, g.cfg.Retry, func() error {
		out, err := g.cfg.RPC.GetAccountInfo(ctx, pool)
		if err != nil {
			return err
		}
		st, err := DecodePoolState(out.Value.Data.GetBinary())
		if err != nil {
			return err
		}
		state = st
		return nil
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("pool %s: %w", pool, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("fetch pool: %w", err)
	}
	return state, nil
}
