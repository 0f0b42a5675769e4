package venue

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/metrics"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/retry"
)

// ClaimFees sweeps the accrued creator fees into the wallet. Curve fees
// arrive as native SOL, pool fees as WSOL that is unwrapped in the same
// transaction.
func (g *ChainGateway) ClaimFees(ctx context.Context, market Market) (*TxResult, error) {
	if market.Kind == MarketPool {
		return g.claimPoolFees(ctx)
	}
	return g.claimCurveFees(ctx)
}

func (g *ChainGateway) claimCurveFees(ctx context.Context) (*TxResult, error) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, collectCreatorFeeDiscriminator)

	ix := solana.NewInstruction(PumpProgram, solana.AccountMetaSlice{
		{PublicKey: g.wallet, IsSigner: true, IsWritable: true},
		{PublicKey: g.creatorVault, IsWritable: true},
		{PublicKey: SystemProgram},
		{PublicKey: PumpEventAuthority},
		{PublicKey: PumpProgram},
	}, data)

	return g.sendInstructions(ctx, "collect_creator_fee", []solana.Instruction{ix})
}

func (g *ChainGateway) claimPoolFees(ctx context.Context) (*TxResult, error) {
	instrs, err := g.ensureTokenAccount(ctx, g.wallet, WSOLMint, g.walletQuoteAccount)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, collectCoinCreatorFeeDiscriminator)

	ix := solana.NewInstruction(PumpAmmProgram, solana.AccountMetaSlice{
		{PublicKey: WSOLMint},
		{PublicKey: TokenProgram},
		{PublicKey: g.ammCreatorVaultAuth},
		{PublicKey: g.ammCreatorVaultQuote, IsWritable: true},
		{PublicKey: g.wallet, IsSigner: true},
		{PublicKey: g.walletQuoteAccount, IsWritable: true},
		{PublicKey: g.ammEventAuthority},
		{PublicKey: PumpAmmProgram},
	}, data)
	instrs = append(instrs, ix)

	// Unwrap: closing the WSOL account returns the swept fees as native
	// SOL, which is what the treasury accounts in.
	closeIx, err := token.NewCloseAccountInstruction(
		g.walletQuoteAccount, g.wallet, g.wallet, nil,
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build close account instruction: %w", err)
	}
	instrs = append(instrs, closeIx)

	return g.sendInstructions(ctx, "collect_coin_creator_fee", instrs)
}

// Buy swaps lamportsIn of SOL into the token on the given market.
func (g *ChainGateway) Buy(ctx context.Context, market Market, lamportsIn uint64) (*TxResult, error) {
	if lamportsIn == 0 {
		return nil, errors.New("buy of zero lamports")
	}
	if market.Kind == MarketPool {
		return g.buyPool(ctx, market.Pool, lamportsIn)
	}
	return g.buyCurve(ctx, lamportsIn)
}

func (g *ChainGateway) buyCurve(ctx context.Context, lamportsIn uint64) (*TxResult, error) {
	state, err := g.ProbeBondingCurve(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe before buy: %w", err)
	}
	if state.Complete {
		return nil, errors.New("bonding curve is complete")
	}

	tokensOut := state.TokensOut(lamportsIn)
	if tokensOut == 0 {
		return nil, fmt.Errorf("buy of %d lamports yields no tokens at current price", lamportsIn)
	}
	maxSolCost := applyBpsUp(lamportsIn, g.cfg.SlippageBps)

	instrs, err := g.ensureTokenAccount(ctx, g.wallet, g.cfg.Mint, g.walletTokenAccount)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 24)
	binary.LittleEndian.PutUint64(data[0:8], buyDiscriminator)
	binary.LittleEndian.PutUint64(data[8:16], tokensOut)
	binary.LittleEndian.PutUint64(data[16:24], maxSolCost)

	ix := solana.NewInstruction(PumpProgram, solana.AccountMetaSlice{
		{PublicKey: PumpGlobal},
		{PublicKey: PumpFeeRecipient, IsWritable: true},
		{PublicKey: g.cfg.Mint},
		{PublicKey: g.bondingCurve, IsWritable: true},
		{PublicKey: g.curveTokenAccount, IsWritable: true},
		{PublicKey: g.walletTokenAccount, IsWritable: true},
		{PublicKey: g.wallet, IsSigner: true, IsWritable: true},
		{PublicKey: SystemProgram},
		{PublicKey: TokenProgram},
		{PublicKey: g.creatorVault, IsWritable: true},
		{PublicKey: PumpEventAuthority},
		{PublicKey: PumpProgram},
	}, data)
	instrs = append(instrs, ix)

	g.log.Debug("built curve buy",
		"lamports_in", lamportsIn,
		"tokens_out", tokensOut,
		"max_sol_cost", maxSolCost,
		"price", state.Price())

	return g.sendInstructions(ctx, "curve_buy", instrs)
}

func (g *ChainGateway) buyPool(ctx context.Context, pool solana.PublicKey, lamportsIn uint64) (*TxResult, error) {
	st, err := g.fetchPoolState(ctx, pool)
	if err != nil {
		return nil, err
	}
	baseReserve, quoteReserve, err := g.poolReserves(ctx, st)
	if err != nil {
		return nil, err
	}
	if quoteReserve == 0 {
		return nil, errors.New("pool has no quote reserve")
	}

	// Quote at spot and let the slippage bound absorb pool fees and
	// movement between quote and fill.
	baseOut := uint64(float64(lamportsIn) * float64(baseReserve) / float64(quoteReserve))
	baseOut = applyBpsDown(baseOut, g.cfg.SlippageBps)
	if baseOut == 0 {
		return nil, fmt.Errorf("buy of %d lamports yields no tokens at current price", lamportsIn)
	}
	maxQuoteIn := applyBpsUp(lamportsIn, g.cfg.SlippageBps)

	instrs, err := g.ensureTokenAccount(ctx, g.wallet, g.cfg.Mint, g.walletTokenAccount)
	if err != nil {
		return nil, err
	}
	wrapIxs, err := g.wrapQuote(ctx, maxQuoteIn)
	if err != nil {
		return nil, err
	}
	instrs = append(instrs, wrapIxs...)

	data := make([]byte, 24)
	binary.LittleEndian.PutUint64(data[0:8], buyDiscriminator)
	binary.LittleEndian.PutUint64(data[8:16], baseOut)
	binary.LittleEndian.PutUint64(data[16:24], maxQuoteIn)

	ix := solana.NewInstruction(PumpAmmProgram, solana.AccountMetaSlice{
		{PublicKey: pool},
		{PublicKey: g.wallet, IsSigner: true, IsWritable: true},
		{PublicKey: g.ammGlobalConfig},
		{PublicKey: st.BaseMint},
		{PublicKey: st.QuoteMint},
		{PublicKey: g.walletTokenAccount, IsWritable: true},
		{PublicKey: g.walletQuoteAccount, IsWritable: true},
		{PublicKey: st.PoolBaseTokenAccount, IsWritable: true},
		{PublicKey: st.PoolQuoteTokenAccount, IsWritable: true},
		{PublicKey: AmmProtocolFeeRecipient},
		{PublicKey: g.protocolFeeQuote, IsWritable: true},
		{PublicKey: TokenProgram},
		{PublicKey: TokenProgram},
		{PublicKey: SystemProgram},
		{PublicKey: AssociatedTokenProgram},
		{PublicKey: g.ammEventAuthority},
		{PublicKey: PumpAmmProgram},
		{PublicKey: g.coinCreatorVaultQuote(st), IsWritable: true},
		{PublicKey: g.coinCreatorVaultAuthority(st)},
	}, data)
	instrs = append(instrs, ix)

	closeIx, err := token.NewCloseAccountInstruction(
		g.walletQuoteAccount, g.wallet, g.wallet, nil,
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build close account instruction: %w", err)
	}
	instrs = append(instrs, closeIx)

	g.log.Debug("built pool buy",
		"lamports_in", lamportsIn,
		"base_out", baseOut,
		"max_quote_in", maxQuoteIn)

	return g.sendInstructions(ctx, "pool_buy", instrs)
}

// DepositLiquidity adds liquidity sized by quoteLamports on the quote
// side, drawing the matching base amount from the wallet.
func (g *ChainGateway) DepositLiquidity(ctx context.Context, pool solana.PublicKey, quoteLamports uint64) (*TxResult, error) {
	if quoteLamports == 0 {
		return nil, errors.New("deposit of zero lamports")
	}

	st, err := g.fetchPoolState(ctx, pool)
	if err != nil {
		return nil, err
	}
	baseReserve, quoteReserve, err := g.poolReserves(ctx, st)
	if err != nil {
		return nil, err
	}
	if baseReserve == 0 || quoteReserve == 0 || st.LpSupply == 0 {
		return nil, errors.New("pool is empty")
	}

	baseNeeded := uint64(float64(quoteLamports) * float64(baseReserve) / float64(quoteReserve))
	maxBaseIn := applyBpsUp(baseNeeded, g.cfg.SlippageBps)

	held, err := g.ReadTokenBalance(ctx)
	if err != nil {
		return nil, err
	}
	if held < maxBaseIn {
		return nil, fmt.Errorf("wallet holds %d base tokens, deposit needs up to %d", held, maxBaseIn)
	}

	lpOut := uint64(float64(st.LpSupply) * float64(quoteLamports) / float64(quoteReserve))
	lpOut = applyBpsDown(lpOut, g.cfg.SlippageBps)
	if lpOut == 0 {
		return nil, fmt.Errorf("deposit of %d lamports yields no lp tokens", quoteLamports)
	}

	lpAccount, err := findToken2022AssociatedAddress(g.wallet, st.LpMint)
	if err != nil {
		return nil, fmt.Errorf("derive lp token account: %w", err)
	}
	instrs, err := g.ensureToken2022Account(ctx, g.wallet, st.LpMint, lpAccount)
	if err != nil {
		return nil, err
	}
	wrapIxs, err := g.wrapQuote(ctx, quoteLamports)
	if err != nil {
		return nil, err
	}
	instrs = append(instrs, wrapIxs...)

	data := make([]byte, 32)
	binary.LittleEndian.PutUint64(data[0:8], depositDiscriminator)
	binary.LittleEndian.PutUint64(data[8:16], lpOut)
	binary.LittleEndian.PutUint64(data[16:24], maxBaseIn)
	binary.LittleEndian.PutUint64(data[24:32], quoteLamports)

	ix := solana.NewInstruction(PumpAmmProgram, solana.AccountMetaSlice{
		{PublicKey: pool, IsWritable: true},
		{PublicKey: g.ammGlobalConfig},
		{PublicKey: g.wallet, IsSigner: true, IsWritable: true},
		{PublicKey: st.BaseMint},
		{PublicKey: st.QuoteMint},
		{PublicKey: st.LpMint, IsWritable: true},
		{PublicKey: g.walletTokenAccount, IsWritable: true},
		{PublicKey: g.walletQuoteAccount, IsWritable: true},
		{PublicKey: lpAccount, IsWritable: true},
		{PublicKey: st.PoolBaseTokenAccount, IsWritable: true},
		{PublicKey: st.PoolQuoteTokenAccount, IsWritable: true},
		{PublicKey: TokenProgram},
		{PublicKey: Token2022Program},
		{PublicKey: g.ammEventAuthority},
		{PublicKey: PumpAmmProgram},
	}, data)
	instrs = append(instrs, ix)

	closeIx, err := token.NewCloseAccountInstruction(
		g.walletQuoteAccount, g.wallet, g.wallet, nil,
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build close account instruction: %w", err)
	}
	instrs = append(instrs, closeIx)

	g.log.Debug("built liquidity deposit",
		"quote_lamports", quoteLamports,
		"max_base_in", maxBaseIn,
		"lp_out", lpOut)

	return g.sendInstructions(ctx, "deposit", instrs)
}

// poolReserves reads the pool's token account balances.
func (g *ChainGateway) poolReserves(ctx context.Context, st *PoolState) (base, quote uint64, err error) {
	base, err = g.readTokenAccountBalance(ctx, st.PoolBaseTokenAccount)
	if err != nil {
		return 0, 0, fmt.Errorf("read base reserve: %w", err)
	}
	quote, err = g.readTokenAccountBalance(ctx, st.PoolQuoteTokenAccount)
	if err != nil {
		return 0, 0, fmt.Errorf("read quote reserve: %w", err)
	}
	return base, quote, nil
}

func (g *ChainGateway) coinCreatorVaultAuthority(st *PoolState) solana.PublicKey {
	addr, err := DeriveAmmCreatorVaultAuthority(st.CoinCreator)
	if err != nil {
		return g.ammCreatorVaultAuth
	}
	return addr
}

func (g *ChainGateway) coinCreatorVaultQuote(st *PoolState) solana.PublicKey {
	addr, _, err := solana.FindAssociatedTokenAddress(g.coinCreatorVaultAuthority(st), WSOLMint)
	if err != nil {
		return g.ammCreatorVaultQuote
	}
	return addr
}

// ensureTokenAccount returns a create instruction when the associated
// token account is missing.
func (g *ChainGateway) ensureTokenAccount(ctx context.Context, owner, mint, account solana.PublicKey) ([]solana.Instruction, error) {
	exists, err := g.AccountExists(ctx, account)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	ix, err := associatedtokenaccount.NewCreateInstruction(g.wallet, owner, mint).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build create token account instruction: %w", err)
	}
	return []solana.Instruction{ix}, nil
}

// ensureToken2022Account is ensureTokenAccount for token-2022 mints. The
// library builder pins the classic token program, so the instruction is
// assembled by hand.
func (g *ChainGateway) ensureToken2022Account(ctx context.Context, owner, mint, account solana.PublicKey) ([]solana.Instruction, error) {
	exists, err := g.AccountExists(ctx, account)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	ix := solana.NewInstruction(AssociatedTokenProgram, solana.AccountMetaSlice{
		{PublicKey: g.wallet, IsSigner: true, IsWritable: true},
		{PublicKey: account, IsWritable: true},
		{PublicKey: owner},
		{PublicKey: mint},
		{PublicKey: SystemProgram},
		{PublicKey: Token2022Program},
	}, []byte{1}) // create_idempotent
	return []solana.Instruction{ix}, nil
}

// wrapQuote funds the wallet's WSOL account with lamports of native SOL.
func (g *ChainGateway) wrapQuote(ctx context.Context, lamports uint64) ([]solana.Instruction, error) {
	instrs, err := g.ensureTokenAccount(ctx, g.wallet, WSOLMint, g.walletQuoteAccount)
	if err != nil {
		return nil, err
	}
	transferIx, err := system.NewTransferInstruction(lamports, g.wallet, g.walletQuoteAccount).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build transfer instruction: %w", err)
	}
	syncIx, err := token.NewSyncNativeInstruction(g.walletQuoteAccount).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("build sync native instruction: %w", err)
	}
	return append(instrs, transferIx, syncIx), nil
}

// sendInstructions assembles, signs, simulates and submits a transaction,
// blocking until it confirms.
func (g *ChainGateway) sendInstructions(ctx context.Context, kind string, instrs []solana.Instruction) (*TxResult, error) {
	if g.cfg.PriorityFeeMicroLamports > 0 {
		priorityIx, err := computebudget.NewSetComputeUnitPriceInstruction(g.cfg.PriorityFeeMicroLamports).ValidateAndBuild()
		if err != nil {
			return nil, fmt.Errorf("build priority fee instruction: %w", err)
		}
		instrs = append([]solana.Instruction{priorityIx}, instrs...)
	}

	var blockhash solana.Hash
	err := retry.Do(ctx, g.cfg.Retry, func() error {
		out, err := g.cfg.RPC.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		blockhash = out.Value.Blockhash
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instrs, blockhash, solana.TransactionPayer(g.wallet))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(g.wallet) {
			return &g.cfg.Wallet
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	sim, err := g.cfg.RPC.SimulateTransaction(ctx, tx)
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("simulate %s: %w", kind, err)
	}
	if sim.Value.Err != nil {
		metrics.TransactionsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("simulate %s: %v (logs: %s)", kind, sim.Value.Err, strings.Join(sim.Value.Logs, "; "))
	}

	sig, err := g.cfg.Sender.SendAndConfirm(ctx, tx)
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues(kind, "error").Inc()
		return nil, fmt.Errorf("send %s: %w", kind, err)
	}

	metrics.TransactionsTotal.WithLabelValues(kind, "ok").Inc()
	g.log.Info("transaction confirmed", "kind", kind, "signature", sig.String())
	return &TxResult{Signature: sig}, nil
}

// findToken2022AssociatedAddress derives the associated token account for
// a token-2022 mint.
func findToken2022AssociatedAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), Token2022Program.Bytes(), mint.Bytes()},
		AssociatedTokenProgram,
	)
	return addr, err
}

// applyBpsUp scales v up by bps basis points without overflowing the
// intermediate product.
func applyBpsUp(v, bps uint64) uint64 {
	return v + v/10_000*bps + v%10_000*bps/10_000
}

// applyBpsDown scales v down by bps basis points.
func applyBpsDown(v, bps uint64) uint64 {
	return v - (v/10_000*bps + v%10_000*bps/10_000)
}
