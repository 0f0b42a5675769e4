package venue

import (
	"encoding/binary"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// CurveState mirrors the on-chain pump.fun BondingCurve account.
type CurveState struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// Price returns the spot price in SOL per token from the virtual reserves.
func (s *CurveState) Price() float64 {
	if s.VirtualTokenReserves == 0 {
		return 0
	}
	sol := float64(s.VirtualSolReserves) / float64(LamportsPerSOL)
	tokens := float64(s.VirtualTokenReserves) / math.Pow10(TokenDecimals)
	return sol / tokens
}

// TokensOut returns the raw token amount the curve currently yields for
// lamports of SOL, before slippage.
func (s *CurveState) TokensOut(lamports uint64) uint64 {
	price := s.Price()
	if price <= 0 {
		return 0
	}
	sol := float64(lamports) / float64(LamportsPerSOL)
	return uint64(sol / price * math.Pow10(TokenDecimals))
}

// DecodeCurveState parses a BondingCurve account. The account may carry
// fields past the ones decoded here; trailing bytes are ignored.
func DecodeCurveState(data []byte) (*CurveState, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("bonding curve account too short: %d bytes", len(data))
	}
	if disc := binary.LittleEndian.Uint64(data[:8]); disc != bondingCurveDiscriminator {
		return nil, fmt.Errorf("unexpected bonding curve discriminator %d", disc)
	}
	var st CurveState
	if err := bin.NewBorshDecoder(data[8:]).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode bonding curve: %w", err)
	}
	return &st, nil
}

// PoolState mirrors the on-chain PumpSwap Pool account.
type PoolState struct {
	PoolBump              uint8
	Index                 uint16
	Creator               solana.PublicKey
	BaseMint              solana.PublicKey
	QuoteMint             solana.PublicKey
	LpMint                solana.PublicKey
	PoolBaseTokenAccount  solana.PublicKey
	PoolQuoteTokenAccount solana.PublicKey
	LpSupply              uint64
	CoinCreator           solana.PublicKey
}

// DecodePoolState parses a PumpSwap Pool account.
func DecodePoolState(data []byte) (*PoolState, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("pool account too short: %d bytes", len(data))
	}
	if disc := binary.LittleEndian.Uint64(data[:8]); disc != poolDiscriminator {
		return nil, fmt.Errorf("unexpected pool discriminator %d", disc)
	}
	var st PoolState
	if err := bin.NewBorshDecoder(data[8:]).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode pool: %w", err)
	}
	return &st, nil
}
