package venue

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// Well-known program and account addresses for pump.fun and PumpSwap.
var (
	PumpProgram        = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	PumpGlobal         = solana.MustPublicKeyFromBase58("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	PumpFeeRecipient   = solana.MustPublicKeyFromBase58("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM")
	PumpEventAuthority = solana.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")

	PumpAmmProgram          = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
	AmmProtocolFeeRecipient = solana.MustPublicKeyFromBase58("62qc2CNXwrYqQScmEdiZFFAnJR262PxWEuNQtxfafNgV")

	SystemProgram          = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	TokenProgram           = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022Program       = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProgram = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	WSOLMint               = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// Anchor discriminators as little-endian u64 of the first 8 sighash bytes.
const (
	bondingCurveDiscriminator = uint64(6966180631402821399)
	poolDiscriminator         = uint64(13577703138238765809)

	buyDiscriminator                   = uint64(16927863322537952870)
	collectCreatorFeeDiscriminator     = uint64(9573277071704462868)
	collectCoinCreatorFeeDiscriminator = uint64(4768058240717633952)
	depositDiscriminator               = uint64(13182846803881894898)
)

const (
	// LamportsPerSOL is the number of lamports in one SOL.
	LamportsPerSOL = 1_000_000_000

	// TokenDecimals is the decimal count every pump.fun mint is created with.
	TokenDecimals = 6

	// creatorVaultRent is the rent-exempt minimum of the zero-data creator
	// vault account. Lamports at or below this floor are rent, not fees.
	creatorVaultRent = uint64(890_880)

	// canonicalPoolIndex is the pool index PumpSwap assigns at graduation.
	canonicalPoolIndex = uint16(0)
)

// DeriveBondingCurve returns the bonding curve PDA for a mint.
func DeriveBondingCurve(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), mint.Bytes()},
		PumpProgram,
	)
	return addr, err
}

// DeriveCreatorVault returns the pump.fun vault PDA that accrues creator
// fees while the token trades on the curve.
func DeriveCreatorVault(creator solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("creator-vault"), creator.Bytes()},
		PumpProgram,
	)
	return addr, err
}

// DerivePoolAuthority returns the pump.fun authority that owns the
// graduated pool's LP position.
func DerivePoolAuthority(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("pool-authority"), mint.Bytes()},
		PumpProgram,
	)
	return addr, err
}

// DeriveCanonicalPool returns the PumpSwap pool address the token migrates
// into at graduation.
func DeriveCanonicalPool(mint solana.PublicKey) (solana.PublicKey, error) {
	authority, err := DerivePoolAuthority(mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	index := make([]byte, 2)
	binary.LittleEndian.PutUint16(index, canonicalPoolIndex)
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("pool"), index, authority.Bytes(), mint.Bytes(), WSOLMint.Bytes()},
		PumpAmmProgram,
	)
	return addr, err
}

// DeriveAmmCreatorVaultAuthority returns the PumpSwap authority whose WSOL
// token account accrues creator fees after graduation.
func DeriveAmmCreatorVaultAuthority(creator solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("creator_vault"), creator.Bytes()},
		PumpAmmProgram,
	)
	return addr, err
}

// DeriveAmmGlobalConfig returns the PumpSwap global config PDA.
func DeriveAmmGlobalConfig() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("global_config")},
		PumpAmmProgram,
	)
	return addr, err
}

// DeriveAmmEventAuthority returns the PumpSwap event authority PDA.
func DeriveAmmEventAuthority() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("__event_authority")},
		PumpAmmProgram,
	)
	return addr, err
}
