package config

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so tests do not inherit
// state from the invoking shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"RPC_ENDPOINT", "WS_ENDPOINT", "WALLET_PRIVATE_KEY", "TOKEN_MINT",
		"MIN_FEE_THRESHOLD_SOL", "BUYBACK_PCT", "CYCLE_INTERVAL_MS",
		"SLIPPAGE_BPS", "PRIORITY_FEE_MICROLAMPORTS", "RPC_REQUESTS_PER_SECOND",
		"BIND_HOST", "PORT", "STATE_PATH", "HISTORY_DB_PATH",
		"SLACK_WEBHOOK_URL", "SENTRY_DSN", "AUTO_START",
	} {
		t.Setenv(name, "")
	}
}

func setRequiredEnv(t *testing.T) (wallet solana.PrivateKey, mint solana.PublicKey) {
	t.Helper()
	clearEnv(t)

	wallet = solana.NewWallet().PrivateKey
	mint = solana.NewWallet().PrivateKey.PublicKey()

	t.Setenv("RPC_ENDPOINT", "https://api.mainnet-beta.solana.com")
	t.Setenv("WALLET_PRIVATE_KEY", wallet.String())
	t.Setenv("TOKEN_MINT", mint.String())
	return wallet, mint
}

func TestLiquid_Config_Defaults(t *testing.T) {
	wallet, mint := setRequiredEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	require.Equal(t, "https://api.mainnet-beta.solana.com", cfg.RPCEndpoint)
	require.Equal(t, "wss://api.mainnet-beta.solana.com", cfg.WSEndpoint)
	require.Equal(t, wallet.PublicKey(), cfg.Wallet.PublicKey())
	require.Equal(t, mint, cfg.Mint)

	require.Equal(t, uint64(15_000_000), cfg.MinFeeThreshold)
	require.Equal(t, 50, cfg.BuybackPct)
	require.Equal(t, time.Minute, cfg.Interval)
	require.Equal(t, uint64(500), cfg.SlippageBps)
	require.Zero(t, cfg.PriorityFeeMicroLamports)
	require.Equal(t, 10.0, cfg.RPCRequestsPerSecond)

	require.Equal(t, "0.0.0.0", cfg.BindHost)
	require.Equal(t, 3000, cfg.Port)
	require.Equal(t, "data/treasury-state.json", cfg.StatePath)
	require.Equal(t, "data/history.db", cfg.HistoryDBPath)

	require.Empty(t, cfg.SlackWebhookURL)
	require.Empty(t, cfg.SentryDSN)
	require.True(t, cfg.AutoStart)
	require.False(t, cfg.Verbose)
}

func TestLiquid_Config_RequiredFields(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RPC_ENDPOINT", "")
	_, err := Load(nil)
	require.ErrorContains(t, err, "RPC_ENDPOINT is required")

	setRequiredEnv(t)
	t.Setenv("WALLET_PRIVATE_KEY", "")
	_, err = Load(nil)
	require.ErrorContains(t, err, "WALLET_PRIVATE_KEY is required")

	setRequiredEnv(t)
	t.Setenv("TOKEN_MINT", "")
	_, err = Load(nil)
	require.ErrorContains(t, err, "TOKEN_MINT is required")
}

func TestLiquid_Config_FlagsApply(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load([]string{
		"--port=4000",
		"--buyback-pct=75",
		"--min-fee-threshold-sol=0.1",
		"--interval-ms=5000",
		"--auto-start=false",
		"--verbose",
	})
	require.NoError(t, err)

	require.Equal(t, 4000, cfg.Port)
	require.Equal(t, 75, cfg.BuybackPct)
	require.Equal(t, uint64(100_000_000), cfg.MinFeeThreshold)
	require.Equal(t, 5*time.Second, cfg.Interval)
	require.False(t, cfg.AutoStart)
	require.True(t, cfg.Verbose)
}

func TestLiquid_Config_EnvOverridesFlags(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "5000")
	t.Setenv("BUYBACK_PCT", "25")
	t.Setenv("AUTO_START", "false")

	cfg, err := Load([]string{"--port=4000", "--buyback-pct=75"})
	require.NoError(t, err)

	require.Equal(t, 5000, cfg.Port)
	require.Equal(t, 25, cfg.BuybackPct)
	require.False(t, cfg.AutoStart)
}

func TestLiquid_Config_Validation(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"buyback pct above range", map[string]string{"BUYBACK_PCT": "150"}, "between 0 and 100"},
		{"buyback pct negative", map[string]string{"BUYBACK_PCT": "-1"}, "between 0 and 100"},
		{"zero interval", map[string]string{"CYCLE_INTERVAL_MS": "0"}, "must be positive"},
		{"threshold zero", map[string]string{"MIN_FEE_THRESHOLD_SOL": "0"}, "must be positive"},
		{"threshold negative", map[string]string{"MIN_FEE_THRESHOLD_SOL": "-0.1"}, "must be positive"},
		{"slippage too large", map[string]string{"SLIPPAGE_BPS": "10000"}, "below 10000"},
		{"port out of range", map[string]string{"PORT": "70000"}, "port must be"},
		{"bad wallet key", map[string]string{"WALLET_PRIVATE_KEY": "not-base58!!"}, "invalid WALLET_PRIVATE_KEY"},
		{"bad mint", map[string]string{"TOKEN_MINT": "zzz"}, "invalid TOKEN_MINT"},
		{"bad auto start", map[string]string{"AUTO_START": "maybe"}, "invalid AUTO_START"},
		{"bad interval", map[string]string{"CYCLE_INTERVAL_MS": "soon"}, "invalid CYCLE_INTERVAL_MS"},
		{"zero rpc rate", map[string]string{"RPC_REQUESTS_PER_SECOND": "0"}, "rate limit must be positive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(nil)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLiquid_Config_WalletKeyMustBeFullKeypair(t *testing.T) {
	setRequiredEnv(t)
	// A public key is valid base58 but only 32 bytes.
	t.Setenv("WALLET_PRIVATE_KEY", solana.NewWallet().PrivateKey.PublicKey().String())

	_, err := Load(nil)
	require.ErrorContains(t, err, "64 bytes")
}

func TestLiquid_Config_WSEndpointDerivation(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RPC_ENDPOINT", "http://localhost:8899")
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8899", cfg.WSEndpoint)

	setRequiredEnv(t)
	t.Setenv("WS_ENDPOINT", "wss://rpc.example.com/ws")
	cfg, err = Load(nil)
	require.NoError(t, err)
	require.Equal(t, "wss://rpc.example.com/ws", cfg.WSEndpoint)

	setRequiredEnv(t)
	t.Setenv("RPC_ENDPOINT", "localhost:8899")
	_, err = Load(nil)
	require.ErrorContains(t, err, "set WS_ENDPOINT")
}

func TestLiquid_Config_ThresholdConversionIsExact(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MIN_FEE_THRESHOLD_SOL", "0.015")
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(15_000_000), cfg.MinFeeThreshold)

	setRequiredEnv(t)
	t.Setenv("MIN_FEE_THRESHOLD_SOL", "1")
	cfg, err = Load(nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000), cfg.MinFeeThreshold)
}
