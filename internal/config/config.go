// Package config loads the bot configuration from flags and environment
// variables. Environment variables win over flags; a .env file in the
// working directory is loaded first when present.
package config

import (
	"crypto/ed25519"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	flag "github.com/spf13/pflag"
)

// Config holds all configuration for the treasury bot.
type Config struct {
	// Chain access
	RPCEndpoint string
	WSEndpoint  string
	Wallet      solana.PrivateKey
	Mint        solana.PublicKey

	// Treasury policy
	MinFeeThreshold uint64 // lamports
	BuybackPct      int
	Interval        time.Duration

	// Execution
	SlippageBps              uint64
	PriorityFeeMicroLamports uint64
	RPCRequestsPerSecond     float64

	// HTTP server
	BindHost string
	Port     int

	// Persistence
	StatePath     string
	HistoryDBPath string

	// Integrations (optional)
	SlackWebhookURL string
	SentryDSN       string

	// Behavior
	AutoStart bool
	Verbose   bool
}

// Load parses args and the environment into a Config.
func Load(args []string) (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	fs := flag.NewFlagSet("liquidbot", flag.ContinueOnError)

	rpcEndpointFlag := fs.String("rpc-endpoint", "", "Solana RPC endpoint (or set RPC_ENDPOINT env var)")
	wsEndpointFlag := fs.String("ws-endpoint", "", "Solana websocket endpoint, derived from the RPC endpoint when empty (or set WS_ENDPOINT env var)")
	mintFlag := fs.String("mint", "", "Managed token mint (or set TOKEN_MINT env var)")
	thresholdFlag := fs.Float64("min-fee-threshold-sol", 0.015, "Claimable fee balance, in SOL, below which fees are left to accrue (or set MIN_FEE_THRESHOLD_SOL env var)")
	buybackPctFlag := fs.Int("buyback-pct", 50, "Share of each harvest spent on buy-pressure, 0-100 (or set BUYBACK_PCT env var)")
	intervalFlag := fs.Int64("interval-ms", 60_000, "Milliseconds between reconciliation cycles (or set CYCLE_INTERVAL_MS env var)")
	slippageFlag := fs.Uint64("slippage-bps", 500, "Slippage tolerance in basis points (or set SLIPPAGE_BPS env var)")
	priorityFeeFlag := fs.Uint64("priority-fee", 0, "Priority fee in microlamports per compute unit, 0 to disable (or set PRIORITY_FEE_MICROLAMPORTS env var)")
	rpcRPSFlag := fs.Float64("rpc-rps", 10, "Maximum RPC requests per second (or set RPC_REQUESTS_PER_SECOND env var)")
	bindFlag := fs.String("bind", "0.0.0.0", "HTTP server bind host (or set BIND_HOST env var)")
	portFlag := fs.Int("port", 3000, "HTTP server port (or set PORT env var)")
	statePathFlag := fs.String("state-path", "data/treasury-state.json", "Path of the persisted treasury snapshot (or set STATE_PATH env var)")
	historyDBFlag := fs.String("history-db", "data/history.db", "Path of the cycle history database, empty to disable (or set HISTORY_DB_PATH env var)")
	autoStartFlag := fs.Bool("auto-start", true, "Start the reconciliation loop on boot (or set AUTO_START env var)")
	verboseFlag := fs.Bool("verbose", false, "enable verbose (debug) logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if env := os.Getenv("RPC_ENDPOINT"); env != "" {
		*rpcEndpointFlag = env
	}
	if env := os.Getenv("WS_ENDPOINT"); env != "" {
		*wsEndpointFlag = env
	}
	if env := os.Getenv("TOKEN_MINT"); env != "" {
		*mintFlag = env
	}
	if env := os.Getenv("MIN_FEE_THRESHOLD_SOL"); env != "" {
		v, err := strconv.ParseFloat(env, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MIN_FEE_THRESHOLD_SOL %q: %w", env, err)
		}
		*thresholdFlag = v
	}
	if env := os.Getenv("BUYBACK_PCT"); env != "" {
		v, err := strconv.Atoi(env)
		if err != nil {
			return nil, fmt.Errorf("invalid BUYBACK_PCT %q: %w", env, err)
		}
		*buybackPctFlag = v
	}
	if env := os.Getenv("CYCLE_INTERVAL_MS"); env != "" {
		v, err := strconv.ParseInt(env, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CYCLE_INTERVAL_MS %q: %w", env, err)
		}
		*intervalFlag = v
	}
	if env := os.Getenv("SLIPPAGE_BPS"); env != "" {
		v, err := strconv.ParseUint(env, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SLIPPAGE_BPS %q: %w", env, err)
		}
		*slippageFlag = v
	}
	if env := os.Getenv("PRIORITY_FEE_MICROLAMPORTS"); env != "" {
		v, err := strconv.ParseUint(env, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid PRIORITY_FEE_MICROLAMPORTS %q: %w", env, err)
		}
		*priorityFeeFlag = v
	}
	if env := os.Getenv("RPC_REQUESTS_PER_SECOND"); env != "" {
		v, err := strconv.ParseFloat(env, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RPC_REQUESTS_PER_SECOND %q: %w", env, err)
		}
		*rpcRPSFlag = v
	}
	if env := os.Getenv("BIND_HOST"); env != "" {
		*bindFlag = env
	}
	if env := os.Getenv("PORT"); env != "" {
		v, err := strconv.Atoi(env)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", env, err)
		}
		*portFlag = v
	}
	if env := os.Getenv("STATE_PATH"); env != "" {
		*statePathFlag = env
	}
	if env := os.Getenv("HISTORY_DB_PATH"); env != "" {
		*historyDBFlag = env
	}
	if env := os.Getenv("AUTO_START"); env != "" {
		v, err := strconv.ParseBool(env)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTO_START %q: %w", env, err)
		}
		*autoStartFlag = v
	}

	cfg := &Config{
		RPCEndpoint:              *rpcEndpointFlag,
		WSEndpoint:               *wsEndpointFlag,
		BuybackPct:               *buybackPctFlag,
		SlippageBps:              *slippageFlag,
		PriorityFeeMicroLamports: *priorityFeeFlag,
		RPCRequestsPerSecond:     *rpcRPSFlag,
		BindHost:                 *bindFlag,
		Port:                     *portFlag,
		StatePath:                *statePathFlag,
		HistoryDBPath:            *historyDBFlag,
		SlackWebhookURL:          os.Getenv("SLACK_WEBHOOK_URL"),
		SentryDSN:                os.Getenv("SENTRY_DSN"),
		AutoStart:                *autoStartFlag,
		Verbose:                  *verboseFlag,
	}

	if cfg.RPCEndpoint == "" {
		return nil, fmt.Errorf("RPC_ENDPOINT is required")
	}
	if cfg.WSEndpoint == "" {
		ws, err := deriveWSEndpoint(cfg.RPCEndpoint)
		if err != nil {
			return nil, err
		}
		cfg.WSEndpoint = ws
	}

	// The wallet key is accepted from the environment only, never argv.
	walletKey := os.Getenv("WALLET_PRIVATE_KEY")
	if walletKey == "" {
		return nil, fmt.Errorf("WALLET_PRIVATE_KEY is required")
	}
	walletBytes, err := base58.Decode(walletKey)
	if err != nil {
		return nil, fmt.Errorf("invalid WALLET_PRIVATE_KEY: %w", err)
	}
	if len(walletBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("WALLET_PRIVATE_KEY must decode to %d bytes, got %d", ed25519.PrivateKeySize, len(walletBytes))
	}
	cfg.Wallet = solana.PrivateKey(walletBytes)

	if *mintFlag == "" {
		return nil, fmt.Errorf("TOKEN_MINT is required")
	}
	mint, err := solana.PublicKeyFromBase58(*mintFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_MINT %q: %w", *mintFlag, err)
	}
	cfg.Mint = mint

	if *thresholdFlag <= 0 {
		return nil, fmt.Errorf("minimum fee threshold must be positive, got %v", *thresholdFlag)
	}
	cfg.MinFeeThreshold = uint64(math.Round(*thresholdFlag * 1e9))

	if cfg.BuybackPct < 0 || cfg.BuybackPct > 100 {
		return nil, fmt.Errorf("buyback percentage must be between 0 and 100, got %d", cfg.BuybackPct)
	}
	if *intervalFlag <= 0 {
		return nil, fmt.Errorf("cycle interval must be positive, got %d", *intervalFlag)
	}
	cfg.Interval = time.Duration(*intervalFlag) * time.Millisecond

	if cfg.SlippageBps >= 10_000 {
		return nil, fmt.Errorf("slippage must be below 10000 bps, got %d", cfg.SlippageBps)
	}
	if cfg.RPCRequestsPerSecond <= 0 {
		return nil, fmt.Errorf("RPC rate limit must be positive, got %v", cfg.RPCRequestsPerSecond)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}

	return cfg, nil
}

// deriveWSEndpoint maps an HTTP RPC endpoint onto its websocket
// counterpart.
func deriveWSEndpoint(rpcEndpoint string) (string, error) {
	switch {
	case strings.HasPrefix(rpcEndpoint, "https://"):
		return "wss://" + strings.TrimPrefix(rpcEndpoint, "https://"), nil
	case strings.HasPrefix(rpcEndpoint, "http://"):
		return "ws://" + strings.TrimPrefix(rpcEndpoint, "http://"), nil
	default:
		return "", fmt.Errorf("cannot derive websocket endpoint from %q, set WS_ENDPOINT", rpcEndpoint)
	}
}
