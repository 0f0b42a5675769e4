// Command liquidbot runs the phase-aware treasury bot: it harvests
// creator fees for the managed token, applies buy-pressure on the active
// venue and deepens pool liquidity after graduation, exposing an HTTP
// control surface for operators.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/bot"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/config"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/events"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/history"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/logger"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/metrics"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/notify"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/phase"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/server"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/treasury"
	"github.com/memecoinersol82-cell/liquid-protocol/internal/venue"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	log := logger.New(cfg.Verbose)
	log.Info("starting liquidbot",
		"version", version,
		"wallet", cfg.Wallet.PublicKey(),
		"mint", cfg.Mint,
		"interval", cfg.Interval,
		"buyback_pct", cfg.BuybackPct,
	)

	metrics.BuildInfo.WithLabelValues(version, commit).Set(1)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Release:          version,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rpcClient := rpc.New(cfg.RPCEndpoint)
	wsClient, err := ws.Connect(ctx, cfg.WSEndpoint)
	if err != nil {
		return fmt.Errorf("connect websocket %s: %w", cfg.WSEndpoint, err)
	}
	defer wsClient.Close()

	burst := int(cfg.RPCRequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	gateway, err := venue.New(venue.Config{
		Logger:                   log,
		RPC:                      venue.NewRateLimitedClient(rpcClient, rate.Limit(cfg.RPCRequestsPerSecond), burst),
		Sender:                   venue.NewConfirmingSender(rpcClient, wsClient, 0),
		Wallet:                   cfg.Wallet,
		Mint:                     cfg.Mint,
		SlippageBps:              cfg.SlippageBps,
		PriorityFeeMicroLamports: cfg.PriorityFeeMicroLamports,
	})
	if err != nil {
		return fmt.Errorf("build venue gateway: %w", err)
	}

	sink := events.NewSink(log, 500)

	var store treasury.Store
	if cfg.StatePath != "" {
		store = treasury.NewFileStore(cfg.StatePath)
	}

	var recorder history.Recorder = history.Noop{}
	if cfg.HistoryDBPath != "" {
		rec, err := history.NewSQLiteRecorder(log, cfg.HistoryDBPath)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer rec.Close()
		recorder = rec
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.SlackWebhookURL != "" {
		notifier = notify.NewSlack(log, cfg.SlackWebhookURL)
	}

	b, err := bot.New(bot.Config{
		Logger:          log,
		Events:          sink,
		Gateway:         gateway,
		Detector:        phase.NewDetector(log, gateway),
		Ledger:          treasury.NewLedger(),
		Store:           store,
		History:         recorder,
		Notifier:        notifier,
		Interval:        cfg.Interval,
		MinFeeThreshold: cfg.MinFeeThreshold,
		BuybackPct:      cfg.BuybackPct,
	})
	if err != nil {
		return fmt.Errorf("build bot: %w", err)
	}

	b.Run(ctx)
	if cfg.AutoStart {
		b.Start()
	}

	srv := server.NewServer(cfg.BindHost, cfg.Port, b, sink, recorder, log)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("liquidbot stopped")
	return nil
}
