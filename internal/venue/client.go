package venue

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	confirm "github.com/gagliardetto/solana-go/rpc/sendAndConfirmTransaction"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"golang.org/x/time/rate"

	"github.com/memecoinersol82-cell/liquid-protocol/internal/metrics"
)

// RPCClient is the slice of the Solana JSON-RPC surface the gateway reads
// through.
type RPCClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error)
}

// Sender submits a signed transaction and blocks until it confirms.
type Sender interface {
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// RateLimitedClient wraps a Solana RPC client with a client-side rate
// limiter so bursts of reads inside a cycle stay under provider quotas.
type RateLimitedClient struct {
	rpc     *rpc.Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps client with a limiter allowing rps requests
// per second with the given burst.
func NewRateLimitedClient(client *rpc.Client, rps rate.Limit, burst int) *RateLimitedClient {
	return &RateLimitedClient{
		rpc:     client,
		limiter: rate.NewLimiter(rps, burst),
	}
}

func (c *RateLimitedClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetAccountInfo(ctx, account)
	observeRPC("getAccountInfo", err)
	return out, err
}

func (c *RateLimitedClient) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetBalance(ctx, account, commitment)
	observeRPC("getBalance", err)
	return out, err
}

func (c *RateLimitedClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetTokenAccountBalance(ctx, account, commitment)
	observeRPC("getTokenAccountBalance", err)
	return out, err
}

func (c *RateLimitedClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetLatestBlockhash(ctx, commitment)
	observeRPC("getLatestBlockhash", err)
	return out, err
}

func (c *RateLimitedClient) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulateTransactionResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.SimulateTransaction(ctx, tx)
	observeRPC("simulateTransaction", err)
	return out, err
}

// observeRPC counts a request. A not-found response is an answer, so it
// counts as ok.
func observeRPC(method string, err error) {
	status := "ok"
	if err != nil && !errors.Is(err, rpc.ErrNotFound) {
		status = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(method, status).Inc()
}

// ConfirmingSender submits transactions over JSON-RPC and waits for
// confirmation on the websocket subscription feed.
type ConfirmingSender struct {
	rpc     *rpc.Client
	ws      *ws.Client
	timeout time.Duration
}

// NewConfirmingSender builds a sender confirming against the given
// websocket client. A non-positive timeout defaults to 45s.
func NewConfirmingSender(rpcClient *rpc.Client, wsClient *ws.Client, timeout time.Duration) *ConfirmingSender {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &ConfirmingSender{rpc: rpcClient, ws: wsClient, timeout: timeout}
}

func (s *ConfirmingSender) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	opts := rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentFinalized,
	}
	timeout := s.timeout
	return confirm.SendAndConfirmTransactionWithOpts(ctx, s.rpc, s.ws, tx, opts, &timeout)
}
