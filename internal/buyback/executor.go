package buyback

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"solana-buyback-relay/internal/jupiter"
	"solana-buyback-relay/internal/solana"
	"solana-buyback-relay/internal/wallet"
)

// Executor defaults, matching the production bot's parameters.
const (
	DefaultSpendSOL       = 0.01
	DefaultFeeReserveSOL  = 0.005
	DefaultSlippageBps    = 100
	DefaultTokenDecimals  = 6
	DefaultConfirmTimeout = 60 * time.Second
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// TokenMint is the token being accumulated.
	TokenMint string

	// SpendSOL is the fixed SOL amount spent per buyback (default 0.01).
	SpendSOL float64

	// FeeReserveSOL is kept back for transaction fees (default 0.005).
	FeeReserveSOL float64

	// SlippageBps is the quote slippage tolerance (default 100).
	SlippageBps int

	// TokenDecimals scales the quoted out-amount (default 6).
	TokenDecimals int

	// ConfirmTimeout bounds the wait for on-chain confirmation
	// (default 60s).
	ConfirmTimeout time.Duration
}

// Executor proactively spends a fixed amount of SOL to acquire the tracked
// token on every cycle where sufficient balance exists.
type Executor struct {
	rpc    solana.RPCClient
	quoter jupiter.Quoter
	wallet *wallet.Wallet
	cfg    ExecutorConfig
	log    zerolog.Logger
}

// NewExecutor creates an executor spending from the held wallet.
func NewExecutor(rpc solana.RPCClient, quoter jupiter.Quoter, w *wallet.Wallet, cfg ExecutorConfig, log zerolog.Logger) *Executor {
	if cfg.SpendSOL <= 0 {
		cfg.SpendSOL = DefaultSpendSOL
	}
	if cfg.FeeReserveSOL <= 0 {
		cfg.FeeReserveSOL = DefaultFeeReserveSOL
	}
	if cfg.SlippageBps <= 0 {
		cfg.SlippageBps = DefaultSlippageBps
	}
	if cfg.TokenDecimals <= 0 {
		cfg.TokenDecimals = DefaultTokenDecimals
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Executor{
		rpc:    rpc,
		quoter: quoter,
		wallet: w,
		cfg:    cfg,
		log:    log.With().Str("component", "executor").Logger(),
	}
}

// Mode identifies the operating mode.
func (e *Executor) Mode() string { return "actor" }

// Compile-time interface check.
var _ Source = (*Executor)(nil)

// Poll runs one buyback cycle. An insufficient balance skips the cycle and
// is not an error; any failure from quote through confirmation aborts the
// cycle with no event. A sent-but-unconfirmed transaction counts as failed
// for accounting purposes; no reconciliation is attempted.
func (e *Executor) Poll(ctx context.Context) ([]Event, error) {
	lamports, err := e.rpc.GetBalance(ctx, e.wallet.Address())
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	balance := float64(lamports) / LamportsPerSOL
	minRequired := e.cfg.SpendSOL + e.cfg.FeeReserveSOL
	if balance < minRequired {
		e.log.Info().
			Float64("balance", balance).
			Float64("required", minRequired).
			Msg("insufficient balance, skipping cycle")
		return nil, nil
	}

	ev, err := e.execute(ctx)
	if err != nil {
		return nil, err
	}
	return []Event{*ev}, nil
}

// execute performs quote, build, sign, submit, confirm for one buyback.
func (e *Executor) execute(ctx context.Context) (*Event, error) {
	spendLamports := uint64(math.Floor(e.cfg.SpendSOL * LamportsPerSOL))

	quote, err := e.quoter.GetQuote(ctx, WrappedSOLMint, e.cfg.TokenMint, spendLamports, e.cfg.SlippageBps)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	tokensReceived := float64(quote.OutAmount) / math.Pow10(e.cfg.TokenDecimals)
	e.log.Info().
		Float64("sol_in", e.cfg.SpendSOL).
		Float64("tokens_out", tokensReceived).
		Msg("quote received")

	rawTx, err := e.quoter.BuildSwapTransaction(ctx, quote, e.wallet.Address())
	if err != nil {
		return nil, fmt.Errorf("build swap transaction: %w", err)
	}

	signedTx, err := e.wallet.SignTransaction(rawTx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	signature, err := e.rpc.SendTransaction(ctx, base64.StdEncoding.EncodeToString(signedTx))
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	if err := e.rpc.ConfirmTransaction(confirmCtx, signature); err != nil {
		return nil, fmt.Errorf("confirm %s: %w", signature, err)
	}

	e.log.Info().
		Str("signature", signature).
		Float64("sol_spent", e.cfg.SpendSOL).
		Float64("tokens_received", tokensReceived).
		Msg("buyback executed")

	return &Event{
		TransactionID:  signature,
		SolSpent:       e.cfg.SpendSOL,
		TokensReceived: tokensReceived,
	}, nil
}
