package buyback

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"solana-buyback-relay/internal/observability"
	"solana-buyback-relay/internal/solana"
)

// Detector defaults.
const (
	// DefaultSignatureLimit is the recent-history window requested per poll.
	DefaultSignatureLimit = 10

	// DefaultDustThreshold is the minimum SOL delta for a transaction to
	// count as a purchase. Smaller deltas are fee noise.
	DefaultDustThreshold = 0.001
)

// DetectorConfig configures a Detector.
type DetectorConfig struct {
	// WatchAddress is the address whose activity is monitored.
	WatchAddress string

	// TokenMint is the tracked token.
	TokenMint string

	// SignatureLimit caps signatures fetched per poll (default 10).
	SignatureLimit int

	// DustThreshold is the minimum SOL spent to classify a purchase
	// (default 0.001).
	DustThreshold float64
}

// Detector discovers externally-executed purchases against a watched
// address by polling its signature history.
//
// Classification is a heuristic: a transaction counts as a buyback iff the
// watched address spent more than the dust threshold of SOL and received a
// positive amount of the tracked token. Purchases bundled with other
// transfers can be missed, and non-swap transactions matching the pattern
// can be counted; this imprecision is accepted.
type Detector struct {
	rpc solana.RPCClient
	cfg DetectorConfig
	log zerolog.Logger

	seen   *SeenSet
	seenMu sync.Mutex // Poll runs on the scheduler goroutine, SeenCount on HTTP handlers
}

// NewDetector creates a detector for the watched address.
func NewDetector(rpc solana.RPCClient, cfg DetectorConfig, log zerolog.Logger) *Detector {
	if cfg.SignatureLimit <= 0 {
		cfg.SignatureLimit = DefaultSignatureLimit
	}
	if cfg.DustThreshold <= 0 {
		cfg.DustThreshold = DefaultDustThreshold
	}
	return &Detector{
		rpc:  rpc,
		cfg:  cfg,
		seen: NewSeenSet(),
		log:  log.With().Str("component", "detector").Logger(),
	}
}

// Mode identifies the operating mode.
func (d *Detector) Mode() string { return "detector" }

// Compile-time interface check.
var _ Source = (*Detector)(nil)

// Poll runs one detection cycle. Signatures are processed oldest first so
// totals accumulate in event order. Events already emitted are returned
// alongside any error from a partial cycle.
func (d *Detector) Poll(ctx context.Context) ([]Event, error) {
	sigs, err := d.rpc.GetSignaturesForAddress(ctx, d.cfg.WatchAddress, &solana.SignaturesOpts{
		Limit: d.cfg.SignatureLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("get signatures: %w", err)
	}

	var events []Event

	// RPC returns newest first; walk backwards for chronological order.
	for i := len(sigs) - 1; i >= 0; i-- {
		info := sigs[i]

		if d.seenContains(info.Signature) {
			continue
		}
		if info.Err != nil {
			// Failed on chain; never worth fetching detail.
			d.seenAdd(info.Signature)
			continue
		}

		ev, err := d.inspect(ctx, info.Signature)
		if err != nil {
			return events, fmt.Errorf("inspect %s: %w", info.Signature, err)
		}

		if ev != nil {
			events = append(events, *ev)
		}
	}

	observability.UpdateSeenSignatures(d.SeenCount())
	return events, nil
}

// inspect fetches transaction detail and classifies it. Returns nil for
// transactions that do not match the purchase pattern. The signature is
// marked seen on any successful fetch, so detail is not re-fetched on
// subsequent cycles regardless of classification.
func (d *Detector) inspect(ctx context.Context, signature string) (*Event, error) {
	tx, err := d.rpc.GetTransaction(ctx, signature)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		// Not visible yet; retry next cycle.
		return nil, nil
	}

	d.seenAdd(signature)

	if tx.Failed() || tx.Meta == nil || tx.Message == nil {
		return nil, nil
	}

	solSpent := d.nativeDelta(tx)
	tokensReceived := d.tokenDelta(tx)

	if solSpent <= d.cfg.DustThreshold || tokensReceived <= 0 {
		return nil, nil
	}

	d.log.Info().
		Str("signature", signature).
		Float64("sol_spent", solSpent).
		Float64("tokens_received", tokensReceived).
		Msg("buyback detected")

	return &Event{
		TransactionID:  signature,
		SolSpent:       solSpent,
		TokensReceived: tokensReceived,
	}, nil
}

// nativeDelta computes SOL spent by the watched address: pre minus post
// balance at its account index, in SOL.
func (d *Detector) nativeDelta(tx *solana.Transaction) float64 {
	idx := -1
	for i, key := range tx.Message.AccountKeys {
		if key == d.cfg.WatchAddress {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return 0
	}

	pre := tx.Meta.PreBalances[idx]
	post := tx.Meta.PostBalances[idx]
	if post >= pre {
		return 0
	}
	return float64(pre-post) / LamportsPerSOL
}

// tokenDelta computes tracked-token received by the watched address:
// post minus pre uiAmount across its token accounts for the tracked mint.
func (d *Detector) tokenDelta(tx *solana.Transaction) float64 {
	var pre, post float64
	for _, b := range tx.Meta.PreTokenBalances {
		if b.Mint == d.cfg.TokenMint && b.Owner == d.cfg.WatchAddress {
			pre += b.UIAmount
		}
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint == d.cfg.TokenMint && b.Owner == d.cfg.WatchAddress {
			post += b.UIAmount
		}
	}
	return post - pre
}

func (d *Detector) seenContains(signature string) bool {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	return d.seen.Contains(signature)
}

func (d *Detector) seenAdd(signature string) {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	d.seen.Add(signature)
}

// SeenCount returns the number of retained signatures, for /status.
func (d *Detector) SeenCount() int {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	return d.seen.Len()
}
