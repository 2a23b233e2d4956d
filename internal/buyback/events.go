// Package buyback implements the polling-and-fan-out buyback pipeline:
// a purchase source (executing or detecting buybacks), running totals,
// and the scheduler that drives one poll cycle per interval.
package buyback

// WrappedSOLMint is the mint address of wrapped SOL, the input asset of
// every buyback swap.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// LamportsPerSOL converts between lamports and SOL.
const LamportsPerSOL = 1_000_000_000

// Event is one executed or detected buyback. Immutable once created;
// consumed once by the stats tracker and once by the broadcast hub.
type Event struct {
	TransactionID  string  `json:"transactionId"`
	SolSpent       float64 `json:"solSpent"`
	TokensReceived float64 `json:"tokensReceived"`
}
