package buyback

import "context"

// Source produces buyback events, one batch per poll cycle. The two
// operating modes implement it: Executor drives purchases proactively,
// Detector observes the ledger for purchases by a watched address.
// A Source may return already-emitted events alongside an error when a
// cycle fails partway; emitted events are final either way.
type Source interface {
	// Mode identifies the operating mode for logs and metrics.
	Mode() string

	// Poll runs one cycle and returns the events it produced.
	Poll(ctx context.Context) ([]Event, error)
}
