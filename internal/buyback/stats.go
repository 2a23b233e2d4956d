package buyback

import "sync"

// Stats holds the running buyback totals. Monotonically non-decreasing;
// reset only on process restart.
type Stats struct {
	TotalBuybacks int64   `json:"totalBuybacks"`
	TotalSol      float64 `json:"totalSol"`
	TotalTokens   float64 `json:"totalTokens"`
}

// Apply folds one event into the totals. Pure reducer; the caller owns
// the resulting value.
func Apply(s Stats, ev Event) Stats {
	s.TotalBuybacks++
	s.TotalSol += ev.SolSpent
	s.TotalTokens += ev.TokensReceived
	return s
}

// Tracker is the single owner of the running Stats. Apply and Snapshot
// are safe to call from the scheduler and connection goroutines.
type Tracker struct {
	mu    sync.Mutex
	stats Stats
}

// NewTracker creates a tracker with zeroed totals.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Apply folds an event into the totals and returns the updated snapshot.
// There is no rollback path: once applied, an event's contribution is
// permanent even if downstream broadcast fails.
func (t *Tracker) Apply(ev Event) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats = Apply(t.stats, ev)
	return t.stats
}

// Snapshot returns the current totals.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
