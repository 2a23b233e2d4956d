package buyback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-buyback-relay/internal/observability"
)

// Scheduler defaults.
const (
	DefaultInterval = 20 * time.Second
	DefaultWarmup   = 5 * time.Second
)

// Broadcaster receives each applied event with the totals snapshot taken
// immediately after applying it.
type Broadcaster interface {
	BroadcastEvent(ev Event, stats Stats)
}

// Journal records applied events for audit. Failures are logged and do not
// affect the pipeline.
type Journal interface {
	Record(ctx context.Context, ev Event, mode string) error
}

// CycleStats are cumulative scheduler counters, exposed on /status.
type CycleStats struct {
	Cycles       int64 `json:"cycles"`
	FailedCycles int64 `json:"failedCycles"`
	Skipped      int64 `json:"skippedCycles"`
}

// Scheduler drives the source on a fixed interval and pushes each produced
// event through the tracker, journal and broadcaster in order.
type Scheduler struct {
	source    Source
	tracker   *Tracker
	journal   Journal
	broadcast Broadcaster
	interval  time.Duration
	warmup    time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	running bool
	cycles  CycleStats
}

// NewScheduler wires a source to its downstream consumers. journal and
// broadcast may be nil.
func NewScheduler(source Source, tracker *Tracker, journal Journal, broadcast Broadcaster, interval, warmup time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if warmup < 0 {
		warmup = DefaultWarmup
	}
	return &Scheduler{
		source:    source,
		tracker:   tracker,
		journal:   journal,
		broadcast: broadcast,
		interval:  interval,
		warmup:    warmup,
		log:       log.With().Str("component", "scheduler").Str("mode", source.Mode()).Logger(),
	}
}

// Run blocks until ctx is cancelled, firing one cycle after the warmup delay
// and then one per interval tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().
		Dur("interval", s.interval).
		Dur("warmup", s.warmup).
		Msg("scheduler started")

	if s.warmup > 0 {
		select {
		case <-time.After(s.warmup):
		case <-ctx.Done():
			return
		}
	}
	s.RunCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		}
	}
}

// RunCycle executes one poll cycle. Overlapping invocations are skipped
// rather than queued: a cycle outlasting the interval must not stack
// concurrent polls against the same source.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.cycles.Skipped++
		s.mu.Unlock()
		s.log.Warn().Msg("previous cycle still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	events, err := s.source.Poll(ctx)

	// Events produced before a partial-cycle failure still count.
	for _, ev := range events {
		s.dispatch(ctx, ev)
	}

	s.mu.Lock()
	s.cycles.Cycles++
	if err != nil {
		s.cycles.FailedCycles++
	}
	s.mu.Unlock()

	if err != nil {
		observability.RecordCycle(s.source.Mode(), "error", time.Since(start).Seconds())
		s.log.Error().Err(err).Msg("cycle failed")
		return
	}
	observability.RecordCycle(s.source.Mode(), "success", time.Since(start).Seconds())
}

// dispatch applies one event to the totals, journals it and broadcasts it
// with the post-apply snapshot. Totals are updated before broadcast so a
// client connecting between the two sees consistent numbers.
func (s *Scheduler) dispatch(ctx context.Context, ev Event) {
	stats := s.tracker.Apply(ev)
	observability.RecordBuyback(ev.SolSpent, ev.TokensReceived)

	if s.journal != nil {
		err := s.journal.Record(ctx, ev, s.source.Mode())
		observability.RecordJournalWrite(err)
		if err != nil {
			s.log.Error().Err(err).Str("signature", ev.TransactionID).Msg("journal write failed")
		}
	}

	if s.broadcast != nil {
		s.broadcast.BroadcastEvent(ev, stats)
	}
}

// Cycles returns the cumulative cycle counters.
func (s *Scheduler) Cycles() CycleStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}
