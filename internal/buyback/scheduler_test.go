package buyback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// stubSource implements Source for testing.
type stubSource struct {
	mu     sync.Mutex
	events [][]Event
	errs   []error
	polls  int
	block  chan struct{} // when set, Poll blocks until closed
}

func (s *stubSource) Mode() string { return "test" }

func (s *stubSource) Poll(_ context.Context) ([]Event, error) {
	s.mu.Lock()
	i := s.polls
	s.polls++
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}

	var evs []Event
	var err error
	if i < len(s.events) {
		evs = s.events[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return evs, err
}

func (s *stubSource) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// recordingBroadcaster captures broadcast calls.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []Event
	stats  []Stats
}

func (b *recordingBroadcaster) BroadcastEvent(ev Event, stats Stats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	b.stats = append(b.stats, stats)
}

// recordingJournal captures journal writes, optionally failing.
type recordingJournal struct {
	mu      sync.Mutex
	records []Event
	err     error
}

func (j *recordingJournal) Record(_ context.Context, ev Event, _ string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, ev)
	return nil
}

func TestScheduler_RunCycle_Dispatch(t *testing.T) {
	src := &stubSource{events: [][]Event{{
		{TransactionID: "sig1", SolSpent: 0.01, TokensReceived: 1000},
		{TransactionID: "sig2", SolSpent: 0.01, TokensReceived: 2000},
	}}}
	tracker := NewTracker()
	broadcast := &recordingBroadcaster{}
	journal := &recordingJournal{}

	s := NewScheduler(src, tracker, journal, broadcast, time.Minute, 0, zerolog.Nop())
	s.RunCycle(context.Background())

	require.Len(t, broadcast.events, 2)
	require.Equal(t, "sig1", broadcast.events[0].TransactionID)
	require.Equal(t, "sig2", broadcast.events[1].TransactionID)

	// Each broadcast carries the snapshot taken right after its event
	// was applied.
	require.Equal(t, int64(1), broadcast.stats[0].TotalBuybacks)
	require.Equal(t, int64(2), broadcast.stats[1].TotalBuybacks)
	require.InDelta(t, 3000, broadcast.stats[1].TotalTokens, 1e-9)

	require.Len(t, journal.records, 2)

	cycles := s.Cycles()
	require.Equal(t, int64(1), cycles.Cycles)
	require.Equal(t, int64(0), cycles.FailedCycles)
}

func TestScheduler_RunCycle_FailureCounted(t *testing.T) {
	src := &stubSource{errs: []error{errors.New("rpc down")}}
	s := NewScheduler(src, NewTracker(), nil, nil, time.Minute, 0, zerolog.Nop())

	s.RunCycle(context.Background())

	cycles := s.Cycles()
	require.Equal(t, int64(1), cycles.Cycles)
	require.Equal(t, int64(1), cycles.FailedCycles)
}

func TestScheduler_RunCycle_PartialEventsDispatched(t *testing.T) {
	// One event produced before the cycle failed: it still flows through.
	src := &stubSource{
		events: [][]Event{{{TransactionID: "sig1", SolSpent: 0.01, TokensReceived: 500}}},
		errs:   []error{errors.New("inspect failed")},
	}
	tracker := NewTracker()
	broadcast := &recordingBroadcaster{}

	s := NewScheduler(src, tracker, nil, broadcast, time.Minute, 0, zerolog.Nop())
	s.RunCycle(context.Background())

	require.Len(t, broadcast.events, 1)
	require.Equal(t, int64(1), tracker.Snapshot().TotalBuybacks)
	require.Equal(t, int64(1), s.Cycles().FailedCycles)
}

func TestScheduler_RunCycle_JournalFailureDoesNotBlockBroadcast(t *testing.T) {
	src := &stubSource{events: [][]Event{{{TransactionID: "sig1", SolSpent: 0.01, TokensReceived: 500}}}}
	broadcast := &recordingBroadcaster{}
	journal := &recordingJournal{err: errors.New("db down")}

	s := NewScheduler(src, NewTracker(), journal, broadcast, time.Minute, 0, zerolog.Nop())
	s.RunCycle(context.Background())

	require.Len(t, broadcast.events, 1)
	require.Equal(t, int64(0), s.Cycles().FailedCycles)
}

func TestScheduler_RunCycle_NonReentrant(t *testing.T) {
	block := make(chan struct{})
	src := &stubSource{block: block}

	s := NewScheduler(src, NewTracker(), nil, nil, time.Minute, 0, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		s.RunCycle(context.Background())
		close(done)
	}()

	// Wait for the first cycle to enter Poll.
	require.Eventually(t, func() bool {
		return src.pollCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Overlapping invocation is skipped, not queued.
	s.RunCycle(context.Background())
	require.Equal(t, 1, src.pollCount())
	require.Equal(t, int64(1), s.Cycles().Skipped)

	close(block)
	<-done
	require.Equal(t, int64(1), s.Cycles().Cycles)
}

func TestScheduler_Run_WarmupAndTicks(t *testing.T) {
	src := &stubSource{}
	s := NewScheduler(src, NewTracker(), nil, nil, 20*time.Millisecond, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return src.pollCount() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestScheduler_Run_StopsDuringWarmup(t *testing.T) {
	src := &stubSource{}
	s := NewScheduler(src, NewTracker(), nil, nil, time.Minute, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop during warmup")
	}
	require.Equal(t, 0, src.pollCount())
}
