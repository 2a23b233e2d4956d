package buyback

// SeenSet retention defaults: once the set exceeds the high-water mark it
// is truncated to the most recent keep entries. This is an unbounded-growth
// guard, not an LRU; the ledger returns a bounded recent-history window per
// poll, so evicting old entries is safe.
const (
	DefaultSeenHighWater = 100
	DefaultSeenKeep      = 50
)

// SeenSet is a bounded set of transaction signatures already processed by
// the detector. Presence guarantees the signature's event has been counted
// exactly once.
type SeenSet struct {
	set       map[string]struct{}
	order     []string // insertion order, oldest first
	highWater int
	keep      int
}

// NewSeenSet creates a SeenSet with the default retention policy.
func NewSeenSet() *SeenSet {
	return NewSeenSetWithRetention(DefaultSeenHighWater, DefaultSeenKeep)
}

// NewSeenSetWithRetention creates a SeenSet with a custom retention policy.
func NewSeenSetWithRetention(highWater, keep int) *SeenSet {
	return &SeenSet{
		set:       make(map[string]struct{}),
		highWater: highWater,
		keep:      keep,
	}
}

// Contains reports whether a signature has been processed.
func (s *SeenSet) Contains(signature string) bool {
	_, ok := s.set[signature]
	return ok
}

// Add marks a signature as processed, truncating to the most recent keep
// entries when the set exceeds the high-water mark.
func (s *SeenSet) Add(signature string) {
	if s.Contains(signature) {
		return
	}

	s.set[signature] = struct{}{}
	s.order = append(s.order, signature)

	if len(s.order) > s.highWater {
		evicted := s.order[:len(s.order)-s.keep]
		for _, sig := range evicted {
			delete(s.set, sig)
		}
		s.order = append([]string(nil), s.order[len(s.order)-s.keep:]...)
	}
}

// Len returns the number of retained signatures.
func (s *SeenSet) Len() int {
	return len(s.order)
}
