// Package memory provides in-memory storage implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-buyback-relay/internal/storage"
)

// BuybackJournal is an in-memory implementation of storage.BuybackJournal.
type BuybackJournal struct {
	mu    sync.RWMutex
	data  map[string]*storage.BuybackRecord
	order []string // insertion order, oldest first
}

// NewBuybackJournal creates a new in-memory journal.
func NewBuybackJournal() *BuybackJournal {
	return &BuybackJournal{
		data: make(map[string]*storage.BuybackRecord),
	}
}

// Compile-time interface check.
var _ storage.BuybackJournal = (*BuybackJournal)(nil)

// Insert appends a record. Returns ErrDuplicateKey if the signature exists.
func (j *BuybackJournal) Insert(_ context.Context, rec *storage.BuybackRecord) error {
	if rec == nil || rec.Signature == "" {
		return storage.ErrInvalidInput
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.data[rec.Signature]; exists {
		return storage.ErrDuplicateKey
	}

	dup := *rec
	if dup.CreatedAt.IsZero() {
		dup.CreatedAt = time.Now().UTC()
	}
	j.data[rec.Signature] = &dup
	j.order = append(j.order, rec.Signature)
	return nil
}

// GetBySignature retrieves a record. Returns ErrNotFound if absent.
func (j *BuybackJournal) GetBySignature(_ context.Context, signature string) (*storage.BuybackRecord, error) {
	if signature == "" {
		return nil, storage.ErrInvalidInput
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	rec, ok := j.data[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}

	dup := *rec
	return &dup, nil
}

// List retrieves the most recent records, newest first.
func (j *BuybackJournal) List(_ context.Context, limit int) ([]*storage.BuybackRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	n := len(j.order)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*storage.BuybackRecord, 0, n)
	for i := len(j.order) - 1; i >= 0 && len(out) < n; i-- {
		dup := *j.data[j.order[i]]
		out = append(out, &dup)
	}

	// Insertion order already matches creation order; keep the sort as a
	// stable tiebreak on CreatedAt for records inserted with explicit
	// timestamps.
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}

// Count returns the number of journaled records.
func (j *BuybackJournal) Count(_ context.Context) (int64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return int64(len(j.order)), nil
}
