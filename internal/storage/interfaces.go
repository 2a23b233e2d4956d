// Package storage defines the buyback audit journal and its errors.
package storage

import (
	"context"
	"time"
)

// BuybackRecord is one journaled buyback event.
type BuybackRecord struct {
	// Signature is the transaction signature, the primary key.
	Signature string

	// Mode is the operating mode that produced the event.
	Mode string

	// SolSpent is the SOL amount spent on the purchase.
	SolSpent float64

	// TokensReceived is the token amount acquired.
	TokensReceived float64

	// CreatedAt is set by the store on insert.
	CreatedAt time.Time
}

// BuybackJournal is an append-only audit record of emitted events. Writes
// are best-effort from the pipeline's point of view: the totals and the
// broadcast never depend on a journal read.
type BuybackJournal interface {
	// Insert appends a record. Returns ErrDuplicateKey if the signature
	// is already journaled.
	Insert(ctx context.Context, rec *BuybackRecord) error

	// GetBySignature retrieves a record. Returns ErrNotFound if absent.
	GetBySignature(ctx context.Context, signature string) (*BuybackRecord, error)

	// List retrieves the most recent records, newest first.
	List(ctx context.Context, limit int) ([]*BuybackRecord, error)

	// Count returns the number of journaled records.
	Count(ctx context.Context) (int64, error)
}
