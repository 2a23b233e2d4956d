package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-buyback-relay/internal/storage"
)

// BuybackJournal implements storage.BuybackJournal using PostgreSQL.
type BuybackJournal struct {
	pool *Pool
}

// NewBuybackJournal creates a new BuybackJournal.
func NewBuybackJournal(pool *Pool) *BuybackJournal {
	return &BuybackJournal{pool: pool}
}

// Compile-time interface check.
var _ storage.BuybackJournal = (*BuybackJournal)(nil)

// Insert appends a record. Returns ErrDuplicateKey if the signature exists.
func (j *BuybackJournal) Insert(ctx context.Context, rec *storage.BuybackRecord) error {
	if rec == nil || rec.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO buyback_events (signature, mode, sol_spent, tokens_received)
		VALUES ($1, $2, $3, $4)
	`

	_, err := j.pool.Exec(ctx, query,
		rec.Signature,
		rec.Mode,
		rec.SolSpent,
		rec.TokensReceived,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert buyback event: %w", err)
	}
	return nil
}

// GetBySignature retrieves a record. Returns ErrNotFound if absent.
func (j *BuybackJournal) GetBySignature(ctx context.Context, signature string) (*storage.BuybackRecord, error) {
	if signature == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT signature, mode, sol_spent, tokens_received, created_at
		FROM buyback_events
		WHERE signature = $1
	`

	var rec storage.BuybackRecord
	err := j.pool.QueryRow(ctx, query, signature).Scan(
		&rec.Signature,
		&rec.Mode,
		&rec.SolSpent,
		&rec.TokensReceived,
		&rec.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get buyback event: %w", err)
	}
	return &rec, nil
}

// List retrieves the most recent records, newest first.
func (j *BuybackJournal) List(ctx context.Context, limit int) ([]*storage.BuybackRecord, error) {
	query := `
		SELECT signature, mode, sol_spent, tokens_received, created_at
		FROM buyback_events
		ORDER BY created_at DESC, signature DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list buyback events: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count returns the number of journaled records.
func (j *BuybackJournal) Count(ctx context.Context) (int64, error) {
	var count int64
	err := j.pool.QueryRow(ctx, `SELECT COUNT(*) FROM buyback_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count buyback events: %w", err)
	}
	return count, nil
}

// scanRecords scans multiple rows into a slice of BuybackRecord.
func scanRecords(rows pgx.Rows) ([]*storage.BuybackRecord, error) {
	var recs []*storage.BuybackRecord

	for rows.Next() {
		var rec storage.BuybackRecord

		err := rows.Scan(
			&rec.Signature,
			&rec.Mode,
			&rec.SolSpent,
			&rec.TokensReceived,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan buyback event row: %w", err)
		}

		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buyback event rows: %w", err)
	}

	return recs, nil
}
