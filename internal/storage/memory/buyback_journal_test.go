package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solana-buyback-relay/internal/storage"
)

func TestBuybackJournal_InsertAndGet(t *testing.T) {
	j := NewBuybackJournal()
	ctx := context.Background()

	rec := &storage.BuybackRecord{
		Signature:      "sig1",
		Mode:           "actor",
		SolSpent:       0.01,
		TokensReceived: 1500,
	}
	require.NoError(t, j.Insert(ctx, rec))

	got, err := j.GetBySignature(ctx, "sig1")
	require.NoError(t, err)
	require.Equal(t, "sig1", got.Signature)
	require.Equal(t, "actor", got.Mode)
	require.InDelta(t, 0.01, got.SolSpent, 1e-12)
	require.False(t, got.CreatedAt.IsZero())
}

func TestBuybackJournal_DuplicateKey(t *testing.T) {
	j := NewBuybackJournal()
	ctx := context.Background()

	rec := &storage.BuybackRecord{Signature: "sig1", Mode: "actor"}
	require.NoError(t, j.Insert(ctx, rec))
	require.ErrorIs(t, j.Insert(ctx, rec), storage.ErrDuplicateKey)
}

func TestBuybackJournal_NotFound(t *testing.T) {
	j := NewBuybackJournal()

	_, err := j.GetBySignature(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBuybackJournal_InvalidInput(t *testing.T) {
	j := NewBuybackJournal()
	ctx := context.Background()

	require.ErrorIs(t, j.Insert(ctx, nil), storage.ErrInvalidInput)
	require.ErrorIs(t, j.Insert(ctx, &storage.BuybackRecord{}), storage.ErrInvalidInput)

	_, err := j.GetBySignature(ctx, "")
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestBuybackJournal_ListNewestFirst(t *testing.T) {
	j := NewBuybackJournal()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Insert(ctx, &storage.BuybackRecord{
			Signature: fmt.Sprintf("sig%d", i),
			Mode:      "detector",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	recs, err := j.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "sig4", recs[0].Signature)
	require.Equal(t, "sig3", recs[1].Signature)
	require.Equal(t, "sig2", recs[2].Signature)

	count, err := j.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
}

func TestBuybackJournal_InsertCopies(t *testing.T) {
	j := NewBuybackJournal()
	ctx := context.Background()

	rec := &storage.BuybackRecord{Signature: "sig1", SolSpent: 0.01}
	require.NoError(t, j.Insert(ctx, rec))

	// Mutating the caller's record does not change the stored copy.
	rec.SolSpent = 99

	got, err := j.GetBySignature(ctx, "sig1")
	require.NoError(t, err)
	require.InDelta(t, 0.01, got.SolSpent, 1e-12)
}
