package buyback

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"solana-buyback-relay/internal/solana"
	"solana-buyback-relay/internal/solana/stub"
)

const (
	testWatchAddress = "Watch1111111111111111111111111111111111111"
	testTokenMint    = "Mint11111111111111111111111111111111111111"
)

func newTestDetector(rpc solana.RPCClient) *Detector {
	return NewDetector(rpc, DetectorConfig{
		WatchAddress: testWatchAddress,
		TokenMint:    testTokenMint,
	}, zerolog.Nop())
}

// purchaseTx builds a transaction where the watched address spends SOL and
// receives tokens.
func purchaseTx(signature string, preLamports, postLamports uint64, preTokens, postTokens float64) *solana.Transaction {
	return &solana.Transaction{
		Signature: signature,
		Meta: &solana.TransactionMeta{
			PreBalances:  []uint64{preLamports, 10_000},
			PostBalances: []uint64{postLamports, 10_000},
			PreTokenBalances: []solana.TokenBalance{
				{AccountIndex: 2, Mint: testTokenMint, Owner: testWatchAddress, UIAmount: preTokens},
			},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 2, Mint: testTokenMint, Owner: testWatchAddress, UIAmount: postTokens},
			},
		},
		Message: &solana.TransactionMessage{
			AccountKeys: []string{testWatchAddress, "Other111"},
		},
	}
}

func TestDetector_Poll_DetectsPurchase(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{{Signature: "sig1"}})
	rpc.AddTransaction(purchaseTx("sig1", 5_000_000_000, 4_989_000_000, 0, 1000))

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "sig1", events[0].TransactionID)
	require.InDelta(t, 0.011, events[0].SolSpent, 1e-12)
	require.InDelta(t, 1000, events[0].TokensReceived, 1e-9)
}

func TestDetector_Poll_Idempotent(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{{Signature: "sig1"}})
	rpc.AddTransaction(purchaseTx("sig1", 5_000_000_000, 4_989_000_000, 0, 1000))

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Second poll over the same history emits nothing.
	events, err = d.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
	require.Equal(t, 1, d.SeenCount())
}

func TestDetector_Poll_ChronologicalOrder(t *testing.T) {
	rpc := stub.NewRPCClient()
	// Newest first, as the RPC returns them.
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{
		{Signature: "sig2"},
		{Signature: "sig1"},
	})
	rpc.AddTransaction(purchaseTx("sig1", 5_000_000_000, 4_989_000_000, 0, 1000))
	rpc.AddTransaction(purchaseTx("sig2", 4_989_000_000, 4_978_000_000, 1000, 2000))

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "sig1", events[0].TransactionID)
	require.Equal(t, "sig2", events[1].TransactionID)
}

func TestDetector_Poll_SkipsFailedSignature(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{
		{Signature: "sig1", Err: map[string]interface{}{"InstructionError": []interface{}{}}},
	})

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
	// Marked seen without fetching detail.
	require.Equal(t, 1, d.SeenCount())
}

func TestDetector_Poll_IgnoresDust(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{{Signature: "sig1"}})
	// 0.0005 SOL spent, below the 0.001 dust threshold.
	rpc.AddTransaction(purchaseTx("sig1", 5_000_000_000, 4_999_500_000, 0, 100))

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
	require.Equal(t, 1, d.SeenCount())
}

func TestDetector_Poll_IgnoresWithoutTokenDelta(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{{Signature: "sig1"}})
	// SOL spent but no tokens received (plain transfer).
	rpc.AddTransaction(purchaseTx("sig1", 5_000_000_000, 4_900_000_000, 500, 500))

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestDetector_Poll_IgnoresOtherMint(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{{Signature: "sig1"}})

	tx := purchaseTx("sig1", 5_000_000_000, 4_989_000_000, 0, 1000)
	tx.Meta.PreTokenBalances[0].Mint = "OtherMint"
	tx.Meta.PostTokenBalances[0].Mint = "OtherMint"
	rpc.AddTransaction(tx)

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestDetector_Poll_NotYetVisibleRetries(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{{Signature: "sig1"}})
	// No transaction detail configured: GetTransaction returns nil.

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
	// Not marked seen; the next cycle fetches it again.
	require.Equal(t, 0, d.SeenCount())

	rpc.AddTransaction(purchaseTx("sig1", 5_000_000_000, 4_989_000_000, 0, 1000))

	events, err = d.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestDetector_Poll_SignaturesError(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SignaturesErr = errors.New("rpc unavailable")

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.Error(t, err)
	require.Empty(t, events)
}

func TestDetector_Poll_PartialCycle(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{
		{Signature: "sig2"},
		{Signature: "sig1"},
	})
	rpc.AddTransaction(purchaseTx("sig1", 5_000_000_000, 4_989_000_000, 0, 1000))

	d := newTestDetector(rpc)

	// First poll processes sig1, then fails fetching sig2.
	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	rpc.TxErr = errors.New("rpc timeout")
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{
		{Signature: "sig3"},
		{Signature: "sig2"},
		{Signature: "sig1"},
	})

	events, err = d.Poll(context.Background())
	require.Error(t, err)
	require.Empty(t, events)

	// Already-counted events are not re-emitted after recovery.
	rpc.TxErr = nil
	rpc.AddTransaction(purchaseTx("sig2", 4_989_000_000, 4_978_000_000, 1000, 2000))
	rpc.AddTransaction(purchaseTx("sig3", 4_978_000_000, 4_967_000_000, 2000, 3000))

	events, err = d.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "sig2", events[0].TransactionID)
	require.Equal(t, "sig3", events[1].TransactionID)
}

func TestDetector_Poll_WatchAddressNotInKeys(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(testWatchAddress, []solana.SignatureInfo{{Signature: "sig1"}})

	tx := purchaseTx("sig1", 5_000_000_000, 4_989_000_000, 0, 1000)
	tx.Message.AccountKeys = []string{"Other111", "Other222"}
	rpc.AddTransaction(tx)

	d := newTestDetector(rpc)

	events, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Empty(t, events)
}
