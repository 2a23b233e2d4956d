package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the relay.
type RPCClient interface {
	// GetBalance retrieves the lamport balance of an address.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetSignaturesForAddress retrieves signatures for an address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetTransaction retrieves a transaction by signature.
	// Returns nil if the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// SendTransaction submits a base64-encoded signed transaction and
	// returns its signature.
	SendTransaction(ctx context.Context, signedTxBase64 string) (string, error)

	// ConfirmTransaction blocks until the signature reaches confirmed
	// commitment or ctx expires.
	ConfirmTransaction(ctx context.Context, signature string) error
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	LogMessages       []string
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// TokenBalance is an SPL token balance entry from transaction meta.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	UIAmount     float64
}

// Failed reports whether the ledger flagged the transaction as failed.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}
