package stub

import (
	"context"
	"errors"
	"sync"

	"solana-buyback-relay/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Balances     map[string]uint64
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo

	// Errors injected per method; nil means success.
	BalanceErr    error
	SignaturesErr error
	TxErr         error
	SendErr       error
	ConfirmErr    error

	// SendResult is the signature returned by SendTransaction.
	SendResult string

	// Sent records every payload passed to SendTransaction.
	Sent []string

	// Confirmed records every signature passed to ConfirmTransaction.
	Confirmed []string
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances:     make(map[string]uint64),
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
	}
}

// GetBalance returns the configured balance for an address.
func (c *RPCClient) GetBalance(_ context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BalanceErr != nil {
		return 0, c.BalanceErr
	}
	return c.Balances[address], nil
}

// GetSignaturesForAddress returns configured signatures, newest first.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SignaturesErr != nil {
		return nil, c.SignaturesErr
	}

	sigs := c.Signatures[address]
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}
	return sigs, nil
}

// GetTransaction returns a configured transaction, or nil if absent.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TxErr != nil {
		return nil, c.TxErr
	}
	return c.Transactions[signature], nil
}

// SendTransaction records the payload and returns the configured signature.
func (c *RPCClient) SendTransaction(_ context.Context, signedTxBase64 string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, signedTxBase64)
	if c.SendResult == "" {
		return "", errors.New("stub: no send result configured")
	}
	return c.SendResult, nil
}

// ConfirmTransaction records the signature and returns the injected error.
func (c *RPCClient) ConfirmTransaction(_ context.Context, signature string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConfirmErr != nil {
		return c.ConfirmErr
	}
	c.Confirmed = append(c.Confirmed, signature)
	return nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)
