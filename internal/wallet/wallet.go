// Package wallet loads the held keypair and signs swap transactions.
package wallet

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Errors returned by key loading and signing.
var (
	ErrInvalidKeyLength = errors.New("secret key must decode to 64 bytes")
	ErrPubkeyOffCurve   = errors.New("public key is not on the ed25519 curve")
	ErrMalformedTx      = errors.New("malformed transaction payload")
)

// Wallet holds the ed25519 keypair used to sign buyback swaps.
type Wallet struct {
	priv    ed25519.PrivateKey
	address string
}

// Load decodes a base58-encoded 64-byte Solana secret key.
func Load(secretKeyBase58 string) (*Wallet, error) {
	raw, err := base58.Decode(secretKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeyLength
	}

	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)

	if !isOnCurve(pub) {
		return nil, ErrPubkeyOffCurve
	}

	return &Wallet{
		priv:    priv,
		address: base58.Encode(pub),
	}, nil
}

// Address returns the base58 public key of the wallet.
func (w *Wallet) Address() string {
	return w.address
}

// SignTransaction signs a serialized Solana transaction in place and returns
// the signed payload. The payload layout is a compact-u16 signature count,
// the signature slots, then the message; the wallet is expected to be the
// fee payer, so its signature goes into slot 0.
func (w *Wallet) SignTransaction(tx []byte) ([]byte, error) {
	numSigs, offset, err := decodeCompactU16(tx)
	if err != nil {
		return nil, err
	}
	if numSigs == 0 {
		return nil, ErrMalformedTx
	}

	msgStart := offset + numSigs*ed25519.SignatureSize
	if msgStart >= len(tx) {
		return nil, ErrMalformedTx
	}

	sig := ed25519.Sign(w.priv, tx[msgStart:])

	signed := make([]byte, len(tx))
	copy(signed, tx)
	copy(signed[offset:offset+ed25519.SignatureSize], sig)

	return signed, nil
}

// Verify checks a signature produced by this wallet over message.
func (w *Wallet) Verify(message, sig []byte) bool {
	return ed25519.Verify(w.priv.Public().(ed25519.PublicKey), message, sig)
}

// isOnCurve reports whether a 32-byte point decodes on the ed25519 curve.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// decodeCompactU16 decodes Solana's compact-u16 length prefix.
// Returns the value and the number of bytes consumed.
func decodeCompactU16(data []byte) (int, int, error) {
	var value, shift uint
	for i := 0; i < 3; i++ {
		if i >= len(data) {
			return 0, 0, ErrMalformedTx
		}
		b := uint(data[i])
		value |= (b & 0x7f) << shift
		if b&0x80 == 0 {
			return int(value), i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrMalformedTx
}
