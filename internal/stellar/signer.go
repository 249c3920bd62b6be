package stellar

import (
	"fmt"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"
)

// SignedEnvelope is a signed transaction ready for submission.
type SignedEnvelope struct {
	XDR  string
	Hash string
}

// Signer signs transactions for a single network.
type Signer struct {
	networkPassphrase string
}

func NewSigner(networkPassphrase string) *Signer {
	return &Signer{networkPassphrase: networkPassphrase}
}

// Sign signs tx with the secret of its source account.
func (s *Signer) Sign(tx *txnbuild.Transaction, secret string) (*SignedEnvelope, error) {
	kp, err := keypair.ParseFull(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid secret: %w", err)
	}
	if kp.Address() != tx.SourceAccount().AccountID {
		return nil, fmt.Errorf("secret does not belong to source account %s", tx.SourceAccount().AccountID)
	}

	// Sign returns a new *Transaction
	tx, err = tx.Sign(s.networkPassphrase, kp)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	hashHex, err := tx.HashHex(s.networkPassphrase)
	if err != nil {
		return nil, fmt.Errorf("compute transaction hash: %w", err)
	}

	signedXDR, err := tx.Base64()
	if err != nil {
		return nil, fmt.Errorf("encode signed transaction: %w", err)
	}

	return &SignedEnvelope{XDR: signedXDR, Hash: hashHex}, nil
}

// HashEnvelope returns the network hash of an encoded envelope.
func (s *Signer) HashEnvelope(envelopeXDR string) (string, error) {
	genericTx, err := txnbuild.TransactionFromXDR(envelopeXDR)
	if err != nil {
		return "", fmt.Errorf("parse transaction XDR: %w", err)
	}
	if fb, ok := genericTx.FeeBump(); ok {
		return fb.HashHex(s.networkPassphrase)
	}
	tx, ok := genericTx.Transaction()
	if !ok {
		return "", fmt.Errorf("unsupported envelope type")
	}
	return tx.HashHex(s.networkPassphrase)
}
