package blockchain

import (
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxMessageSize bounds the calldata of a message submission.
const MaxMessageSize = 96 * 1024

// Draft is the unsigned content of a transaction produced by a Builder.
// After Freeze the pipeline no longer reads it.
type Draft struct {
	To    *common.Address
	Value *big.Int
	Data  []byte
	// Signed carries a transaction that arrived pre-signed; freeze and sign
	// are skipped for it.
	Signed *types.Transaction

	TopicID   string
	AccountID string
}

// Builder turns an operation into a Draft for the given sender.
type Builder interface {
	Operation() string
	Build(from common.Address) (*Draft, error)
}

// SubmitMessage posts Message as calldata of a zero-value transaction to
// Topic. The sender nonce becomes the message sequence number.
type SubmitMessage struct {
	Topic   common.Address
	Message []byte
}

func (m *SubmitMessage) Operation() string { return "submit_message" }

func (m *SubmitMessage) Build(common.Address) (*Draft, error) {
	if m.Topic == (common.Address{}) {
		return nil, errors.New("topic id is required")
	}
	if len(m.Message) == 0 {
		return nil, errors.New("message is empty")
	}
	if len(m.Message) > MaxMessageSize {
		return nil, fmt.Errorf("message is %d bytes, limit is %d; offload the payload first", len(m.Message), MaxMessageSize)
	}
	to := m.Topic
	return &Draft{
		To:      &to,
		Value:   new(big.Int),
		Data:    m.Message,
		TopicID: to.Hex(),
	}, nil
}

// AccountAmount is a signed balance delta for one account.
type AccountAmount struct {
	Account common.Address
	Amount  *big.Int
}

// Transfer moves value between exactly two accounts expressed as a negative
// delta for the sender and a positive delta for the recipient.
type Transfer struct {
	Transfers []AccountAmount
}

// NewTransfer builds the deltas for moving amount from one account to another.
func NewTransfer(from, to common.Address, amount *big.Int) *Transfer {
	return &Transfer{Transfers: []AccountAmount{
		{Account: from, Amount: new(big.Int).Neg(amount)},
		{Account: to, Amount: new(big.Int).Set(amount)},
	}}
}

// ValidateNetZero checks that the deltas sum to exactly zero.
func (t *Transfer) ValidateNetZero() error {
	sum := new(big.Int)
	for _, aa := range t.Transfers {
		if aa.Amount == nil {
			return fmt.Errorf("missing amount for %s", aa.Account.Hex())
		}
		sum.Add(sum, aa.Amount)
	}
	if sum.Sign() != 0 {
		return fmt.Errorf("transfer deltas sum to %s, want 0", sum)
	}
	return nil
}

func (t *Transfer) Operation() string { return "transfer" }

func (t *Transfer) Build(from common.Address) (*Draft, error) {
	if len(t.Transfers) != 2 {
		return nil, fmt.Errorf("transfer needs exactly 2 deltas, got %d", len(t.Transfers))
	}
	if err := t.ValidateNetZero(); err != nil {
		return nil, err
	}

	var sender, recipient AccountAmount
	for _, aa := range t.Transfers {
		switch aa.Amount.Sign() {
		case -1:
			sender = aa
		case 1:
			recipient = aa
		}
	}
	if sender.Amount == nil || recipient.Amount == nil {
		return nil, errors.New("transfer needs one negative and one positive delta")
	}
	if sender.Account != from {
		return nil, fmt.Errorf("sender %s is not the signing account %s", sender.Account.Hex(), from.Hex())
	}
	if recipient.Account == from {
		return nil, errors.New("sender and recipient are the same account")
	}

	to := recipient.Account
	return &Draft{
		To:    &to,
		Value: new(big.Int).Set(recipient.Amount),
	}, nil
}

// CreateAccount generates a fresh key pair and funds the derived address with
// InitialBalance from the signer. The address is the new account id.
type CreateAccount struct {
	InitialBalance *big.Int

	key *ecdsa.PrivateKey
}

func (c *CreateAccount) Operation() string { return "create_account" }

func (c *CreateAccount) Build(common.Address) (*Draft, error) {
	if c.InitialBalance != nil && c.InitialBalance.Sign() < 0 {
		return nil, errors.New("initial balance must not be negative")
	}
	if c.key == nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		c.key = key
	}
	addr := crypto.PubkeyToAddress(c.key.PublicKey)
	value := new(big.Int)
	if c.InitialBalance != nil {
		value.Set(c.InitialBalance)
	}
	return &Draft{
		To:        &addr,
		Value:     value,
		AccountID: addr.Hex(),
	}, nil
}

// Key returns the generated private key once Build has run.
func (c *CreateAccount) Key() *ecdsa.PrivateKey { return c.key }

// SignedBytes submits a transaction that was signed elsewhere. Envelope is
// the base64 encoding of its canonical binary form.
type SignedBytes struct {
	Envelope string
}

func (s *SignedBytes) Operation() string { return "submit_signed" }

func (s *SignedBytes) Build(common.Address) (*Draft, error) {
	raw, err := decodeEnvelope(s.Envelope)
	if err != nil {
		return nil, err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	if v, r, ss := tx.RawSignatureValues(); r.Sign() == 0 && ss.Sign() == 0 && v.Sign() == 0 {
		return nil, errors.New("transaction is not signed")
	}
	return &Draft{To: tx.To(), Value: tx.Value(), Data: tx.Data(), Signed: tx}, nil
}

func decodeEnvelope(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("envelope is empty")
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, errors.New("envelope is not base64")
	}
	return raw, nil
}
