package payment

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shamank/snet-custody-go/pkg/blockchain"
)

// PrefixPaymentMessage is the fixed prefix of every signed payment message.
const PrefixPaymentMessage = "__snet_custody_payment"

// Requirement describes what a resource costs and who gets paid.
type Requirement struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	PayTo             string         `json:"payTo"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// Payload is a payer's signed authorization. Amount is in smallest units.
type Payload struct {
	Network   string            `json:"network"`
	Payer     string            `json:"payer"`
	Amount    string            `json:"amount"`
	Token     string            `json:"token"`
	Nonce     string            `json:"nonce"`
	SessionID string            `json:"sessionId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Signature string            `json:"signature"`
}

// Decision is the outcome of verification. A rejection is a Decision, not an error.
type Decision struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
	Payer  string `json:"payer,omitempty"`
}

// Settlement is the facilitator's confirmation of a settled payment.
type Settlement struct {
	TxRef   string `json:"txRef"`
	Network string `json:"network"`
	Payer   string `json:"payer"`
}

// Rejection reasons.
const (
	ReasonNetworkMismatch    = "network_mismatch"
	ReasonTokenMismatch      = "token_mismatch"
	ReasonInsufficientAmount = "insufficient_amount"
	ReasonInvalidSignature   = "invalid_signature"
	ReasonInvalidPayload     = "invalid_payload"
	ReasonAlreadySettled     = "already_settled"
	ReasonMissingPayment     = "missing_payment"
)

// Message builds the bytes a payer signs:
//
//	concat("__snet_custody_payment", lp(network), payer, amount(32 bytes), lp(token), lp(nonce), lp(sessionID))
//
// where lp(s) is the 4-byte big-endian length of s followed by s, so no two
// payloads with different fields share a message.
func Message(p Payload) ([]byte, error) {
	payer, err := blockchain.ParseAccountID(p.Payer)
	if err != nil {
		return nil, fmt.Errorf("payer: %w", err)
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	return bytes.Join([][]byte{
		[]byte(PrefixPaymentMessage),
		lengthPrefixed(p.Network),
		payer.Bytes(),
		blockchain.BigIntToBytes(amount),
		lengthPrefixed(p.Token),
		lengthPrefixed(p.Nonce),
		lengthPrefixed(p.SessionID),
	}, nil), nil
}

func lengthPrefixed(s string) []byte {
	out := make([]byte, 4, 4+len(s))
	binary.BigEndian.PutUint32(out, uint32(len(s)))
	return append(out, s...)
}

// Sign fills in Payer (when empty), Nonce (when empty) and Signature.
func Sign(p Payload, key *ecdsa.PrivateKey) (Payload, error) {
	if p.Payer == "" {
		p.Payer = blockchain.GetAddressFromPrivateKeyECDSA(key).Hex()
	}
	if p.Nonce == "" {
		p.Nonce = uuid.NewString()
	}
	msg, err := Message(p)
	if err != nil {
		return Payload{}, err
	}
	sig, err := blockchain.GetSignature(msg, key)
	if err != nil {
		return Payload{}, err
	}
	p.Signature = "0x" + hex.EncodeToString(sig)
	return p, nil
}

// signerOf recovers the address that signed p.
func signerOf(p Payload) (common.Address, error) {
	msg, err := Message(p)
	if err != nil {
		return common.Address{}, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(p.Signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("signature is not hex: %w", err)
	}
	return blockchain.RecoverSigner(msg, sig)
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not an integer", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	return v, nil
}

// settlementKey identifies one payment for replay protection. The nonce
// length keeps the nonce/session boundary fixed.
func settlementKey(p Payload) string {
	return fmt.Sprintf("%s:%d:%s:%s", strings.ToLower(p.Payer), len(p.Nonce), p.Nonce, p.SessionID)
}
