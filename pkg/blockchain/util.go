package blockchain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GetAddressFromPrivateKeyECDSA derives the Ethereum address from the given
// ECDSA private key. It returns nil if the key is nil or its public part cannot
// be asserted to *ecdsa.PublicKey.
func GetAddressFromPrivateKeyECDSA(privateKeyECDSA *ecdsa.PrivateKey) *common.Address {
	if privateKeyECDSA == nil {
		return nil
	}
	publicKey := privateKeyECDSA.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil
	}
	addr := crypto.PubkeyToAddress(*publicKeyECDSA)
	return &addr
}

// ParsePrivateKeyECDSA parses a hex-encoded ECDSA private key (with or without
// 0x prefix) and returns the corresponding Ethereum address together with the
// private key object. The error never includes the key material.
func ParsePrivateKeyECDSA(privateKey string) (common.Address, *ecdsa.PrivateKey, error) {
	privateKeyECDSA, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return common.Address{}, nil, errors.New("private key is not a valid secp256k1 hex key")
	}

	addr := GetAddressFromPrivateKeyECDSA(privateKeyECDSA)
	if addr == nil {
		return common.Address{}, nil, errors.New("failed to get public key")
	}
	return *addr, privateKeyECDSA, nil
}

// ParseAccountID validates a hex account id and returns its address.
func ParseAccountID(accountID string) (common.Address, error) {
	if !common.IsHexAddress(accountID) {
		return common.Address{}, fmt.Errorf("account id %q is not a hex address", accountID)
	}
	return common.HexToAddress(accountID), nil
}

// MaskAddress shortens an address for log lines, e.g. 0x1234…abcd.
func MaskAddress(addr common.Address) string {
	h := addr.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}

// BigIntToBytes converts a *big.Int value to a 32-byte big-endian slice, using
// the same formatting that Ethereum commonly applies to integers in ABI/keccak
// contexts (common.BigToHash).
func BigIntToBytes(value *big.Int) []byte {
	return common.BigToHash(value).Bytes()
}

// GetSignature produces an Ethereum-compatible personal-sign (EIP-191 style)
// signature over the given message. It hashes the payload as
// keccak256("\x19Ethereum Signed Message:\n32" || keccak256(message)) and
// signs with the provided ECDSA private key.
//
// Returns the 65-byte signature (R||S||V).
func GetSignature(message []byte, privateKeyECDSA *ecdsa.PrivateKey) ([]byte, error) {
	if privateKeyECDSA == nil {
		return nil, errors.New("private key is required")
	}
	signature, err := crypto.Sign(personalHash(message), privateKeyECDSA)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return signature, nil
}

// RecoverSigner returns the address that produced signature over message with
// GetSignature. V may be 0/1 or 27/28.
func RecoverSigner(message, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func personalHash(message []byte) []byte {
	return crypto.Keccak256(
		HashPrefix32Bytes,
		crypto.Keccak256(message),
	)
}
