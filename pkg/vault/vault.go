// Package vault implements envelope encryption of credential secrets under a
// process master key.
//
// Tokens have the form hex(iv):hex(tag):hex(ciphertext) and are produced with
// AES-256-GCM using a fresh 16-byte IV per call and a fixed additional data
// tag binding the ciphertext to its purpose. The master key is either 64 hex
// characters (used verbatim) or a passphrase stretched with PBKDF2-SHA512.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length used for every token.
	IVSize = 16
	// TagSize is the GCM authentication tag length.
	TagSize = 16
	// Iterations is the PBKDF2 work factor for passphrase keys.
	Iterations = 100_000

	salt = "snet-custody/credential-vault/v1"
	aad  = "snet-custody:ledger-credential"
)

// DeriveKey turns master key material into a 32-byte AES key. A 64-character
// hex string is decoded and used as-is; anything else is a passphrase.
func DeriveKey(key string) ([]byte, error) {
	if key == "" {
		return nil, faults.Newf(faults.KindConfig, "vault.derive", hintMasterKey, "master key is empty")
	}
	if len(key) == 2*KeySize {
		if raw, err := hex.DecodeString(key); err == nil {
			return raw, nil
		}
	}
	return pbkdf2.Key([]byte(key), []byte(salt), Iterations, KeySize, sha512.New), nil
}

const hintMasterKey = "set VAULT_MASTER_KEY (64 hex chars or a passphrase)"

// Cipher encrypts and decrypts tokens under a configured master key. The key
// is derived on each call and wiped afterwards; only the configured string is
// retained.
type Cipher struct {
	masterKey string
}

// New returns a Cipher for cfg. A missing master key is a configuration error.
func New(cfg config.Vault) (*Cipher, error) {
	if strings.TrimSpace(cfg.MasterKey) == "" {
		return nil, faults.Newf(faults.KindConfig, "vault.new", hintMasterKey, "master key is not configured")
	}
	return &Cipher{masterKey: cfg.MasterKey}, nil
}

// Encrypt seals plaintext under the configured master key.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	return Encrypt(plaintext, c.masterKey)
}

// Decrypt opens a token under the configured master key.
func (c *Cipher) Decrypt(token string) (string, error) {
	return Decrypt(token, c.masterKey)
}

// Fingerprint identifies the configured master key for logs.
func (c *Cipher) Fingerprint() string {
	return Fingerprint(c.masterKey)
}

// Encrypt seals plaintext under key and returns hex(iv):hex(tag):hex(ct).
func Encrypt(plaintext, key string) (string, error) {
	k, err := DeriveKey(key)
	if err != nil {
		return "", err
	}
	defer wipe(k)

	aead, err := newAEAD(k)
	if err != nil {
		return "", err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), []byte(aad))
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a token produced by Encrypt. Malformed tokens fail with
// faults.KindInvalidFormat; a tag that does not verify (tampered token or
// wrong key) fails with faults.KindAuthFailed.
func Decrypt(token, key string) (string, error) {
	iv, tag, ct, err := split(token)
	if err != nil {
		return "", err
	}

	k, err := DeriveKey(key)
	if err != nil {
		return "", err
	}
	defer wipe(k)

	aead, err := newAEAD(k)
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, iv, append(ct, tag...), []byte(aad))
	if err != nil {
		return "", faults.New(faults.KindAuthFailed, "vault.decrypt",
			"the token was modified or encrypted under a different master key", err)
	}
	return string(plain), nil
}

func split(token string) (iv, tag, ct []byte, err error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return nil, nil, nil, invalidFormat("expected 3 colon-separated parts, got %d", len(parts))
	}
	if iv, err = hex.DecodeString(parts[0]); err != nil {
		return nil, nil, nil, invalidFormat("iv is not hex")
	}
	if tag, err = hex.DecodeString(parts[1]); err != nil {
		return nil, nil, nil, invalidFormat("tag is not hex")
	}
	if ct, err = hex.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, invalidFormat("ciphertext is not hex")
	}
	if len(iv) != IVSize {
		return nil, nil, nil, invalidFormat("iv must be %d bytes, got %d", IVSize, len(iv))
	}
	if len(tag) != TagSize {
		return nil, nil, nil, invalidFormat("tag must be %d bytes, got %d", TagSize, len(tag))
	}
	return iv, tag, ct, nil
}

func invalidFormat(format string, args ...any) error {
	return faults.Newf(faults.KindInvalidFormat, "vault.decrypt", "the stored token is corrupted; re-save the credential", format, args...)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}

// Equal compares a and b in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Fingerprint returns the first 8 bytes of SHA-256 over the derived key, hex
// encoded. It is safe to log and lets operators tell which key is in use.
func Fingerprint(key string) string {
	k, err := DeriveKey(key)
	if err != nil {
		return ""
	}
	defer wipe(k)
	sum := sha256.Sum256(k)
	return hex.EncodeToString(sum[:8])
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
