// Package credential persists per-tenant ledger credentials encrypted with
// the vault. Exactly one record exists per (tenant, provider type); writes
// replace it in place and deletion flips its status.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shamank/snet-custody-go/pkg/blockchain"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ProviderLedgerAccount is the provider type for ledger account keys.
const ProviderLedgerAccount = "ledger-account"

// Status of a stored record.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Record is a stored credential. CredentialData holds the vault token and is
// never serialized.
type Record struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ProviderType   string    `json:"provider_type"`
	CredentialData string    `json:"-"`
	Status         Status    `json:"status"`
	CreatedBy      string    `json:"created_by"`
	UpdatedBy      string    `json:"updated_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Redacted returns a copy without the encrypted token.
func (r Record) Redacted() Record {
	r.CredentialData = ""
	return r
}

// Secret is the plaintext content of a ledger credential.
type Secret struct {
	AccountID  string `json:"account_id"`
	PrivateKey string `json:"private_key"`
	Network    string `json:"network"`
}

// String masks the private key.
func (s Secret) String() string {
	return fmt.Sprintf("Secret{AccountID:%s Network:%s PrivateKey:[redacted]}", s.AccountID, s.Network)
}

// MarshalLogObject keeps the private key out of zap output.
func (s Secret) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("account_id", s.AccountID)
	enc.AddString("network", s.Network)
	return nil
}

// Validate checks that the account id is an address, the key parses and
// derives that address, and the network is known.
func (s Secret) Validate() error {
	acct, err := blockchain.ParseAccountID(s.AccountID)
	if err != nil {
		return err
	}
	addr, _, err := blockchain.ParsePrivateKeyECDSA(s.PrivateKey)
	if err != nil {
		return err
	}
	if addr != acct {
		return fmt.Errorf("private key does not belong to account %s", s.AccountID)
	}
	switch s.Network {
	case "main", "test", "preview":
	default:
		return fmt.Errorf("network %q must be main, test or preview", s.Network)
	}
	return nil
}

// Repository stores records. Find returns (nil, nil) when nothing matches.
type Repository interface {
	Upsert(ctx context.Context, rec Record) (Record, error)
	Find(ctx context.Context, tenantID, providerType string) (*Record, error)
	SetStatus(ctx context.Context, tenantID, providerType string, status Status, actor string) error
}

// Cipher is the vault surface the store needs.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

// Store encrypts on write and decrypts on read.
type Store struct {
	repo   Repository
	cipher Cipher
	now    func() time.Time
}

// NewStore returns a Store over repo using cipher.
func NewStore(repo Repository, cipher Cipher) *Store {
	return &Store{repo: repo, cipher: cipher, now: time.Now}
}

// Upsert encrypts secret and stores it for (tenantID, providerType). An
// existing record is replaced and reactivated. The returned record is
// redacted.
func (s *Store) Upsert(ctx context.Context, tenantID, providerType string, secret Secret, actor string) (Record, error) {
	const op = "credential.upsert"
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Record{}, faults.Newf(faults.KindInvalidInput, op, "authenticate as a tenant", "tenant id is required")
	}
	if providerType == "" {
		providerType = ProviderLedgerAccount
	}
	if err := secret.Validate(); err != nil {
		return Record{}, faults.New(faults.KindInvalidInput, op, "supply a matching account id, private key and network", err)
	}

	plain, err := json.Marshal(secret)
	if err != nil {
		return Record{}, fmt.Errorf("marshal secret: %w", err)
	}
	token, err := s.cipher.Encrypt(string(plain))
	if err != nil {
		return Record{}, err
	}

	now := s.now().UTC()
	rec, err := s.repo.Upsert(ctx, Record{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ProviderType:   providerType,
		CredentialData: token,
		Status:         StatusActive,
		CreatedBy:      actor,
		UpdatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Record{}, fmt.Errorf("store credential: %w", err)
	}

	zap.L().Info("credential stored",
		zap.String("tenant_id", tenantID),
		zap.String("provider_type", providerType),
		zap.String("record_id", rec.ID))

	return rec.Redacted(), nil
}

// Get returns the ledger-account secret for tenantID, or (nil, nil) when
// there is none or it is inactive.
func (s *Store) Get(ctx context.Context, tenantID string) (*Secret, error) {
	return s.GetByProvider(ctx, tenantID, ProviderLedgerAccount)
}

// GetByProvider returns the secret of the given provider type. Vault errors
// are returned as they are and are never reported as "not found".
func (s *Store) GetByProvider(ctx context.Context, tenantID, providerType string) (*Secret, error) {
	rec, err := s.repo.Find(ctx, tenantID, providerType)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if rec == nil || rec.Status != StatusActive {
		return nil, nil
	}

	plain, err := s.cipher.Decrypt(rec.CredentialData)
	if err != nil {
		return nil, err
	}

	var secret Secret
	if err := json.Unmarshal([]byte(plain), &secret); err != nil {
		return nil, faults.New(faults.KindInvalidFormat, "credential.get", "re-save the credential", fmt.Errorf("decode secret: %w", err))
	}
	return &secret, nil
}

// Record returns the redacted record for (tenantID, providerType) or a
// NOT_FOUND error.
func (s *Store) Record(ctx context.Context, tenantID, providerType string) (Record, error) {
	if providerType == "" {
		providerType = ProviderLedgerAccount
	}
	rec, err := s.repo.Find(ctx, tenantID, providerType)
	if err != nil {
		return Record{}, fmt.Errorf("load credential: %w", err)
	}
	if rec == nil {
		return Record{}, faults.Newf(faults.KindNotFound, "credential.record", "add ledger credentials for this tenant",
			"no %s credential for tenant %s", providerType, tenantID)
	}
	return rec.Redacted(), nil
}

// Deactivate soft-deletes the record.
func (s *Store) Deactivate(ctx context.Context, tenantID, providerType, actor string) error {
	if providerType == "" {
		providerType = ProviderLedgerAccount
	}
	if err := s.repo.SetStatus(ctx, tenantID, providerType, StatusInactive, actor); err != nil {
		return err
	}
	zap.L().Info("credential deactivated", zap.String("tenant_id", tenantID), zap.String("provider_type", providerType))
	return nil
}
