package credential

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/vault"
)

var testMasterKey = strings.Repeat("00", 32)

func newSecret(t *testing.T) Secret {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return Secret{
		AccountID:  crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(key)),
		Network:    "test",
	}
}

func newStore(t *testing.T) (*Store, *MemoryRepository) {
	t.Helper()
	c, err := vault.New(config.Vault{MasterKey: testMasterKey})
	if err != nil {
		t.Fatal(err)
	}
	repo := NewMemoryRepository()
	return NewStore(repo, c), repo
}

func TestStoreUpsertGet(t *testing.T) {
	s, repo := newStore(t)
	ctx := context.Background()
	secret := newSecret(t)

	rec, err := s.Upsert(ctx, "tenant-1", "", secret, "alice")
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if rec.CredentialData != "" {
		t.Fatal("Upsert returned the encrypted token")
	}
	if rec.ProviderType != ProviderLedgerAccount || rec.Status != StatusActive || rec.ID == "" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	stored, _ := repo.Find(ctx, "tenant-1", ProviderLedgerAccount)
	if strings.Contains(stored.CredentialData, secret.PrivateKey) {
		t.Fatal("private key stored in plaintext")
	}

	got, err := s.Get(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || *got != secret {
		t.Fatalf("Get = %+v, want %+v", got, secret)
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	s, repo := newStore(t)
	ctx := context.Background()

	first, err := s.Upsert(ctx, "tenant-1", "", newSecret(t), "alice")
	if err != nil {
		t.Fatal(err)
	}
	replacement := newSecret(t)
	second, err := s.Upsert(ctx, "tenant-1", "", replacement, "bob")
	if err != nil {
		t.Fatal(err)
	}

	if repo.Len() != 1 {
		t.Fatalf("repository holds %d records, want 1", repo.Len())
	}
	if second.ID != first.ID || second.UpdatedBy != "bob" || second.CreatedBy != "alice" {
		t.Fatalf("unexpected record after replace: %+v", second)
	}
	got, err := s.Get(ctx, "tenant-1")
	if err != nil || got.AccountID != replacement.AccountID {
		t.Fatalf("Get = %+v, %v", got, err)
	}
}

func TestStoreGetMissingOrInactive(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	got, err := s.Get(ctx, "nobody")
	if err != nil || got != nil {
		t.Fatalf("Get(missing) = %+v, %v", got, err)
	}

	if _, err := s.Upsert(ctx, "tenant-1", "", newSecret(t), "alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.Deactivate(ctx, "tenant-1", "", "alice"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	got, err = s.Get(ctx, "tenant-1")
	if err != nil || got != nil {
		t.Fatalf("Get(inactive) = %+v, %v", got, err)
	}

	rec, err := s.Record(ctx, "tenant-1", "")
	if err != nil || rec.Status != StatusInactive {
		t.Fatalf("Record = %+v, %v", rec, err)
	}

	// Upsert reactivates.
	if _, err := s.Upsert(ctx, "tenant-1", "", newSecret(t), "alice"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, "tenant-1"); got == nil {
		t.Fatal("upsert did not reactivate the record")
	}
}

func TestStoreGetDecryptFailureIsNotNotFound(t *testing.T) {
	s, repo := newStore(t)
	ctx := context.Background()
	if _, err := s.Upsert(ctx, "tenant-1", "", newSecret(t), "alice"); err != nil {
		t.Fatal(err)
	}

	// Same repository, different master key.
	other, err := vault.New(config.Vault{MasterKey: strings.Repeat("11", 32)})
	if err != nil {
		t.Fatal(err)
	}
	s2 := NewStore(repo, other)

	got, err := s2.Get(ctx, "tenant-1")
	if got != nil {
		t.Fatal("returned a secret despite decrypt failure")
	}
	if !errors.Is(err, faults.AuthFailed) {
		t.Fatalf("expected AUTH_FAILED, got %v", err)
	}
}

func TestStoreUpsertValidation(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	good := newSecret(t)
	other := newSecret(t)

	tests := []struct {
		name   string
		tenant string
		secret Secret
	}{
		{name: "empty tenant", tenant: " ", secret: good},
		{name: "bad account", tenant: "t", secret: Secret{AccountID: "0.0.1234", PrivateKey: good.PrivateKey, Network: "test"}},
		{name: "bad key", tenant: "t", secret: Secret{AccountID: good.AccountID, PrivateKey: "zz", Network: "test"}},
		{name: "key for another account", tenant: "t", secret: Secret{AccountID: other.AccountID, PrivateKey: good.PrivateKey, Network: "test"}},
		{name: "unknown network", tenant: "t", secret: Secret{AccountID: good.AccountID, PrivateKey: good.PrivateKey, Network: "moon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Upsert(ctx, tt.tenant, "", tt.secret, "x")
			if !errors.Is(err, faults.InvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
			if strings.Contains(err.Error(), good.PrivateKey) {
				t.Fatal("error leaks the private key")
			}
		})
	}
}

func TestDeactivateMissing(t *testing.T) {
	s, _ := newStore(t)
	err := s.Deactivate(context.Background(), "nobody", "", "x")
	if !errors.Is(err, faults.NotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := s.Record(context.Background(), "nobody", ""); !errors.Is(err, faults.NotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestSecretNeverPrinted(t *testing.T) {
	secret := newSecret(t)
	for _, out := range []string{secret.String(), fmt.Sprintf("%v", secret), fmt.Sprintf("%+v", secret)} {
		if strings.Contains(out, secret.PrivateKey) {
			t.Fatalf("formatted secret leaks the key: %s", out)
		}
	}
}

func TestRecordJSONOmitsCredentialData(t *testing.T) {
	b, err := json.Marshal(Record{ID: "1", CredentialData: "aa:bb:cc"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "aa:bb:cc") {
		t.Fatalf("record JSON contains the token: %s", b)
	}
}
