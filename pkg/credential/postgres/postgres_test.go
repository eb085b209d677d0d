package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shamank/snet-custody-go/pkg/credential"
	"github.com/shamank/snet-custody-go/pkg/faults"
)

// These tests need a scratch database; set TEST_DATABASE_URL to run them.
func testRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestConnect_BadDSN(t *testing.T) {
	_, err := Connect(context.Background(), "::not a dsn::")
	if !errors.Is(err, faults.Config) {
		t.Fatalf("expected CONFIG error, got %v", err)
	}
}

func TestUpsertReplacesInPlace(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	tenant := "tenant-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	first, err := r.Upsert(ctx, credential.Record{
		ID: uuid.NewString(), TenantID: tenant, ProviderType: credential.ProviderLedgerAccount,
		CredentialData: "a:b:c", Status: credential.StatusActive, CreatedBy: "u1", UpdatedBy: "u1",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := r.SetStatus(ctx, tenant, credential.ProviderLedgerAccount, credential.StatusInactive, "u1"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	second, err := r.Upsert(ctx, credential.Record{
		ID: uuid.NewString(), TenantID: tenant, ProviderType: credential.ProviderLedgerAccount,
		CredentialData: "d:e:f", Status: credential.StatusActive, CreatedBy: "u2", UpdatedBy: "u2",
		CreatedAt: now.Add(time.Second), UpdatedAt: now.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert inserted a new row: %s != %s", second.ID, first.ID)
	}
	if second.CredentialData != "d:e:f" || second.Status != credential.StatusActive || second.CreatedBy != "u1" || second.UpdatedBy != "u2" {
		t.Fatalf("unexpected record after replace: %+v", second)
	}

	got, err := r.Find(ctx, tenant, credential.ProviderLedgerAccount)
	if err != nil || got == nil || got.CredentialData != "d:e:f" {
		t.Fatalf("Find = %+v, %v", got, err)
	}

	missing, err := r.Find(ctx, "nobody-"+uuid.NewString(), credential.ProviderLedgerAccount)
	if err != nil || missing != nil {
		t.Fatalf("Find(missing) = %+v, %v", missing, err)
	}

	if err := r.SetStatus(ctx, "nobody", credential.ProviderLedgerAccount, credential.StatusInactive, "x"); !errors.Is(err, faults.NotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
