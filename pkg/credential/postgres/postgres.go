// Package postgres stores credential records in PostgreSQL through pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shamank/snet-custody-go/pkg/credential"
	"github.com/shamank/snet-custody-go/pkg/faults"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_credentials (
	id              UUID PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	provider_type   TEXT NOT NULL,
	credential_data TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	created_by      TEXT NOT NULL DEFAULT '',
	updated_by      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (tenant_id, provider_type)
)`

// Repository implements credential.Repository.
type Repository struct {
	DB *pgxpool.Pool
}

var _ credential.Repository = (*Repository)(nil)

// Connect opens a pool for dsn and ensures the table exists.
func Connect(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, faults.New(faults.KindConfig, "postgres.connect", "check DATABASE_URL", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, faults.New(faults.KindNetwork, "postgres.connect", "check DATABASE_URL", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, faults.New(faults.KindNetwork, "postgres.connect", "check DATABASE_URL", err)
	}

	r := &Repository{DB: pool}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// EnsureSchema creates the table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create ledger_credentials: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *Repository) Close() {
	r.DB.Close()
}

func (r *Repository) Upsert(ctx context.Context, rec credential.Record) (credential.Record, error) {
	var out credential.Record
	err := r.DB.QueryRow(ctx, `
INSERT INTO ledger_credentials(id,tenant_id,provider_type,credential_data,status,created_by,updated_by,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (tenant_id,provider_type) DO UPDATE
SET credential_data=EXCLUDED.credential_data,
    status='active',
    updated_by=EXCLUDED.updated_by,
    updated_at=EXCLUDED.updated_at
RETURNING id,tenant_id,provider_type,credential_data,status,created_by,updated_by,created_at,updated_at
`, rec.ID, rec.TenantID, rec.ProviderType, rec.CredentialData, string(rec.Status), rec.CreatedBy, rec.UpdatedBy, rec.CreatedAt, rec.UpdatedAt).
		Scan(&out.ID, &out.TenantID, &out.ProviderType, &out.CredentialData, &out.Status, &out.CreatedBy, &out.UpdatedBy, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return credential.Record{}, err
	}
	return out, nil
}

func (r *Repository) Find(ctx context.Context, tenantID, providerType string) (*credential.Record, error) {
	var rec credential.Record
	err := r.DB.QueryRow(ctx, `
SELECT id,tenant_id,provider_type,credential_data,status,created_by,updated_by,created_at,updated_at
FROM ledger_credentials
WHERE tenant_id=$1 AND provider_type=$2
`, tenantID, providerType).Scan(&rec.ID, &rec.TenantID, &rec.ProviderType, &rec.CredentialData, &rec.Status, &rec.CreatedBy, &rec.UpdatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) SetStatus(ctx context.Context, tenantID, providerType string, status credential.Status, actor string) error {
	tag, err := r.DB.Exec(ctx, `
UPDATE ledger_credentials
SET status=$3, updated_by=$4, updated_at=now()
WHERE tenant_id=$1 AND provider_type=$2
`, tenantID, providerType, string(status), actor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return faults.Newf(faults.KindNotFound, "postgres.set_status", "", "no %s credential for tenant %s", providerType, tenantID)
	}
	return nil
}
