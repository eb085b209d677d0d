// Package sqlite stores credential records in a local SQLite database. It is
// meant for single-node deployments and the CLI.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shamank/snet-custody-go/pkg/credential"
	"github.com/shamank/snet-custody-go/pkg/faults"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_credentials (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT NOT NULL,
	provider_type   TEXT NOT NULL,
	credential_data TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	created_by      TEXT NOT NULL DEFAULT '',
	updated_by      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	UNIQUE (tenant_id, provider_type)
);`

// Repository implements credential.Repository on SQLite.
type Repository struct {
	db *sql.DB
}

var _ credential.Repository = (*Repository)(nil)

// Open creates or opens the database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) Upsert(ctx context.Context, rec credential.Record) (credential.Record, error) {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ledger_credentials(id,tenant_id,provider_type,credential_data,status,created_by,updated_by,created_at,updated_at)
VALUES(?,?,?,?,?,?,?,?,?)
ON CONFLICT (tenant_id,provider_type) DO UPDATE
SET credential_data=excluded.credential_data,
    status='active',
    updated_by=excluded.updated_by,
    updated_at=excluded.updated_at
`, rec.ID, rec.TenantID, rec.ProviderType, rec.CredentialData, string(rec.Status), rec.CreatedBy, rec.UpdatedBy, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return credential.Record{}, fmt.Errorf("upsert credential: %w", err)
	}

	out, err := r.Find(ctx, rec.TenantID, rec.ProviderType)
	if err != nil {
		return credential.Record{}, err
	}
	if out == nil {
		return credential.Record{}, errors.New("upserted credential not found")
	}
	return *out, nil
}

func (r *Repository) Find(ctx context.Context, tenantID, providerType string) (*credential.Record, error) {
	var (
		rec                  credential.Record
		status               string
		createdAt, updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id,tenant_id,provider_type,credential_data,status,created_by,updated_by,created_at,updated_at
FROM ledger_credentials
WHERE tenant_id=? AND provider_type=?
`, tenantID, providerType).Scan(&rec.ID, &rec.TenantID, &rec.ProviderType, &rec.CredentialData, &status, &rec.CreatedBy, &rec.UpdatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	rec.Status = credential.Status(status)
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return &rec, nil
}

func (r *Repository) SetStatus(ctx context.Context, tenantID, providerType string, status credential.Status, actor string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE ledger_credentials
SET status=?, updated_by=?, updated_at=?
WHERE tenant_id=? AND provider_type=?
`, string(status), actor, time.Now().UTC(), tenantID, providerType)
	if err != nil {
		return fmt.Errorf("set credential status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return faults.Newf(faults.KindNotFound, "sqlite.set_status", "", "no %s credential for tenant %s", providerType, tenantID)
	}
	return nil
}
