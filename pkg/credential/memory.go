package credential

import (
	"context"
	"sync"
	"time"

	"github.com/shamank/snet-custody-go/pkg/faults"
)

// MemoryRepository keeps records in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

func memoryKey(tenantID, providerType string) string {
	return tenantID + "\x00" + providerType
}

func (m *MemoryRepository) Upsert(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := memoryKey(rec.TenantID, rec.ProviderType)
	if existing, ok := m.records[k]; ok {
		existing.CredentialData = rec.CredentialData
		existing.Status = StatusActive
		existing.UpdatedBy = rec.UpdatedBy
		existing.UpdatedAt = rec.UpdatedAt
		m.records[k] = existing
		return existing, nil
	}
	m.records[k] = rec
	return rec, nil
}

func (m *MemoryRepository) Find(_ context.Context, tenantID, providerType string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[memoryKey(tenantID, providerType)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryRepository) SetStatus(_ context.Context, tenantID, providerType string, status Status, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memoryKey(tenantID, providerType)
	rec, ok := m.records[k]
	if !ok {
		return faults.Newf(faults.KindNotFound, "credential.set_status", "", "no %s credential for tenant %s", providerType, tenantID)
	}
	rec.Status = status
	rec.UpdatedBy = actor
	rec.UpdatedAt = time.Now().UTC()
	m.records[k] = rec
	return nil
}

// Len returns the number of stored records.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
