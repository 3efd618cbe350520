package operator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAuditStorage is an in-memory AuditStorage for tests.
type MemoryAuditStorage struct {
	mu     sync.RWMutex
	audits []AdminAudit
}

func NewMemoryAuditStorage() *MemoryAuditStorage {
	return &MemoryAuditStorage{}
}

func (s *MemoryAuditStorage) Insert(_ context.Context, a *AdminAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.audits = append(s.audits, *a)
	return nil
}

func (s *MemoryAuditStorage) List(_ context.Context, f AuditFilter) ([]AdminAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AdminAudit
	for i := len(s.audits) - 1; i >= 0; i-- {
		a := s.audits[i]
		if f.ActorID != "" && a.ActorID != f.ActorID {
			continue
		}
		if f.TenantID != "" && a.TenantID != f.TenantID {
			continue
		}
		out = append(out, a)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// MemoryGrantStorage is an in-memory GrantStorage for tests.
type MemoryGrantStorage struct {
	mu     sync.RWMutex
	grants map[uuid.UUID]*ImpersonationGrant
}

func NewMemoryGrantStorage() *MemoryGrantStorage {
	return &MemoryGrantStorage{grants: make(map[uuid.UUID]*ImpersonationGrant)}
}

func (s *MemoryGrantStorage) Insert(_ context.Context, g *ImpersonationGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	cp := *g
	s.grants[g.ID] = &cp
	return nil
}

func (s *MemoryGrantStorage) ByID(_ context.Context, id uuid.UUID) (*ImpersonationGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return nil, ErrGrantNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryGrantStorage) Revoke(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return ErrGrantNotFound
	}
	if g.RevokedAt == nil {
		g.RevokedAt = &at
	}
	return nil
}
