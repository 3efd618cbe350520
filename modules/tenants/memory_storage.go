package tenants

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-memory Storage for tests and local development.
type MemoryStorage struct {
	mu      sync.RWMutex
	nextID  int64
	tenants map[string]*Tenant
	events  []LifecycleEvent
	modules map[string][]Module
	// purged records tenant IDs whose operational data was purged, so
	// tests can assert the sweep ran.
	purged map[string]bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		nextID:  1,
		tenants: make(map[string]*Tenant),
		modules: make(map[string][]Module),
		purged:  make(map[string]bool),
	}
}

func (s *MemoryStorage) Insert(_ context.Context, t *Tenant, ev *LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tenants {
		if strings.EqualFold(existing.Name, t.Name) {
			return ErrDuplicateTenant
		}
		if t.Domain != "" && strings.EqualFold(existing.Domain, t.Domain) {
			return ErrDuplicateTenant
		}
		if t.IdempotencyToken != "" && existing.IdempotencyToken == t.IdempotencyToken {
			return ErrDuplicateTenant
		}
	}

	t.ID = strconv.FormatInt(s.nextID, 10)
	s.nextID++
	t.Version = 1
	cp := *t
	s.tenants[t.ID] = &cp

	ev.TenantID = t.ID
	s.appendEvent(ev)
	return nil
}

func (s *MemoryStorage) ByID(_ context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStorage) ByDomain(_ context.Context, domain string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Domain != "" && strings.EqualFold(t.Domain, domain) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (s *MemoryStorage) ByIdempotencyToken(_ context.Context, token string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.IdempotencyToken != "" && t.IdempotencyToken == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (s *MemoryStorage) List(_ context.Context, f Filter) ([]Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Tenant, 0, len(s.tenants))
	search := strings.ToLower(f.Search)
	for _, t := range s.tenants {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.Domain), search) &&
			!strings.Contains(strings.ToLower(t.AdminEmail), search) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

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

func (s *MemoryStorage) ListByStatus(_ context.Context, status Status, limit int) ([]Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Tenant, 0)
	for _, t := range s.tenants {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) ApplyTransition(_ context.Context, t *Tenant, ev *LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tenants[t.ID]
	if !ok {
		return ErrTenantNotFound
	}
	if stored.Version != t.Version {
		return ErrVersionConflict
	}

	t.Version++
	cp := *t
	s.tenants[t.ID] = &cp
	s.appendEvent(ev)
	return nil
}

func (s *MemoryStorage) RecordEvent(_ context.Context, ev *LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[ev.TenantID]; !ok {
		return ErrTenantNotFound
	}
	s.appendEvent(ev)
	return nil
}

func (s *MemoryStorage) ListEvents(_ context.Context, tenantID string, limit int) ([]LifecycleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]LifecycleEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].TenantID != tenantID {
			continue
		}
		out = append(out, s.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStorage) SeedModules(_ context.Context, tenantID string, modules []Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool)
	for _, m := range s.modules[tenantID] {
		existing[m.Key] = true
	}
	for _, m := range modules {
		if existing[m.Key] {
			continue
		}
		m.ID = uuid.New()
		m.TenantID = tenantID
		s.modules[tenantID] = append(s.modules[tenantID], m)
	}
	return nil
}

func (s *MemoryStorage) ListModules(_ context.Context, tenantID string) ([]Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Module, len(s.modules[tenantID]))
	copy(out, s.modules[tenantID])
	sort.Slice(out, func(i, j int) bool { return out[i].NavOrder < out[j].NavOrder })
	return out, nil
}

func (s *MemoryStorage) PurgeTenantData(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.modules, tenantID)
	s.purged[tenantID] = true
	return nil
}

func (s *MemoryStorage) ExportData(_ context.Context, tenantID string) (map[string][]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]map[string]any, 0, len(s.modules[tenantID]))
	for _, m := range s.modules[tenantID] {
		rows = append(rows, map[string]any{"key": m.Key, "name": m.Name, "enabled": m.Enabled})
	}
	return map[string][]map[string]any{"tenant_modules": rows}, nil
}

// Purged reports whether PurgeTenantData ran for the tenant.
func (s *MemoryStorage) Purged(tenantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.purged[tenantID]
}

func (s *MemoryStorage) appendEvent(ev *LifecycleEvent) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.EventDate.IsZero() {
		ev.EventDate = time.Now().UTC()
	}
	s.events = append(s.events, *ev)
}
