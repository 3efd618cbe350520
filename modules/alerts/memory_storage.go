package alerts

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStorage is an in-memory Storage for tests and local development.
// It enforces the same active-alert uniqueness as the Postgres index.
type MemoryStorage struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*Alert
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{alerts: make(map[uuid.UUID]*Alert)}
}

func (s *MemoryStorage) FindActive(_ context.Context, tenantID string, typ Type, resource string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.TenantID == tenantID && a.Type == typ && a.Resource == resource && a.Status == StatusActive {
			return copyAlert(a), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) Insert(_ context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Status == StatusActive {
		for _, existing := range s.alerts {
			if existing.TenantID == a.TenantID && existing.Type == a.Type &&
				existing.Resource == a.Resource && existing.Status == StatusActive {
				return ErrDuplicate
			}
		}
	}
	s.alerts[a.ID] = copyAlert(a)
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, id uuid.UUID) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAlert(a), nil
}

func (s *MemoryStorage) UpdateDetails(_ context.Context, id uuid.UUID, severity Severity, message string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.Severity = severity
	a.Message = message
	a.Metadata = metadata
	return nil
}

func (s *MemoryStorage) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (s *MemoryStorage) List(_ context.Context, f Filter) ([]Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Alert
	for _, a := range s.alerts {
		if f.TenantID != "" && a.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		out = append(out, *copyAlert(a))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

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

func (s *MemoryStorage) CountActiveBySeverity(_ context.Context) (map[Severity]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Severity]int)
	for _, a := range s.alerts {
		if a.Status == StatusActive {
			counts[a.Severity]++
		}
	}
	return counts, nil
}

func copyAlert(a *Alert) *Alert {
	c := *a
	if a.SubscriptionID != nil {
		id := *a.SubscriptionID
		c.SubscriptionID = &id
	}
	if a.Metadata != nil {
		c.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
