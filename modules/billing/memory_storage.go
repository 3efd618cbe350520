package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StaticPlanStorage serves a fixed catalog, for tests and seeding checks.
type StaticPlanStorage struct {
	Plans    []Plan
	Features []PlanFeature
}

func (s *StaticPlanStorage) ListPlans(_ context.Context) ([]Plan, error) {
	out := append([]Plan{}, s.Plans...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (s *StaticPlanStorage) ListPlanFeatures(_ context.Context) ([]PlanFeature, error) {
	out := append([]PlanFeature{}, s.Features...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PlanID != out[j].PlanID {
			return out[i].PlanID < out[j].PlanID
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out, nil
}

// MemorySubscriptionStorage is an in-memory SubscriptionStorage enforcing
// the one-open-subscription-per-tenant rule. It records the employee cap
// written by SavePlanChange so tests can assert atomicity inputs.
type MemorySubscriptionStorage struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription

	// TenantCaps holds the max_employees value last written per tenant.
	TenantCaps map[string]int
}

func NewMemorySubscriptionStorage() *MemorySubscriptionStorage {
	return &MemorySubscriptionStorage{
		subs:       make(map[uuid.UUID]*Subscription),
		TenantCaps: make(map[string]int),
	}
}

func (s *MemorySubscriptionStorage) CurrentByTenant(_ context.Context, tenantID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.TenantID == tenantID && !sub.Status.Terminal() {
			return copySub(sub), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemorySubscriptionStorage) ByProviderID(_ context.Context, provider, providerSubID string) (*Subscription, error) {
	if providerSubID == "" {
		return nil, ErrSubscriptionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.Provider == provider && sub.ProviderSubscriptionID == providerSubID {
			return copySub(sub), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemorySubscriptionStorage) Insert(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !sub.Status.Terminal() {
		for _, existing := range s.subs {
			if existing.TenantID == sub.TenantID && !existing.Status.Terminal() {
				return ErrDuplicateSubscription
			}
		}
	}
	s.subs[sub.ID] = copySub(sub)
	return nil
}

func (s *MemorySubscriptionStorage) Update(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	s.subs[sub.ID] = copySub(sub)
	return nil
}

func (s *MemorySubscriptionStorage) SavePlanChange(_ context.Context, sub *Subscription, maxEmployees int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	s.subs[sub.ID] = copySub(sub)
	s.TenantCaps[sub.TenantID] = maxEmployees
	return nil
}

func copySub(sub *Subscription) *Subscription {
	c := *sub
	return &c
}

// MemoryEventStorage is an in-memory EventStorage with the same dedup and
// claim semantics as the Postgres implementation.
type MemoryEventStorage struct {
	mu      sync.Mutex
	records map[uuid.UUID]*WebhookRecord
	claimed map[uuid.UUID]bool
}

func NewMemoryEventStorage() *MemoryEventStorage {
	return &MemoryEventStorage{
		records: make(map[uuid.UUID]*WebhookRecord),
		claimed: make(map[uuid.UUID]bool),
	}
}

func (s *MemoryEventStorage) Insert(_ context.Context, rec *WebhookRecord) (*WebhookRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.Provider == rec.Provider && existing.ExternalEventID == rec.ExternalEventID {
			return copyRecord(existing), false, nil
		}
	}
	s.records[rec.ID] = copyRecord(rec)
	return copyRecord(rec), true, nil
}

func (s *MemoryEventStorage) Get(_ context.Context, id uuid.UUID) (*WebhookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryEventStorage) Process(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, rec *WebhookRecord) error) (bool, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return false, ErrEventNotFound
	}
	if rec.Processed || s.claimed[id] {
		s.mu.Unlock()
		return false, nil
	}
	s.claimed[id] = true
	snapshot := copyRecord(rec)
	s.mu.Unlock()

	err := fn(ctx, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, id)
	if err != nil {
		rec.Attempts++
		rec.LastError = err.Error()
		return true, err
	}
	now := time.Now().UTC()
	rec.Processed = true
	rec.ProcessedAt = &now
	return true, nil
}

func (s *MemoryEventStorage) ListRetryable(_ context.Context, maxAttempts, limit int) ([]WebhookRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []WebhookRecord
	for _, rec := range s.records {
		if rec.Processed || !rec.SignatureValid || rec.Attempts >= maxAttempts {
			continue
		}
		out = append(out, *copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRecord(rec *WebhookRecord) *WebhookRecord {
	c := *rec
	c.Payload = append([]byte{}, rec.Payload...)
	return &c
}
