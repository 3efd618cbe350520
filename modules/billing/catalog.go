package billing

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const defaultCatalogTTL = 5 * time.Minute

// Catalog serves plan and feature lookups from a periodically refreshed
// snapshot of the plans tables. Plans change by deployment, not by
// request, so a short TTL is enough.
type Catalog struct {
	storage PlanStorage
	ttl     time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	loadedAt time.Time
	plans    map[string]Plan
	ordered  []string
	features map[string][]PlanFeature
}

// CatalogOption configures the catalog.
type CatalogOption func(*Catalog)

// WithCatalogTTL overrides the snapshot refresh interval.
func WithCatalogTTL(ttl time.Duration) CatalogOption {
	return func(c *Catalog) {
		c.ttl = ttl
	}
}

// NewCatalog creates the plan catalog.
func NewCatalog(storage PlanStorage, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		storage: storage,
		ttl:     defaultCatalogTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Catalog) snapshot(ctx context.Context) error {
	c.mu.RLock()
	fresh := c.plans != nil && c.now().Sub(c.loadedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	plans, err := c.storage.ListPlans(ctx)
	if err != nil {
		return err
	}
	bindings, err := c.storage.ListPlanFeatures(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]Plan, len(plans))
	ordered := make([]string, 0, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
		ordered = append(ordered, p.ID)
	}
	features := make(map[string][]PlanFeature)
	for _, b := range bindings {
		features[b.PlanID] = append(features[b.PlanID], b)
	}

	c.mu.Lock()
	c.plans = byID
	c.ordered = ordered
	c.features = features
	c.loadedAt = c.now()
	c.mu.Unlock()
	return nil
}

// Refresh drops the snapshot so the next lookup reloads the catalog.
func (c *Catalog) Refresh() {
	c.mu.Lock()
	c.plans = nil
	c.mu.Unlock()
}

// PlanByID returns one plan.
func (c *Catalog) PlanByID(ctx context.Context, id string) (Plan, error) {
	if err := c.snapshot(ctx); err != nil {
		return Plan{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// DefaultPlan returns the plan new tenants are provisioned onto.
func (c *Catalog) DefaultPlan(ctx context.Context) (Plan, error) {
	if err := c.snapshot(ctx); err != nil {
		return Plan{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.ordered {
		if c.plans[id].IsDefault {
			return c.plans[id], nil
		}
	}
	return Plan{}, ErrNoDefaultPlan
}

// PlanView is a public plan with its ordered feature list.
type PlanView struct {
	Plan
	Features []PlanFeature `json:"features"`
}

// PublicPlans returns the publicly listed plans in sort order.
func (c *Catalog) PublicPlans(ctx context.Context) ([]PlanView, error) {
	if err := c.snapshot(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []PlanView
	for _, id := range c.ordered {
		p := c.plans[id]
		if !p.IsPublic {
			continue
		}
		out = append(out, PlanView{Plan: p, Features: c.features[id]})
	}
	return out, nil
}

// Caps returns the plan's resource limits.
func (c *Catalog) Caps(ctx context.Context, planID string) (Caps, error) {
	p, err := c.PlanByID(ctx, planID)
	if err != nil {
		return Caps{}, err
	}
	return p.Caps(), nil
}

// FeatureMap returns the plan's feature keys and raw values.
func (c *Catalog) FeatureMap(ctx context.Context, planID string) (map[string]string, error) {
	if _, err := c.PlanByID(ctx, planID); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	m := make(map[string]string)
	for _, b := range c.features[planID] {
		m[b.FeatureKey] = b.Value
	}
	return m, nil
}

// HasFeature reports whether the subscription grants the feature: the
// subscription must be usable, the key present in the plan, and the value
// truthy ("true", "1", or a number above zero).
func (c *Catalog) HasFeature(ctx context.Context, sub *Subscription, key string) (bool, error) {
	if sub == nil || !sub.Status.Usable() {
		return false, nil
	}
	m, err := c.FeatureMap(ctx, sub.PlanID)
	if err != nil {
		return false, err
	}
	v, ok := m[key]
	if !ok {
		return false, nil
	}
	return truthy(v), nil
}

func truthy(v string) bool {
	switch v {
	case "true", "1":
		return true
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n > 0
	}
	return false
}
