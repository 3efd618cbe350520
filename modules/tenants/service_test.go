package tenants_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crewplane/modules/alerts"
	"github.com/dmitrymomot/crewplane/modules/billing"
	"github.com/dmitrymomot/crewplane/modules/tenants"
	"github.com/dmitrymomot/crewplane/modules/usage"
	"github.com/dmitrymomot/crewplane/pkg/mailer"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
)

// The service backs the resolver, billing and the usage scanner through
// their consumer-side interfaces.
var (
	_ billing.Lifecycle        = (*tenants.Service)(nil)
	_ billing.TenantSource     = (*tenants.Service)(nil)
	_ billing.CacheInvalidator = (*tenants.Service)(nil)
	_ usage.TenantLister       = (*tenants.Service)(nil)
	_ usage.Suspender          = (*tenants.Service)(nil)
	_ tenant.Provider          = (*tenants.Service)(nil)
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// racingStorage makes the token pre-check miss a fixed number of times,
// reproducing two signups racing past it before either row lands. The
// recovery lookup after the duplicate insert sees the real state.
type racingStorage struct {
	*tenants.MemoryStorage
	mu     sync.Mutex
	misses int
}

func (s *racingStorage) ByIdempotencyToken(ctx context.Context, token string) (*tenants.Tenant, error) {
	s.mu.Lock()
	if s.misses > 0 {
		s.misses--
		s.mu.Unlock()
		return nil, tenants.ErrTenantNotFound
	}
	s.mu.Unlock()
	return s.MemoryStorage.ByIdempotencyToken(ctx, token)
}

func signupParams(name string) tenants.SignupParams {
	return tenants.SignupParams{
		Name:       name,
		AdminEmail: "owner@example.test",
		AdminName:  "Owner",
	}
}

// activate is test setup: it pushes a freshly signed-up tenant straight
// to Active the way the provisioner would.
func activate(t *testing.T, storage *tenants.MemoryStorage, id string) {
	t.Helper()
	row, err := storage.ByID(context.Background(), id)
	require.NoError(t, err)
	row.Status = tenants.StatusActive
	row.SubscriptionActive = true
	row.MaxEmployees = 10
	require.NoError(t, storage.ApplyTransition(context.Background(), row, &tenants.LifecycleEvent{
		TenantID:  id,
		Type:      tenants.EventProvisioningCompleted,
		NewStatus: tenants.StatusActive,
	}))
}

func TestService_Signup(t *testing.T) {
	t.Parallel()

	t.Run("creates a provisioning tenant with the created event", func(t *testing.T) {
		t.Parallel()
		storage := tenants.NewMemoryStorage()
		svc := tenants.NewService(storage, tenants.Config{})

		created, err := svc.Signup(context.Background(), signupParams("Acme Corp"))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, tenants.StatusProvisioning, created.Status)
		assert.Equal(t, "acme-corp", created.Domain)
		assert.False(t, created.SubscriptionActive)

		events, err := svc.Events(context.Background(), created.ID, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, tenants.EventCreated, events[0].Type)
		assert.Equal(t, tenants.StatusProvisioning, events[0].NewStatus)
	})

	t.Run("idempotency token replays the first result", func(t *testing.T) {
		t.Parallel()
		storage := tenants.NewMemoryStorage()
		svc := tenants.NewService(storage, tenants.Config{})

		p := signupParams("Acme Corp")
		p.IdempotencyToken = "tok-1"

		first, err := svc.Signup(context.Background(), p)
		require.NoError(t, err)
		second, err := svc.Signup(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		all, err := svc.List(context.Background(), tenants.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("concurrent retry losing the insert race gets the winner", func(t *testing.T) {
		t.Parallel()
		// The loser's pre-check runs before the winner's row lands, so it
		// misses and the insert hits the unique index instead.
		storage := &racingStorage{MemoryStorage: tenants.NewMemoryStorage(), misses: 2}
		svc := tenants.NewService(storage, tenants.Config{})

		p := signupParams("Acme Corp")
		p.IdempotencyToken = "tok-1"

		winner, err := svc.Signup(context.Background(), p)
		require.NoError(t, err)
		loser, err := svc.Signup(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, winner.ID, loser.ID)

		all, err := svc.List(context.Background(), tenants.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("duplicate name refused", func(t *testing.T) {
		t.Parallel()
		svc := tenants.NewService(tenants.NewMemoryStorage(), tenants.Config{})

		_, err := svc.Signup(context.Background(), signupParams("Acme Corp"))
		require.NoError(t, err)
		_, err = svc.Signup(context.Background(), signupParams("Acme Corp"))
		assert.ErrorIs(t, err, tenants.ErrDuplicateTenant)
	})

	t.Run("explicit domain is normalized", func(t *testing.T) {
		t.Parallel()
		svc := tenants.NewService(tenants.NewMemoryStorage(), tenants.Config{})

		p := signupParams("Acme Corp")
		p.Domain = " Acme-HR "
		created, err := svc.Signup(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, "acme-hr", created.Domain)
	})
}

func TestService_SuspendResume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*tenants.Service, *tenants.MemoryStorage, *clock, *alerts.Hub, *mailer.LogSender, string) {
		t.Helper()
		storage := tenants.NewMemoryStorage()
		clk := newClock()
		hub := alerts.NewHub(alerts.NewMemoryStorage())
		email := mailer.NewLogSender(nil)
		svc := tenants.NewService(storage, tenants.Config{GracePeriodDays: 30},
			tenants.WithClock(clk.now), tenants.WithAlerts(hub), tenants.WithEmailSender(email))

		created, err := svc.Signup(ctx, signupParams("Acme Corp"))
		require.NoError(t, err)
		activate(t, storage, created.ID)
		return svc, storage, clk, hub, email, created.ID
	}

	t.Run("suspend opens the grace period and notifies", func(t *testing.T) {
		t.Parallel()
		svc, storage, clk, hub, email, id := setup(t)

		require.NoError(t, svc.Suspend(ctx, id, "payment failed", "billing"))

		row, err := storage.ByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tenants.StatusSuspended, row.Status)
		assert.False(t, row.SubscriptionActive)
		require.NotNil(t, row.GracePeriodEndsAt)
		assert.Equal(t, clk.now().AddDate(0, 0, 30), *row.GracePeriodEndsAt)

		active, err := hub.List(ctx, alerts.Filter{TenantID: id, Status: alerts.StatusActive})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, alerts.TypeSuspension, active[0].Type)

		sent := email.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "owner@example.test", sent[0].SendTo)
	})

	t.Run("resume within the grace period", func(t *testing.T) {
		t.Parallel()
		svc, storage, clk, hub, _, id := setup(t)
		require.NoError(t, svc.Suspend(ctx, id, "payment failed", "billing"))

		clk.advance(24 * time.Hour)
		require.NoError(t, svc.Resume(ctx, id, "billing"))

		row, err := storage.ByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tenants.StatusActive, row.Status)
		assert.True(t, row.SubscriptionActive)
		assert.Nil(t, row.GracePeriodEndsAt)

		active, err := hub.List(ctx, alerts.Filter{TenantID: id, Status: alerts.StatusActive})
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("expired grace blocks automated resume but not operators", func(t *testing.T) {
		t.Parallel()
		svc, storage, clk, _, _, id := setup(t)
		require.NoError(t, svc.Suspend(ctx, id, "payment failed", "billing"))

		clk.advance(31 * 24 * time.Hour)
		err := svc.Resume(ctx, id, "billing")
		assert.ErrorIs(t, err, tenants.ErrGraceExpired)

		require.NoError(t, svc.Resume(ctx, id, "operator:7f3a"))
		row, err := storage.ByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, tenants.StatusActive, row.Status)
	})

	t.Run("suspend requires an active tenant", func(t *testing.T) {
		t.Parallel()
		storage := tenants.NewMemoryStorage()
		svc := tenants.NewService(storage, tenants.Config{})
		created, err := svc.Signup(ctx, signupParams("Acme Corp"))
		require.NoError(t, err)

		err = svc.Suspend(ctx, created.ID, "payment failed", "billing")
		assert.ErrorIs(t, err, tenants.ErrInvalidTransition)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := tenants.NewMemoryStorage()
	clk := newClock()
	svc := tenants.NewService(storage, tenants.Config{RetentionDays: 90}, tenants.WithClock(clk.now))

	created, err := svc.Signup(ctx, signupParams("Acme Corp"))
	require.NoError(t, err)
	activate(t, storage, created.ID)

	require.NoError(t, svc.Cancel(ctx, created.ID, "customer request", "operator:7f3a"))

	row, err := storage.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, tenants.StatusCancelled, row.Status)
	assert.False(t, row.SubscriptionActive)
	require.NotNil(t, row.ScheduledDeletionAt)
	assert.Equal(t, clk.now().AddDate(0, 0, 90), *row.ScheduledDeletionAt)

	// Cancelling twice is not a valid transition.
	err = svc.Cancel(ctx, created.ID, "again", "operator:7f3a")
	assert.ErrorIs(t, err, tenants.ErrInvalidTransition)
}

func TestService_EventTrail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := tenants.NewMemoryStorage()
	svc := tenants.NewService(storage, tenants.Config{})

	created, err := svc.Signup(ctx, signupParams("Acme Corp"))
	require.NoError(t, err)
	activate(t, storage, created.ID)

	require.NoError(t, svc.Suspend(ctx, created.ID, "payment failed", "billing"))
	require.NoError(t, svc.Resume(ctx, created.ID, "billing"))
	require.NoError(t, svc.RecordPlanChange(ctx, created.ID, "free", "starter", true, "webhook"))
	require.NoError(t, svc.RecordPaymentFailure(ctx, created.ID, "card declined"))

	events, err := svc.Events(ctx, created.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 6) // newest first

	assert.Equal(t, tenants.EventPaymentFailed, events[0].Type)
	assert.Equal(t, tenants.EventUpgraded, events[1].Type)
	assert.Equal(t, map[string]any{"from_plan": "free", "to_plan": "starter"}, events[1].Metadata)
	assert.Equal(t, tenants.EventResumed, events[2].Type)
	assert.Equal(t, tenants.StatusSuspended, events[2].PreviousStatus)
	assert.Equal(t, tenants.StatusActive, events[2].NewStatus)
	assert.Equal(t, tenants.EventSuspended, events[3].Type)
	assert.Equal(t, "payment failed", events[3].Reason)

	// Supplementary events leave the status alone.
	row, err := storage.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, tenants.StatusActive, row.Status)
}

func TestService_Provider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := tenants.NewMemoryStorage()
	cache := tenant.NewMemoryCache()
	t.Cleanup(func() { _ = cache.Close() })
	svc := tenants.NewService(storage, tenants.Config{}, tenants.WithCache(cache))

	created, err := svc.Signup(ctx, signupParams("Acme Corp"))
	require.NoError(t, err)
	activate(t, storage, created.ID)

	info, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, info.ID)
	assert.True(t, info.SubscriptionActive)
	assert.Equal(t, 10, info.MaxEmployees)

	byDomain, err := svc.GetByDomain(ctx, "acme-corp")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byDomain.ID)

	_, err = svc.GetByID(ctx, "999")
	assert.ErrorIs(t, err, tenant.ErrNotFound)

	// A lifecycle write drops the cached snapshot.
	cache.Set(ctx, tenant.KeyByID(created.ID), info, time.Minute)
	require.NoError(t, svc.Suspend(ctx, created.ID, "payment failed", "billing"))
	_, hit := cache.Get(ctx, tenant.KeyByID(created.ID))
	assert.False(t, hit)
}

func TestService_ListActiveTenants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := tenants.NewMemoryStorage()
	svc := tenants.NewService(storage, tenants.Config{})

	a, err := svc.Signup(ctx, signupParams("Acme Corp"))
	require.NoError(t, err)
	activate(t, storage, a.ID)
	_, err = svc.Signup(ctx, signupParams("Beta LLC"))
	require.NoError(t, err)

	refs, err := svc.ListActiveTenants(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, a.ID, refs[0].ID)
	assert.Equal(t, "Acme Corp", refs[0].Name)
}

func TestService_ActivateIsTolerant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	storage := tenants.NewMemoryStorage()
	svc := tenants.NewService(storage, tenants.Config{})

	created, err := svc.Signup(ctx, signupParams("Acme Corp"))
	require.NoError(t, err)

	// Still provisioning: the provisioner owns the transition.
	require.NoError(t, svc.Activate(ctx, created.ID, "webhook"))
	row, err := storage.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, tenants.StatusProvisioning, row.Status)

	activate(t, storage, created.ID)
	require.NoError(t, svc.Activate(ctx, created.ID, "webhook"))

	// A suspended tenant is resumed by the payment signal.
	require.NoError(t, svc.Suspend(ctx, created.ID, "payment failed", "billing"))
	require.NoError(t, svc.Activate(ctx, created.ID, "webhook"))
	row, err = storage.ByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, tenants.StatusActive, row.Status)
}

func TestService_AdminContact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc := tenants.NewService(tenants.NewMemoryStorage(), tenants.Config{})
	created, err := svc.Signup(ctx, signupParams("Acme Corp"))
	require.NoError(t, err)

	email, name, err := svc.AdminContact(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.AdminEmail, email)
	assert.Equal(t, "Owner", name)
}
