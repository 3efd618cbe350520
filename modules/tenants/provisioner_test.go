package tenants_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/crewplane/modules/billing"
	"github.com/dmitrymomot/crewplane/modules/identity"
	"github.com/dmitrymomot/crewplane/modules/tenants"
	"github.com/dmitrymomot/crewplane/pkg/mailer"
)

type fakeSubscriptions struct {
	mu      sync.Mutex
	started map[string]int
	err     error
}

func newFakeSubscriptions() *fakeSubscriptions {
	return &fakeSubscriptions{started: make(map[string]int)}
}

func (f *fakeSubscriptions) StartDefault(_ context.Context, tenantID string) (*billing.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.started[tenantID]++
	if f.started[tenantID] > 1 {
		return nil, billing.ErrDuplicateSubscription
	}
	return &billing.Subscription{TenantID: tenantID, PlanID: "free"}, nil
}

type fakePlans struct{}

func (fakePlans) DefaultPlan(context.Context) (billing.Plan, error) {
	return billing.Plan{ID: "free", Name: "Free", MaxEmployees: 10, IsDefault: true}, nil
}

type fakeAdmin struct {
	mu       sync.Mutex
	existing map[string]uuid.UUID
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{existing: make(map[string]uuid.UUID)}
}

func (f *fakeAdmin) EnsureUser(_ context.Context, email, name string, role identity.Role, tenantID string) (*identity.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.existing[email]; ok {
		return &identity.User{ID: id, Email: email, Role: role, TenantID: tenantID}, false, nil
	}
	id := uuid.New()
	f.existing[email] = id
	return &identity.User{ID: id, Email: email, Name: name, Role: role, TenantID: tenantID}, true, nil
}

func (f *fakeAdmin) GenerateResetToken(userID uuid.UUID) (string, error) {
	return "reset-" + userID.String(), nil
}

type fakeSeeder struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func newFakeSeeder() *fakeSeeder {
	return &fakeSeeder{calls: make(map[string]int)}
}

func (f *fakeSeeder) SeedDefaults(_ context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls[tenantID]++
	return nil
}

func (f *fakeSeeder) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func TestProvisioner_Run(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("provisions a signed-up tenant end to end", func(t *testing.T) {
		t.Parallel()
		storage := tenants.NewMemoryStorage()
		svc := tenants.NewService(storage, tenants.Config{})
		subs := newFakeSubscriptions()
		seeder := newFakeSeeder()
		email := mailer.NewLogSender(nil)

		created, err := svc.Signup(ctx, signupParams("Acme Corp"))
		require.NoError(t, err)

		p := tenants.NewProvisioner(svc, subs, fakePlans{}, newFakeAdmin(),
			tenants.WithSeeders(seeder), tenants.WithInvitationSender(email))
		require.NoError(t, p.Run(ctx))

		row, err := storage.ByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, tenants.StatusActive, row.Status)
		assert.True(t, row.SubscriptionActive)
		assert.Equal(t, 10, row.MaxEmployees)
		assert.NotNil(t, row.ProvisionedAt)
		assert.NotNil(t, row.ActivatedAt)

		modules, err := svc.Modules(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, modules, 6)

		assert.Equal(t, 1, seeder.calls[created.ID])
		assert.Equal(t, 1, subs.started[created.ID])

		sent := email.Sent()
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0].BodyHTML, "token=reset-")

		events, err := svc.Events(ctx, created.ID, 0)
		require.NoError(t, err)
		types := make([]tenants.EventType, 0, len(events))
		for _, ev := range events {
			types = append(types, ev.Type)
		}
		assert.Contains(t, types, tenants.EventProvisioningCompleted)
		assert.Contains(t, types, tenants.EventActivated)
	})

	t.Run("failure parks the tenant with the reason, retry completes", func(t *testing.T) {
		t.Parallel()
		storage := tenants.NewMemoryStorage()
		svc := tenants.NewService(storage, tenants.Config{})
		subs := newFakeSubscriptions()
		seeder := newFakeSeeder()
		seeder.setErr(errors.New("defaults table unavailable"))

		created, err := svc.Signup(ctx, signupParams("Acme Corp"))
		require.NoError(t, err)

		p := tenants.NewProvisioner(svc, subs, fakePlans{}, newFakeAdmin(),
			tenants.WithSeeders(seeder))
		require.NoError(t, p.Run(ctx))

		row, err := storage.ByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, tenants.StatusProvisioningFailed, row.Status)
		assert.Contains(t, row.FailureReason, "defaults table unavailable")

		// Operator retry puts the tenant back into the queue; the second
		// run tolerates the already-seeded state.
		_, err = svc.RetryProvisioning(ctx, created.ID, "operator:7f3a")
		require.NoError(t, err)
		row, err = storage.ByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, tenants.StatusProvisioning, row.Status)
		assert.Empty(t, row.FailureReason)

		seeder.setErr(nil)
		require.NoError(t, p.Run(ctx))
		row, err = storage.ByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, tenants.StatusActive, row.Status)
	})

	t.Run("existing admin account still gets the invitation", func(t *testing.T) {
		t.Parallel()
		storage := tenants.NewMemoryStorage()
		svc := tenants.NewService(storage, tenants.Config{})
		admin := newFakeAdmin()
		knownID := uuid.New()
		admin.existing["owner@example.test"] = knownID
		email := mailer.NewLogSender(nil)

		_, err := svc.Signup(ctx, signupParams("Acme Corp"))
		require.NoError(t, err)

		p := tenants.NewProvisioner(svc, newFakeSubscriptions(), fakePlans{}, admin,
			tenants.WithInvitationSender(email))
		require.NoError(t, p.Run(ctx))

		// The known account is linked to the fresh tenant, and its owner
		// receives the activation link like any new admin would.
		sent := email.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "owner@example.test", sent[0].SendTo)
		assert.Contains(t, sent[0].BodyHTML, "token=reset-"+knownID.String())
	})

	t.Run("one failing tenant never blocks the batch", func(t *testing.T) {
		t.Parallel()
		storage := tenants.NewMemoryStorage()
		svc := tenants.NewService(storage, tenants.Config{})
		subs := newFakeSubscriptions()

		bad, err := svc.Signup(ctx, signupParams("Bad Corp"))
		require.NoError(t, err)
		good, err := svc.Signup(ctx, tenants.SignupParams{
			Name: "Good Corp", AdminEmail: "good@example.test", AdminName: "Owner",
		})
		require.NoError(t, err)

		// The seeder fails only for the first tenant.
		selective := &selectiveSeeder{failFor: bad.ID}
		p := tenants.NewProvisioner(svc, subs, fakePlans{}, newFakeAdmin(),
			tenants.WithSeeders(selective))
		require.NoError(t, p.Run(ctx))

		badRow, err := storage.ByID(ctx, bad.ID)
		require.NoError(t, err)
		assert.Equal(t, tenants.StatusProvisioningFailed, badRow.Status)

		goodRow, err := storage.ByID(ctx, good.ID)
		require.NoError(t, err)
		assert.Equal(t, tenants.StatusActive, goodRow.Status)
	})
}

type selectiveSeeder struct {
	failFor string
}

func (s *selectiveSeeder) SeedDefaults(_ context.Context, tenantID string) error {
	if strings.EqualFold(tenantID, s.failFor) {
		return errors.New("seed failed")
	}
	return nil
}
