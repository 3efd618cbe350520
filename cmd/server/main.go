package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/crewplane/migrations"
	"github.com/dmitrymomot/crewplane/modules/alerts"
	"github.com/dmitrymomot/crewplane/modules/billing"
	"github.com/dmitrymomot/crewplane/modules/directory"
	"github.com/dmitrymomot/crewplane/modules/identity"
	"github.com/dmitrymomot/crewplane/modules/operator"
	"github.com/dmitrymomot/crewplane/modules/tenants"
	"github.com/dmitrymomot/crewplane/modules/usage"
	"github.com/dmitrymomot/crewplane/pkg/archive"
	"github.com/dmitrymomot/crewplane/pkg/clientip"
	"github.com/dmitrymomot/crewplane/pkg/config"
	"github.com/dmitrymomot/crewplane/pkg/httpserver"
	"github.com/dmitrymomot/crewplane/pkg/logger"
	"github.com/dmitrymomot/crewplane/pkg/mailer"
	"github.com/dmitrymomot/crewplane/pkg/pg"
	"github.com/dmitrymomot/crewplane/pkg/ratelimit"
	"github.com/dmitrymomot/crewplane/pkg/redis"
	"github.com/dmitrymomot/crewplane/pkg/requestid"
	"github.com/dmitrymomot/crewplane/pkg/tenant"
	"github.com/dmitrymomot/crewplane/pkg/tenantdb"
	"github.com/dmitrymomot/crewplane/pkg/worker"
)

type appConfig struct {
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ProvisionInterval    time.Duration `env:"PROVISION_POLL_INTERVAL" envDefault:"15s"`
	SweepInterval        time.Duration `env:"DELETION_SWEEP_INTERVAL" envDefault:"1h"`
	WebhookRetryInterval time.Duration `env:"WEBHOOK_RETRY_INTERVAL" envDefault:"1m"`
	UsageScanInterval    time.Duration `env:"USAGE_SCAN_INTERVAL" envDefault:"1h"`

	PaymentFailureThreshold int           `env:"PAYMENT_FAILURE_THRESHOLD" envDefault:"3"`
	UsageSuspendAfter       time.Duration `env:"USAGE_SUSPEND_AFTER" envDefault:"72h"`
	TenantCacheTTL          time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`

	SignupRateLimit  int `env:"SIGNUP_RATE_LIMIT_PER_MIN" envDefault:"10"`
	WebhookRateLimit int `env:"WEBHOOK_RATE_LIMIT_PER_MIN" envDefault:"600"`
	APIRatePerSec    int `env:"API_RATE_PER_SEC" envDefault:"50"`
	APIBurst         int `env:"API_BURST" envDefault:"100"`
}

// scopedTables is the closed set of tenant-scoped tables; everything else
// is control-plane data the guarded builders pass through unfiltered.
var scopedTables = []string{
	"employees", "departments", "positions", "tenant_modules",
	"role_permissions", "usage_metrics", "alerts", "subscriptions",
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		appCfg     appConfig
		pgCfg      pg.Config
		redisCfg   redis.Config
		httpCfg    httpserver.Config
		idCfg      identity.Config
		tenantsCfg tenants.Config
		opCfg      operator.Config
		pmCfg      mailer.PostmarkConfig
		s3Cfg      archive.S3Config
		paddleCfg  billing.PaddleConfig
	)
	for _, err := range []error{
		config.Load(&appCfg), config.Load(&pgCfg), config.Load(&redisCfg),
		config.Load(&httpCfg), config.Load(&idCfg), config.Load(&tenantsCfg),
		config.Load(&opCfg), config.Load(&pmCfg), config.Load(&s3Cfg),
		config.Load(&paddleCfg),
	} {
		if err != nil {
			return err
		}
	}

	log := logger.New(
		logger.WithFormat(logger.Format(appCfg.LogFormat)),
		logger.WithContextExtractors(tenant.LogExtractor(), requestid.LoggerExtractor()),
	)
	slog.SetDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, migrations.FS, pgCfg, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer redisClient.Close() //nolint:errcheck
	tenantCache := tenant.NewRedisCache(redisClient, "tenant")

	var sender mailer.EmailSender
	if pmCfg.ServerToken != "" {
		if sender, err = mailer.NewPostmarkSender(pmCfg); err != nil {
			return err
		}
	} else {
		log.WarnContext(ctx, "postmark not configured, emails go to the log")
		sender = mailer.NewLogSender(log)
	}

	exportStore, err := archive.NewS3Store(ctx, s3Cfg, nil)
	if err != nil {
		return err
	}
	paddle, err := billing.NewPaddleProvider(paddleCfg)
	if err != nil {
		return err
	}

	registry := tenantdb.NewRegistry(scopedTables...)
	store := tenantdb.New(pool, registry)

	hub := alerts.NewHub(alerts.NewPgStorage(store), alerts.WithLogger(log))

	tenantsSvc := tenants.NewService(tenants.NewPgStorage(pool, registry), tenantsCfg,
		tenants.WithCache(tenantCache),
		tenants.WithAlerts(hub),
		tenants.WithEmailSender(sender),
		tenants.WithArchive(exportStore),
		tenants.WithLogger(log),
	)

	catalog := billing.NewCatalog(billing.NewPgPlanStorage(store))
	subs := billing.NewSubscriptions(billing.NewPgSubscriptionStorage(store), catalog,
		billing.WithLifecycle(tenantsSvc),
		billing.WithTenantSource(tenantsSvc),
		billing.WithCacheInvalidator(tenantsSvc),
		billing.WithEmailSender(sender),
		billing.WithSubscriptionsLogger(log),
	)

	auth, err := identity.NewAuth(identity.NewPgUserStorage(pool), idCfg,
		identity.WithEmailSender(sender),
		identity.WithAuthLogger(log),
	)
	if err != nil {
		return err
	}
	permissions := identity.NewPermissions(identity.NewPgPermissionStorage(store))

	counters := &entityCounters{}
	usageSvc := usage.NewService(usage.NewPgStorage(store),
		planLimits{subs: subs, catalog: catalog},
		usage.WithCounters(counters),
		usage.WithLogger(log),
	)
	directorySvc := directory.NewService(directory.NewPgStorage(store),
		directory.WithMeter(usageSvc),
		directory.WithTenantInfo(tenantsSvc),
		directory.WithLogger(log),
	)
	counters.directory = directorySvc
	counters.users = auth

	provisioner := tenants.NewProvisioner(tenantsSvc, subs, catalog, auth,
		tenants.WithSeeders(directorySvc, permissions),
		tenants.WithInvitationSender(sender),
		tenants.WithProvisionerLogger(log),
	)
	sweeper := tenants.NewSweeper(tenantsSvc, log)

	dispatcher := billing.NewDispatcher(subs, tenantsSvc, hub, appCfg.PaymentFailureThreshold, paddle)
	eventStorage := billing.NewPgEventStorage(pool)
	ingestor := billing.NewIngestor(eventStorage, dispatcher, paddle)
	retryTask := billing.NewRetryTask(eventStorage, dispatcher, hub, billing.RetryConfig{}, log)

	scanTask := usage.NewScanTask(usageSvc, tenantsSvc, hub, tenantsSvc, sender,
		usage.ScannerConfig{SuspendAfter: appCfg.UsageSuspendAfter}, log)

	impersonator := operator.NewImpersonator(operator.NewPgGrantStorage(store), opCfg,
		operator.WithImpersonatorLogger(log))
	auditStorage := operator.NewPgAuditStorage(store)
	operatorSvc := operator.NewService(tenantsSvc, usageSvc, hub, auditStorage,
		operator.WithRescanTask(scanTask),
		operator.WithServiceLogger(log),
	)

	tenantsHandler := tenants.NewHandler(tenantsSvc)
	authHandler := identity.NewHandler(auth)
	billingHandler := billing.NewHandler(catalog, subs)
	usageHandler := usage.NewHandler(usageSvc)
	directoryHandler := directory.NewHandler(directorySvc, permissions)
	operatorHandler := operator.NewHandler(operatorSvc, impersonator, auditStorage, log)

	signupLimiter, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(),
		appCfg.SignupRateLimit, time.Minute)
	if err != nil {
		return err
	}
	webhookLimiter, err := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(),
		appCfg.WebhookRateLimit, time.Minute)
	if err != nil {
		return err
	}
	// Per-tenant bucket smooths API bursts without punishing a tenant for
	// its neighbors; unresolved callers fall back to their IP.
	apiLimiter, err := ratelimit.NewTokenBucket(ratelimit.NewMemoryStore(),
		appCfg.APIRatePerSec, time.Second, ratelimit.WithBurst(appCfg.APIBurst))
	if err != nil {
		return err
	}
	byClientIP := ratelimit.KeyFunc(clientip.GetIP)
	byTenant := ratelimit.KeyFunc(func(r *http.Request) string {
		if tc, ok := tenant.FromContext(r.Context()); ok && !tc.IsDefault() {
			return "tenant:" + tc.ID
		}
		return "ip:" + clientip.GetIP(r)
	})

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(log, pg.Healthcheck(pool)))
	r.With(ratelimit.Middleware(webhookLimiter, byClientIP)).
		Post("/webhooks/{provider}", ingestor.HandleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identity.Middleware(auth, impersonator))
		r.Use(tenant.Middleware(tenantsSvc, identity.PrincipalSource(),
			tenant.WithCache(tenantCache),
			tenant.WithCacheTTL(appCfg.TenantCacheTTL)))
		r.Use(ratelimit.Middleware(apiLimiter, byTenant))
		r.Use(meterAPIRequests(usageSvc, log))

		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(signupLimiter, byClientIP))
			tenantsHandler.Routes(r)
		})
		authHandler.Routes(r)
		billingHandler.Routes(r)
		usageHandler.Routes(r)
		directoryHandler.Routes(r)

		r.Route("/admin", operatorHandler.Routes)
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.New(httpCfg, log).Run(ctx, r)
	})
	for _, p := range []*worker.Poller{
		worker.NewPoller("provisioner", appCfg.ProvisionInterval, provisioner.Run,
			worker.WithImmediateRun(), worker.WithLogger(log)),
		worker.NewPoller("deletion-sweeper", appCfg.SweepInterval, sweeper.Run,
			worker.WithLogger(log)),
		worker.NewPoller("webhook-retrier", appCfg.WebhookRetryInterval, retryTask,
			worker.WithImmediateRun(), worker.WithLogger(log)),
		worker.NewPoller("usage-scanner", appCfg.UsageScanInterval, scanTask,
			worker.WithLogger(log)),
	} {
		g.Go(func() error { return p.Run(ctx) })
	}
	return g.Wait()
}

// planLimits resolves a tenant's caps from its open subscription's plan.
// Lives at the composition root so billing stays unaware of the usage
// module's types.
type planLimits struct {
	subs    *billing.Subscriptions
	catalog *billing.Catalog
}

func (p planLimits) LimitsFor(ctx context.Context, tenantID string) (usage.Limits, error) {
	sub, err := p.subs.Current(ctx, tenantID)
	if err != nil {
		return usage.Limits{}, err
	}
	plan, err := p.catalog.PlanByID(ctx, sub.PlanID)
	if err != nil {
		return usage.Limits{}, err
	}
	caps := plan.Caps()
	return usage.Limits{
		MaxEmployees:    caps.MaxEmployees,
		MaxUsers:        caps.MaxUsers,
		MaxStorageBytes: caps.MaxStorageBytes,
		APIPerDay:       caps.APILimitPerDay,
	}, nil
}

// entityCounters joins the directory and identity counts for period row
// seeding. Fields are set after construction to break the usage/directory
// construction cycle.
type entityCounters struct {
	directory *directory.Service
	users     *identity.Auth
}

func (c *entityCounters) CountEmployees(ctx context.Context, tenantID string) (int, error) {
	return c.directory.CountEmployees(ctx, tenantID)
}

func (c *entityCounters) CountUsers(ctx context.Context, tenantID string) (int, error) {
	return c.users.CountUsers(ctx, tenantID)
}

// meterAPIRequests counts every tenant-scoped API call after the handler
// ran. Metering failures are logged, never surfaced to the client.
func meterAPIRequests(svc *usage.Service, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			tc, ok := tenant.FromContext(r.Context())
			if !ok || tc.IsDefault() {
				return
			}
			if err := svc.IncrementAPIRequests(r.Context(), tc.ID); err != nil {
				log.ErrorContext(r.Context(), "api request metering failed",
					slog.Any("error", err))
			}
		})
	}
}
