// Package app assembles the coverline services from configuration. Empty
// backend URLs select in-memory stores and no-op adapters.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"coverline/internal/attachment/delivery"
	"coverline/internal/attachment/filestore"
	attachmenthandler "coverline/internal/attachment/handler"
	attachmentservice "coverline/internal/attachment/service"
	attachmentstore "coverline/internal/attachment/store"
	cataloghandler "coverline/internal/catalog/handler"
	catalogservice "coverline/internal/catalog/service"
	catalogstore "coverline/internal/catalog/store"
	claimhandler "coverline/internal/claim/handler"
	claimmodels "coverline/internal/claim/models"
	claimservice "coverline/internal/claim/service"
	claimstore "coverline/internal/claim/store"
	"coverline/internal/coverage"
	httpapi "coverline/internal/http"
	instrumenthandler "coverline/internal/instrument/handler"
	instrumentservice "coverline/internal/instrument/service"
	instrumentstore "coverline/internal/instrument/store"
	jwttoken "coverline/internal/jwt_token"
	"coverline/internal/platform/aws"
	"coverline/internal/platform/config"
	"coverline/internal/platform/kafka"
	"coverline/internal/platform/metrics"
	"coverline/internal/platform/postgres"
	redisclient "coverline/internal/platform/redis"
	"coverline/internal/premium"
	purchasehandler "coverline/internal/purchase/handler"
	purchaseservice "coverline/internal/purchase/service"
	purchasestore "coverline/internal/purchase/store"
	ratelimit "coverline/internal/ratelimit/middleware"
	ratelimitmodels "coverline/internal/ratelimit/models"
	"coverline/internal/ratelimit/store/bucket"
	usershandler "coverline/internal/users/handler"
	usersservice "coverline/internal/users/service"
	usersstore "coverline/internal/users/store"
	id "coverline/pkg/domain"
	"coverline/pkg/platform/audit"
	"coverline/pkg/platform/audit/publisher"
	auditkafka "coverline/pkg/platform/audit/store/kafka"
	auditmemory "coverline/pkg/platform/audit/store/memory"
	"coverline/pkg/platform/circuit"
)

const (
	jwtAudience     = "coverline-api"
	auditBufferSize = 1024
)

type App struct {
	Router  http.Handler
	closers []func()
}

// Close releases backing connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// infra holds the optional backing services. A nil field selects the
// in-memory or no-op adapter.
type infra struct {
	db       *sql.DB
	redis    *redisclient.Client
	producer *kafka.Producer
	files    attachmentservice.FileStorage
}

// Build connects the configured backends and wires every module onto one
// router. Metrics register on reg, which also serves /metrics.
func Build(ctx context.Context, cfg config.Server, log *slog.Logger, reg *prometheus.Registry) (*App, error) {
	a := &App{}
	inf, err := connect(ctx, cfg, log, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	m := metrics.New(reg)

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if inf.producer != nil {
		auditStore = auditkafka.New(inf.producer, cfg.Kafka.AuditTopic)
	}
	auditor := publisher.NewPublisher(auditStore,
		publisher.WithLogger(log),
		publisher.WithAsyncBuffer(auditBufferSize),
	)
	a.closers = append(a.closers, auditor.Close)

	// Users
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, jwtAudience)
	var userStore usersservice.Store = usersstore.New()
	if inf.db != nil {
		userStore = usersstore.NewPostgres(inf.db)
	}
	users := usersservice.New(userStore, jwtService, cfg.JWTTTL,
		usersservice.WithLogger(log),
		usersservice.WithAuditPublisher(auditor),
	)
	if err := bootstrapAdmin(ctx, users, cfg.BootstrapAdmin); err != nil {
		a.Close()
		return nil, err
	}

	// Catalog
	var catalogStore catalogservice.Store = catalogstore.NewInMemoryStore()
	if inf.db != nil {
		catalogStore = catalogstore.NewPostgres(inf.db)
	}
	catalog := cataloghandler.New(catalogservice.New(catalogStore,
		catalogservice.WithLogger(log),
		catalogservice.WithAuditPublisher(auditor),
	), log)

	// Pricing
	quoterOpts := []premium.Option{
		premium.WithLogger(log),
		premium.WithMetrics(reg),
	}
	if inf.redis != nil {
		quoterOpts = append(quoterOpts, premium.WithCache(premium.NewRedisCache(inf.redis.Client), cfg.QuoteCacheTTL))
	}
	quoter := premium.NewQuoter(quoterOpts...)

	// Instruments, purchases and claims
	var (
		instrumentStore instrumentservice.Store = instrumentstore.NewInMemoryStore()
		purchaseStore   purchaseservice.Store   = purchasestore.NewInMemoryStore()
		tx              coverage.StoreTx        = coverage.NewMemoryTx(cfg.TxTimeout)
	)
	memClaims := claimstore.NewInMemoryStore()
	var (
		claimStore claimservice.Store         = memClaims
		claimIndex purchaseservice.ClaimIndex = memClaims
	)
	if inf.db != nil {
		instrumentStore = instrumentstore.NewPostgres(inf.db)
		purchaseStore = purchasestore.NewPostgres(inf.db)
		pgClaims := claimstore.NewPostgres(inf.db)
		claimStore, claimIndex = pgClaims, pgClaims
		tx = coverage.NewPostgresTx(inf.db, cfg.TxTimeout)
	}

	instruments := instrumentservice.New(instrumentStore, users, quoter,
		instrumentservice.WithLogger(log),
		instrumentservice.WithMetrics(m),
		instrumentservice.WithAuditPublisher(auditor),
		instrumentservice.WithDeletePendingOnCancel(cfg.PendingCancelPolicy == config.PendingCancelDelete),
	)
	purchases := purchaseservice.New(purchaseStore, users, instruments,
		purchaseservice.WithLogger(log),
		purchaseservice.WithMetrics(m),
		purchaseservice.WithAuditPublisher(auditor),
		purchaseservice.WithClaimIndex(claimIndex),
	)
	cov := coverage.New(instruments, purchases, tx,
		coverage.WithLogger(log),
		coverage.WithMetrics(m),
		coverage.WithAuditPublisher(auditor),
	)

	// Attachments
	var (
		documentStore     attachmentservice.DocumentStore     = attachmentstore.NewInMemoryDocumentStore()
		notificationStore attachmentservice.NotificationStore = attachmentstore.NewInMemoryNotificationStore()
		deliverer         attachmentservice.Deliverer         = delivery.Noop{}
	)
	if inf.db != nil {
		documentStore = attachmentstore.NewPostgresDocumentStore(inf.db)
		notificationStore = attachmentstore.NewPostgresNotificationStore(inf.db)
	}
	if inf.producer != nil {
		deliverer = delivery.NewKafka(inf.producer, cfg.Kafka.NotificationTopic)
	}
	attachmentOpts := []attachmentservice.Option{
		attachmentservice.WithLogger(log),
		attachmentservice.WithMetrics(m),
		attachmentservice.WithAuditPublisher(auditor),
	}

	// The claim service needs a notifier and the attachment services need
	// the claim service, so notifications resolve claims through a late
	// bound lookup.
	claimLookup := &claimResolver{}
	notifications := attachmentservice.NewNotificationService(notificationStore, deliverer, users, claimLookup, attachmentOpts...)
	claims := claimservice.New(claimStore, purchases, users,
		claimservice.WithLogger(log),
		claimservice.WithMetrics(m),
		claimservice.WithAuditPublisher(auditor),
		claimservice.WithNotifier(notifications),
	)
	claimLookup.claims = claims
	documents := attachmentservice.NewDocumentService(documentStore, inf.files, users, claims, attachmentOpts...)

	attachments := attachmenthandler.New(documents, notifications, claims, log)
	claimRoutes := claimhandler.New(claims, log)

	accounts := usershandler.New(users, log)
	limiter := rateLimiter(cfg.RateLimit, inf, log, m)

	a.Router = httpapi.NewRouter(httpapi.Config{
		Logger:           log,
		Metrics:          m,
		Gatherer:         reg,
		Validator:        jwttoken.NewJWTServiceAdapter(jwtService),
		Public:           []httpapi.Routes{accounts},
		PublicMiddleware: []func(http.Handler) http.Handler{limiter.RateLimit(ratelimitmodels.ClassAuth)},
		Protected:        []httpapi.Routes{
			instrumenthandler.New(instruments, cov, quoter, log),
			purchasehandler.New(purchases, cov, log),
			claimRoutes,
			attachments,
			catalog,
		},
		Admin:  []httpapi.AdminRoutes{claimRoutes, attachments, accounts, catalog},
		Health: healthChecks(inf),
	})
	return a, nil
}

// bootstrapAdmin seeds the configured admin. Self-registered admins start
// inactive, so without it nobody could activate them.
func bootstrapAdmin(ctx context.Context, users *usersservice.Service, cfg config.BootstrapAdmin) error {
	if cfg.Email == "" {
		return nil
	}
	if cfg.Password == "" {
		return fmt.Errorf("bootstrap admin %s: ADMIN_BOOTSTRAP_PASSWORD is required", cfg.Email)
	}
	if _, err := users.EnsureAdmin(ctx, cfg.Name, cfg.Email, cfg.Password); err != nil {
		return fmt.Errorf("bootstrap admin %s: %w", cfg.Email, err)
	}
	return nil
}

// connect opens every configured backing service and registers its closer.
func connect(ctx context.Context, cfg config.Server, log *slog.Logger, a *App) (*infra, error) {
	inf := &infra{}

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		inf.db = db
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.closers = append(a.closers, func() { _ = client.Close() })
		inf.redis = client
	}

	producer, err := kafka.New(cfg.Kafka.Brokers)
	if err != nil {
		return nil, err
	}
	if producer != nil {
		a.closers = append(a.closers, producer.Close)
		if err := producer.EnsureTopics(ctx, cfg.Kafka.AuditTopic, cfg.Kafka.NotificationTopic); err != nil {
			return nil, fmt.Errorf("ensure kafka topics: %w", err)
		}
		inf.producer = producer
	}

	if cfg.Documents.Bucket != "" {
		s3Client, err := aws.NewS3Client(ctx, cfg.Documents)
		if err != nil {
			return nil, err
		}
		inf.files = filestore.NewS3(s3Client, cfg.Documents.Bucket, cfg.Documents.PresignTTL)
	} else {
		inf.files = filestore.NewMemory(cfg.Documents.PresignTTL)
	}
	return inf, nil
}

// rateLimiter counts in Redis when it is configured and falls back to a
// per-process window while Redis keeps failing.
func rateLimiter(cfg config.RateLimitConfig, inf *infra, log *slog.Logger, m *metrics.Metrics) *ratelimit.Middleware {
	limits := map[ratelimitmodels.Class]ratelimitmodels.Limit{
		ratelimitmodels.ClassAuth: {Requests: cfg.AuthRequests, Window: cfg.AuthWindow},
	}
	opts := []ratelimit.Option{
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
		ratelimit.WithDisabled(cfg.Disabled),
	}
	if inf.redis == nil {
		return ratelimit.New(bucket.NewInMemoryStore(), limits, opts...)
	}
	opts = append(opts, ratelimit.WithFallback(bucket.NewInMemoryStore(), circuit.New("ratelimit-redis")))
	return ratelimit.New(bucket.NewRedisStore(inf.redis.Client), limits, opts...)
}

func healthChecks(inf *infra) map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if inf.db != nil {
		checks["postgres"] = inf.db.PingContext
	}
	if inf.redis != nil {
		checks["redis"] = inf.redis.Health
	}
	if inf.producer != nil {
		checks["kafka"] = inf.producer.Health
	}
	return checks
}

// claimResolver defers claim lookups to a service built after its callers.
type claimResolver struct {
	claims *claimservice.Service
}

func (r *claimResolver) GetByID(ctx context.Context, claimID id.ClaimID) (*claimmodels.Claim, error) {
	return r.claims.GetByID(ctx, claimID)
}
