package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"

	entitlementhandler "verigate/internal/entitlement/handler"
	entmetrics "verigate/internal/entitlement/metrics"
	"verigate/internal/entitlement/ports"
	"verigate/internal/entitlement/reconcile"
	"verigate/internal/entitlement/service/coordinator"
	"verigate/internal/entitlement/service/orders"
	"verigate/internal/entitlement/service/resolver"
	orderstore "verigate/internal/entitlement/store/order"
	jwttoken "verigate/internal/jwt_token"
	"verigate/internal/platform/config"
	"verigate/internal/platform/kafka"
	"verigate/internal/platform/metrics"
	"verigate/internal/platform/postgres"
	"verigate/internal/platform/redis"
	"verigate/internal/verification"
	verificationhandler "verigate/internal/verification/handler"
	"verigate/internal/verification/providers"
	id "verigate/pkg/domain"
	audit "verigate/pkg/platform/audit"
	auditpublisher "verigate/pkg/platform/audit/publisher"
	auditmemory "verigate/pkg/platform/audit/store/memory"
	auditpostgres "verigate/pkg/platform/audit/store/postgres"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/platform/middleware/admin"
	"verigate/pkg/platform/middleware/auth"
	"verigate/pkg/platform/middleware/metadata"
	request "verigate/pkg/platform/middleware/request"
	"verigate/pkg/platform/middleware/requesttime"
)

const (
	auditBufferSize = 1024
	healthTimeout   = 2 * time.Second
)

// infra holds the external connections selected by config.
type infra struct {
	pool  *pgxpool.Pool
	redis *redis.Client
	kafka *kgo.Client

	orderStore ports.OrderStore
	auditStore audit.Store
	recorder   ports.ConsumptionRecorder
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{auditStore: auditmemory.NewInMemoryStore()}

	switch cfg.Store.Backend {
	case config.StorePostgres:
		pool, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		in.pool = pool
		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, pool); err != nil {
				in.Close()
				return nil, err
			}
		}
		in.orderStore = orderstore.NewPostgres(pool)
		in.auditStore = auditpostgres.New(pool)
	case config.StoreRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		in.redis = client
		in.orderStore = orderstore.NewRedis(client.Client)
	default:
		in.orderStore = orderstore.NewInMemory()
		in.recorder = reconcile.NewMemoryRecorder()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := kafka.NewClient(ctx, cfg.Kafka)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.kafka = client
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.ReconcileTopic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			in.Close()
			return nil, err
		}
		recorder, err := reconcile.NewKafkaPublisher(client, cfg.Kafka.ReconcileTopic)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.recorder = recorder
	} else if in.recorder == nil {
		log.Warn("no reconciliation stream configured, uncompensated consumptions go to the audit trail only")
	}
	return in, nil
}

func (in *infra) Close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.pool != nil {
		in.pool.Close()
	}
}

// checks returns the readiness probes for the configured backends.
func (in *infra) checks() map[string]func(context.Context) error {
	checks := make(map[string]func(context.Context) error)
	if in.pool != nil {
		checks["postgres"] = in.pool.Ping
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.kafka != nil {
		checks["kafka"] = in.kafka.Ping
	}
	return checks
}

type app struct {
	router    http.Handler
	publisher *auditpublisher.Publisher
}

func (a *app) Close() {
	a.publisher.Close()
}

func buildApp(cfg *config.Config, in *infra, log *slog.Logger) (*app, error) {
	publisher := auditpublisher.NewPublisher(in.auditStore,
		auditpublisher.WithAsyncBuffer(auditBufferSize),
		auditpublisher.WithLogger(log),
	)

	res, err := resolver.New(in.orderStore, resolver.WithLogger(log))
	if err != nil {
		return nil, err
	}
	coordOpts := []coordinator.Option{
		coordinator.WithLogger(log),
		coordinator.WithAuditPublisher(publisher),
		coordinator.WithMetrics(entmetrics.New()),
		coordinator.WithDebitTimeout(cfg.Ledger.DebitTimeout),
	}
	if in.recorder != nil {
		coordOpts = append(coordOpts, coordinator.WithRecorder(in.recorder))
	}
	coord, err := coordinator.New(in.orderStore, res, coordOpts...)
	if err != nil {
		return nil, err
	}
	orderSvc, err := orders.New(in.orderStore,
		orders.WithLogger(log),
		orders.WithAuditPublisher(publisher),
	)
	if err != nil {
		return nil, err
	}

	registry, err := buildProviders(cfg.Verification)
	if err != nil {
		return nil, err
	}
	policy, err := verification.NewPolicy(cfg.Ledger.Fallbacks, cfg.Verification.ConsentRequired)
	if err != nil {
		return nil, err
	}

	validator := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience))
	router := newRouter(routerDeps{
		logger:       log,
		httpMetrics:  metrics.New(),
		validator:    validator,
		adminToken:   cfg.Admin.Token,
		verification: verificationhandler.New(coord, registry, policy, log),
		entitlements: entitlementhandler.New(orderSvc, log),
		checks:       in.checks(),
	})
	return &app{router: router, publisher: publisher}, nil
}

// buildProviders registers one provider per configured type: the upstream
// API when a base URL is set, the sandbox otherwise.
func buildProviders(cfg config.VerificationConfig) (*providers.Registry, error) {
	types, err := id.ParseVerificationTypes(cfg.Types)
	if err != nil {
		return nil, fmt.Errorf("verification types: %w", err)
	}
	registry := providers.NewRegistry()
	for _, t := range types {
		var p providers.Provider
		if cfg.ProviderBaseURL == "" {
			p = providers.NewSandbox(t, 0)
		} else {
			p, err = providers.NewHTTPProvider("upstream-"+t.String(), t,
				cfg.ProviderBaseURL+"/"+t.String(), cfg.ProviderTimeout,
				providers.WithAPIKey(cfg.ProviderAPIKey),
			)
			if err != nil {
				return nil, err
			}
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

type routerDeps struct {
	logger       *slog.Logger
	httpMetrics  *metrics.Metrics
	validator    auth.JWTValidator
	adminToken   string
	verification *verificationhandler.Handler
	entitlements *entitlementhandler.Handler
	checks       map[string]func(context.Context) error
}

func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(d.httpMetrics.Middleware)

	r.Get("/health", healthHandler(d.checks))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.validator, d.logger))
		d.verification.Register(r)
		d.entitlements.Register(r)
	})

	if d.adminToken != "" {
		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(admin.RequireAdminToken(d.adminToken, d.logger))
			d.entitlements.RegisterAdmin(r)
		})
	}
	return r
}

// healthHandler reports 503 when any backend probe fails.
func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		results := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results["status"] = "degraded"
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
