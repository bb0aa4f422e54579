package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/audit"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/authz"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/cache"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/database"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/ha"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/jobs"
	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/override"
)

// app holds the wired components of a running server.
type app struct {
	cfg        serverConfig
	logger     *slog.Logger
	db         *gorm.DB
	auditStore *audit.Store
	validator  *override.Validator
	service    *override.Service
	authorizer authz.Authorizer
	reports    *cache.ReportCache
	sweeper    *jobs.Sweeper
	retention  *audit.RetentionWorker
	elector    *ha.Elector
	registry   *prometheus.Registry
	tracer     *sdktrace.TracerProvider
	wg         sync.WaitGroup
}

func newApp(ctx context.Context, cfg serverConfig, logger *slog.Logger) (*app, error) {
	db, err := database.Open(database.Config{Type: cfg.DBType, DSN: cfg.DBDSN, LogLevel: cfg.DBLogLevel}.ConfigFromEnv())
	if err != nil {
		return nil, err
	}
	models := append(override.Models(), audit.Models()...)
	if err := database.Migrate(ctx, db, models...); err != nil {
		return nil, err
	}

	rules, err := override.LoadConfig(cfg.RulesPath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := override.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	haCfg := ha.ConfigFromEnv()
	mode := authz.AuthzMode(cfg.AuthzMode)
	var kube kubernetes.Interface
	if haCfg.Enabled || mode == authz.AuthzModeSAR {
		if kube, err = ha.NewInClusterClient(); err != nil {
			return nil, err
		}
	}

	authorizer, err := authz.NewAuthorizer(mode, authz.Options{
		PolicyPath:  cfg.AuthzPolicy,
		Client:      kube,
		Namespace:   cfg.AuthzNamespace,
		DecisionTTL: cfg.AuthzCacheTTL,
	})
	if err != nil {
		return nil, err
	}

	tp, err := newTracerProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		auditStore: audit.NewStore(db),
		validator:  override.NewValidator(rules),
		authorizer: authorizer,
		reports:    cache.NewReportCache(cache.CacheConfigFromEnv()),
		registry:   registry,
		tracer:     tp,
		elector:    ha.NewElector(haCfg, kube, logger),
	}
	a.service = override.NewService(db, a.auditStore,
		override.WithLogger(logger),
		override.WithValidator(a.validator),
		override.WithMetrics(metrics),
		override.WithTracer(tp.Tracer("override")),
		override.WithCommitHook(func(override.Action, string) { a.reports.Invalidate() }),
	)
	a.sweeper = jobs.NewSweeper(a.service, jobs.SweepConfigFromEnv(), logger)
	a.retention = audit.NewRetentionWorker(a.auditStore, audit.ConfigFromEnv(), logger)

	logger.Info("override engine initialized",
		"db", db.Dialector.Name(),
		"authz", cfg.AuthzMode,
		"rules", cfg.RulesPath,
		"reportCache", a.reports != nil)
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *app) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", authz.UserHeader, authz.GroupHeader},
		ExposedHeaders:   []string{"X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", a.healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(authz.IdentityMiddleware())
		r.Mount("/overrides", override.NewRouter(a.service, a.authorizer,
			override.WithReportMiddleware(a.reports.Middleware())))
		r.Mount("/audit", audit.Router(a.auditStore, a.authorizer))
		r.Mount("/jobs", jobs.Router(a.sweeper, a.authorizer))
	})
	return r
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		status, code = "database unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "leader": a.elector.IsLeader()})
}

// startBackground runs the expiry sweeper and the audit retention worker
// on the elected replica until ctx is cancelled.
func (a *app) startBackground(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.elector.Run(ctx, a.runSingletons); err != nil {
			a.logger.Error("leader election stopped", "error", err)
		}
	}()
}

func (a *app) runSingletons(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.sweeper.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.retention.Run(ctx)
	}()
	wg.Wait()
}

// watchRules reloads the rules file into the shared validator whenever it
// changes. A file that fails to load leaves the previous rules active.
func (a *app) watchRules(path string) error {
	w := viper.New()
	w.SetConfigFile(path)
	w.SetConfigType("yaml")
	if err := w.ReadInConfig(); err != nil {
		return err
	}
	w.OnConfigChange(func(e fsnotify.Event) { a.reloadRules(e.Name) })
	w.WatchConfig()
	return nil
}

func (a *app) reloadRules(path string) {
	rules, err := override.LoadConfig(path)
	if err != nil {
		a.logger.Error("override rules reload failed; keeping previous rules", "path", path, "error", err)
		return
	}
	a.validator.SetConfig(rules)
	a.reports.Invalidate()
	a.logger.Info("override rules reloaded", "path", path)
}

// Wait blocks until the background workers have stopped.
func (a *app) Wait() { a.wg.Wait() }

// Close releases the database and flushes traces.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Error("tracer shutdown error", "error", err)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
