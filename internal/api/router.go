package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/promptlab/internal/analytics"
	"github.com/nikhilbhutani/promptlab/internal/api/handlers"
	"github.com/nikhilbhutani/promptlab/internal/api/middleware"
	"github.com/nikhilbhutani/promptlab/internal/audit"
	"github.com/nikhilbhutani/promptlab/internal/auth"
	"github.com/nikhilbhutani/promptlab/internal/cache"
	"github.com/nikhilbhutani/promptlab/internal/config"
	"github.com/nikhilbhutani/promptlab/internal/database"
	"github.com/nikhilbhutani/promptlab/internal/llm"
	"github.com/nikhilbhutani/promptlab/internal/merge"
	"github.com/nikhilbhutani/promptlab/internal/prompt"
	"github.com/nikhilbhutani/promptlab/internal/run"
	"github.com/nikhilbhutani/promptlab/internal/webhook"
)

type Router struct {
	mux     *chi.Mux
	db      database.DB
	redis   *redis.Client
	cfg     *config.Config
	jwt     *auth.JWTMiddleware
	rbac    *auth.RBAC
	llmGW   llm.Gateway
	cache   cache.Cache
	enqueue webhook.Enqueuer
}

// NewRouter wires the HTTP surface. rdb, c and enqueuer may be nil; health checks,
// metric caching and webhook delivery are then skipped.
func NewRouter(db database.DB, rdb *redis.Client, cfg *config.Config, gw llm.Gateway, c cache.Cache, enqueuer webhook.Enqueuer) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		db:      db,
		redis:   rdb,
		cfg:     cfg,
		jwt:     auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		rbac:    auth.NewRBAC(nil),
		llmGW:   gw,
		cache:   c,
		enqueue: enqueuer,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	rl := middleware.NewRateLimiter(rt.cfg.Server.RateLimitRPS, rt.cfg.Server.RateLimitBurst)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Initialize services
	auditSvc := audit.NewService(rt.db)
	webhookSvc := webhook.NewService(rt.db, rt.enqueue)
	promptSvc := prompt.NewService(rt.db, rt.cfg.Versioning.MaxRetries, auditSvc)
	mergeSvc := merge.NewService(rt.db, rt.cfg.Versioning.MaxRetries, webhookSvc, auditSvc)
	recorder := run.NewRecorder(rt.db)
	executor := run.NewExecutor(promptSvc, recorder, rt.llmGW, rt.cfg.LLM.DefaultModel, rt.cfg.Execution.Timeout)
	analyticsSvc := analytics.NewService(recorder, rt.analyticsOptions())

	promptH := handlers.NewPromptHandler(promptSvc)
	mergeH := handlers.NewMergeRequestHandler(mergeSvc)
	runH := handlers.NewRunHandler(recorder, executor)
	analyticsH := handlers.NewAnalyticsHandler(analyticsSvc)

	read := rt.rbac.RequirePermission(auth.PermPromptsRead)
	write := rt.rbac.RequirePermission(auth.PermPromptsWrite)
	review := rt.rbac.RequirePermission(auth.PermPromptsReview)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		// Prompt and version routes
		r.Route("/prompts", func(r chi.Router) {
			r.With(write).Post("/", promptH.Create)
			r.With(read).Get("/", promptH.List)

			r.Route("/{id}", func(r chi.Router) {
				r.With(read).Get("/", promptH.Get)
				r.With(read).Get("/versions", promptH.ListVersions)
				r.With(write).Post("/versions", promptH.CreateVersion)
				r.With(read).Get("/versions/{version}", promptH.GetVersion)
				r.With(write).Post("/versions/{version}/restore", promptH.Restore)
				r.With(read).Post("/render", promptH.Render)

				r.With(write).Post("/merge-requests", mergeH.Propose)
				r.With(read).Get("/merge-requests", mergeH.List)

				r.With(rt.rbac.RequirePermission(auth.PermRunsExecute)).Post("/execute", runH.Execute)

				r.Group(func(r chi.Router) {
					r.Use(rt.rbac.RequirePermission(auth.PermAnalyticsRead))
					r.Get("/metrics", analyticsH.Performance)
					r.Get("/compare", analyticsH.Compare)
				})
			})
		})

		// Merge request routes
		r.Route("/merge-requests/{mrID}", func(r chi.Router) {
			r.With(read).Get("/", mergeH.Get)
			r.With(read).Get("/diff", mergeH.Diff)
			r.With(review).Post("/accept", mergeH.Accept)
			r.With(review).Post("/reject", mergeH.Reject)
		})

		// Run routes
		r.Route("/runs", func(r chi.Router) {
			r.With(rt.rbac.RequirePermission(auth.PermRunsWrite)).Post("/", runH.Record)
			r.With(read).Get("/", runH.Query)
			r.With(read).Get("/{runID}", runH.Get)
		})

		// Model routes
		modelsH := handlers.NewModelsHandler(rt.llmGW)
		r.With(read).Get("/models", modelsH.List)

		// Webhook routes
		webhookH := handlers.NewWebhookHandler(webhookSvc)
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(rt.rbac.RequirePermission(auth.PermWebhooksManage))
			r.Post("/", webhookH.Create)
			r.Get("/", webhookH.List)
			r.Delete("/{id}", webhookH.Delete)
		})

		// Admin routes
		adminH := handlers.NewAdminHandler(auditSvc)
		r.Route("/admin", func(r chi.Router) {
			r.Use(rt.rbac.RequirePermission(auth.PermAdminRead))
			r.Get("/audit", adminH.AuditLogs)
		})
	})

	return r
}

func (rt *Router) analyticsOptions() analytics.Options {
	loc, err := rt.cfg.Location()
	if err != nil {
		slog.Warn("falling back to UTC for metric buckets", "time_zone", rt.cfg.Metrics.TimeZone, "error", err)
		loc = time.UTC
	}
	return AnalyticsOptions(rt.cfg.Metrics, loc, rt.cache)
}

// AnalyticsOptions maps metrics configuration onto the aggregator.
func AnalyticsOptions(cfg config.MetricsConfig, loc *time.Location, c cache.Cache) analytics.Options {
	policy := analytics.ZeroAsValue
	if cfg.ZeroAsAbsent {
		policy = analytics.ZeroAsAbsent
	}
	return analytics.Options{
		Location: loc,
		Policy:   policy,
		Cache:    c,
		CacheTTL: cfg.CacheTTL,
	}
}
