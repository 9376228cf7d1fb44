// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, rate limiting and bearer auth.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Respondent routes stay anonymous; everything else requires a JWT
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-survey-backend/docs"
	"github.com/tbourn/go-survey-backend/internal/config"
	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/http/handlers"
	"github.com/tbourn/go-survey-backend/internal/http/middleware"
	"github.com/tbourn/go-survey-backend/internal/repo"
	"github.com/tbourn/go-survey-backend/internal/services"
)

// Deps are the application services shared by the router and the
// background jobs.
type Deps struct {
	Users     *services.UserService
	Surveys   *services.SurveyService
	Invites   *services.InviteService
	Sessions  *services.SessionService
	Analytics *services.AnalyticsService
	Audit     *services.AuditService
	Outbox    *services.OutboxDispatcher
}

// NewDeps builds the services from cfg. The session service's rebuild
// scheduler is left for the caller to attach.
func NewDeps(db *gorm.DB, cfg config.Config, sink services.Sink) Deps {
	sessions := services.NewSessionService(db)
	sessions.IdleAfter = cfg.Session.IdleAfter
	sessions.AbandonAfter = cfg.Session.AbandonAfter
	sessions.BatchSize = cfg.Jobs.SweepBatchSize

	analytics := services.NewAnalyticsService(db)
	analytics.MaxWindowDays = cfg.Analytics.MaxWindowDays
	analytics.ExportMaxRows = cfg.Analytics.ExportMaxRows

	outbox := services.NewOutboxDispatcher(db, sink)
	outbox.BatchSize = cfg.Outbox.BatchSize
	outbox.MaxAttempts = cfg.Outbox.MaxAttempts
	outbox.MaxBackoff = cfg.Outbox.MaxBackoff

	return Deps{
		Users: services.NewUserService(db, services.AdminPolicy{
			Emails:             cfg.Auth.AdminEmails,
			BootstrapFirstUser: cfg.Auth.BootstrapFirstUser,
		}),
		Surveys:   services.NewSurveyService(db),
		Invites:   services.NewInviteService(db, cfg.PublicBaseURL),
		Sessions:  sessions,
		Analytics: analytics,
		Audit:     &services.AuditService{DB: db},
		Outbox:    outbox,
	}
}

// idempotencyStore adapts the repository to handlers.IdempotencyStore.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup proxies repo.GetIdempotency.
func (s idempotencyStore) Lookup(ctx context.Context, actor, scope, key string) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, actor, scope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

// Remember proxies repo.CreateIdempotency. A concurrent duplicate is not an
// error: the first writer's record stands.
func (s idempotencyStore) Remember(ctx context.Context, actor, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, actor, scope, key, resourceID, status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// resolveUser maps a verified token to an application user.
func resolveUser(users *services.UserService) func(context.Context, string, string) (*domain.User, error) {
	return func(ctx context.Context, subject, email string) (*domain.User, error) {
		u, err := users.EnsureUser(ctx, services.Identity{Subject: subject, Email: email})
		if services.CodeOf(err) == services.CodeUnauthorized {
			return nil, middleware.ErrUnauthenticated
		}
		return u, err
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health, metrics and swagger endpoints,
// and then mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: one scrubbed line per request, written after the chain
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per session, invite or IP; bypass on replay)
//  9. CORS and Security headers
//  10. Gzip
//
// Bearer auth is applied per group, so only authoring and admin routes see it.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true
	base := strings.TrimRight(cfg.APIBasePath, "/")

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Access log; invite tokens, ids and contact details are scrubbed
	r.Use(middleware.AccessLog(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", "Idempotency-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, actor, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, actor, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCaller())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{base + "/invites/", base + "/sessions/"},
		EnablePolicy:    true,
	}))

	// 10) Compress JSON and CSV bodies; /metrics negotiates its own encoding.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(handlers.Services{
		Surveys:     deps.Surveys,
		Invites:     deps.Invites,
		Sessions:    deps.Sessions,
		Analytics:   deps.Analytics,
		Audit:       deps.Audit,
		Outbox:      deps.Outbox,
		Idempotency: idempotencyStore{db: db, ttl: cfg.IdempotencyTTL},
	})

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Respondent routes: the invite token and session public id are the
	// only credentials.
	{
		api.GET("/invites/:token", h.ResolveInvite)
		api.POST("/invites/:token/sessions", h.StartSession)
		api.GET("/sessions/:publicId", h.GetSession)
		api.PUT("/sessions/:publicId/answers/:fieldId", h.SaveAnswer)
		api.POST("/sessions/:publicId/submit", h.SubmitSession)
	}

	authed := api.Group("")
	authed.Use(middleware.Auth(middleware.AuthOptions{
		Secret:  []byte(cfg.Auth.JWTSecret),
		Issuer:  cfg.Auth.JWTIssuer,
		Leeway:  30 * time.Second,
		Resolve: resolveUser(deps.Users),
	}))
	{
		// Surveys and versions
		authed.POST("/surveys", h.CreateSurvey)
		authed.GET("/surveys", h.ListSurveys)
		authed.GET("/surveys/:id", h.GetSurvey)
		authed.PATCH("/surveys/:id", h.UpdateSurvey)
		authed.POST("/surveys/:id/versions", h.CreateVersion)
		authed.POST("/surveys/:id/versions/:versionId/publish", h.PublishVersion)

		// Invites
		authed.POST("/surveys/:id/invites", h.CreateInvite)
		authed.GET("/surveys/:id/invites", h.ListInvites)
		authed.POST("/admin/invites/:id/revoke", h.RevokeInvite)

		// Analytics
		authed.GET("/surveys/:id/analytics/funnel", h.Funnel)
		authed.GET("/surveys/:id/analytics/scoring", h.Scoring)
		authed.GET("/surveys/:id/analytics/trend", h.Trend)
		authed.GET("/surveys/:id/analytics/fields", h.Fields)
		authed.GET("/surveys/:id/analytics/fields/:fieldId/answers", h.Answers)
		authed.GET("/surveys/:id/analytics/fields/:fieldId/text", h.TextInsights)
		authed.GET("/surveys/:id/analytics/dropoff", h.Dropoff)
		authed.GET("/surveys/:id/analytics/export.csv", h.ExportCSV)

		// Sessions and audit
		authed.GET("/surveys/:id/sessions/idle", h.IdleSessions)
		authed.GET("/surveys/:id/audit", h.Audit)

		// Admin
		authed.POST("/admin/analytics/rebuild", h.RebuildAnalytics)
		authed.GET("/admin/outbox/failed", h.FailedOutbox)
		authed.POST("/admin/outbox/:id/requeue", h.RequeueOutbox)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
