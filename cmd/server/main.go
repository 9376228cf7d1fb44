// Command server runs the survey backend: the HTTP API, the analytics
// rebuild worker, and the periodic maintenance jobs.
//
// @title                      Survey Backend API
// @version                    1.0
// @description                Survey authoring, anonymous response collection and analytics.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-survey-backend/internal/config"
	httpapi "github.com/tbourn/go-survey-backend/internal/http"
	"github.com/tbourn/go-survey-backend/internal/jobs"
	"github.com/tbourn/go-survey-backend/internal/observability"
	"github.com/tbourn/go-survey-backend/internal/repo"
	"github.com/tbourn/go-survey-backend/internal/services"
	"github.com/tbourn/go-survey-backend/internal/sink"
	"github.com/tbourn/go-survey-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = ""

// idempotencyPurgeInterval is how often expired Idempotency-Key records are
// deleted.
const idempotencyPurgeInterval = time.Hour

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)
	appVersion := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	var out services.Sink
	if cfg.Outbox.RedisURL != "" {
		rs, err := sink.NewRedisSink(ctx, cfg.Outbox.RedisURL, cfg.Outbox.RedisChannel)
		if err != nil {
			log.Fatal().Err(err).Msg("analytics sink")
		}
		defer rs.Close()
		out = rs
		log.Info().Str("channel", rs.Channel()).Msg("analytics outbox publishes to redis")
	} else {
		out = sink.NewLogSink()
		log.Info().Msg("REDIS_URL not set; analytics outbox publishes to the log")
	}

	deps := httpapi.NewDeps(db, cfg, out)

	rebuilds := jobs.NewRebuildQueue(deps.Analytics, cfg.Jobs.RebuildQueueSize)
	deps.Sessions.Rebuilds = rebuilds
	go rebuilds.Run(ctx)

	sched := jobs.NewScheduler(jobs.Maintenance(deps.Sessions, deps.Outbox, deps.Analytics, db, jobs.Intervals{
		IdleSweep:        cfg.Jobs.IdleSweepInterval,
		AbandonSweep:     cfg.Jobs.AbandonSweepInterval,
		OutboxFlush:      cfg.Jobs.OutboxFlushInterval,
		AnalyticsRepair:  cfg.Jobs.AnalyticsRepairInterval,
		IdempotencyPurge: idempotencyPurgeInterval,
	})...)
	sched.Start(ctx)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, cfg, deps)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", appVersion).Int("jobs", len(sched.Jobs())).Msg("survey backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	sched.Wait()
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Int("rebuilds_dropped", rebuilds.Dropped()).Msg("stopped")
}
