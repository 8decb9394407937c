package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glowgrid/spa-booking-engine/internal/api"
	"github.com/glowgrid/spa-booking-engine/internal/booking"
	"github.com/glowgrid/spa-booking-engine/internal/config"
	"github.com/glowgrid/spa-booking-engine/internal/db"
	"github.com/glowgrid/spa-booking-engine/internal/events"
	"github.com/glowgrid/spa-booking-engine/internal/license"
	"github.com/glowgrid/spa-booking-engine/internal/observability/metrics"
	redisclient "github.com/glowgrid/spa-booking-engine/internal/redis"
	"github.com/glowgrid/spa-booking-engine/pkg/logging"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewClient(redisclient.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
	})
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	bookingMetrics := metrics.NewBookingMetrics(nil)

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewProviderLocker(rdb, cfg.LockTTL, cfg.LockAcquireTimeout)
	outbox := events.NewOutboxStore(pgPool)

	licenseStore := license.NewPgStore(pgPool)
	board := license.NewHTTPBoard(cfg.StateBoardURL, cfg.LicenseLookupTimeout)
	catalog := booking.DefaultCatalog()
	registry := license.NewRegistry(board, licenseStore, licenseStore, rdb,
		licenseRequirements(catalog),
		license.Config{
			CacheTTL:         cfg.LicenseCacheTTL,
			LookupTimeout:    cfg.LicenseLookupTimeout,
			ExpiryWarnWindow: time.Duration(cfg.LicenseExpiryWarnDays) * 24 * time.Hour,
		},
		bookingMetrics, logger)

	coordinator := booking.NewCoordinator(booking.CoordinatorConfig{
		Repo:     repo,
		Locker:   locker,
		Licenses: registry,
		Catalog:  catalog,
		Notifier: outbox,
		Metrics:  bookingMetrics,
		Logger:   logger,
	})
	rescheduler := booking.NewRescheduleCoordinator(coordinator)
	stateMachine := booking.NewStateMachine(repo, logger)

	router := api.NewRouter(api.RouterConfig{
		Bookings:     coordinator,
		Reschedules:  rescheduler,
		Transitions:  stateMachine,
		Appointments: repo,
		PgPool:       pgPool,
		Redis:        rdb,
		Env:          cfg.Env,
		Version:      version,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}

// licenseRequirements projects the service catalog onto what the license
// registry needs to know per service type.
func licenseRequirements(catalog booking.ServiceCatalog) map[string]license.ServiceRequirements {
	reqs := make(map[string]license.ServiceRequirements, len(catalog))
	for serviceType, def := range catalog {
		reqs[serviceType] = license.ServiceRequirements{
			LicenseType:    def.RequiredLicenseType,
			Certifications: def.RequiredCertifications,
		}
	}
	return reqs
}
