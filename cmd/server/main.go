package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docbook/docbook/internal/cache"
	"github.com/docbook/docbook/internal/config"
	v1 "github.com/docbook/docbook/internal/handler/v1"
	"github.com/docbook/docbook/internal/repository"
	"github.com/docbook/docbook/internal/service"
	"github.com/docbook/docbook/pkg/auth"
	"github.com/docbook/docbook/pkg/clock"
	"github.com/docbook/docbook/pkg/database"
	"github.com/docbook/docbook/pkg/logger"
	"github.com/docbook/docbook/pkg/metrics"
	"github.com/docbook/docbook/pkg/tracer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	zl.Info("starting docbook",
		zap.String("env", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	tp, err := tracer.Init(cfg.Tracing, cfg.App.Version)
	if err != nil {
		zl.Fatal("initializing tracer", zap.Error(err))
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		zl.Fatal("connecting to database", zap.Error(err))
	}
	if err := database.Migrate(db, zl); err != nil {
		zl.Fatal("running migrations", zap.Error(err))
	}

	collector := metrics.NewCollector(cfg.App.Name)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if err := database.Instrument(db, collector); err != nil {
		zl.Fatal("instrumenting database", zap.Error(err))
	}
	go database.ReportPoolStats(bgCtx, db, collector)

	var slotCache cache.SlotCache = cache.NewNoopSlotCache()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			zl.Fatal("connecting to redis", zap.Error(err))
		}
		slotCache = cache.NewRedisSlotCache(rdb, cfg.Redis.SlotTTL, zl)
		zl.Info("slot cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	ruleRepo := repository.NewAvailabilityRepository(db)
	apptRepo := repository.NewAppointmentRepository(db)
	eventRepo := repository.NewEventRepository(db)

	eventLog := service.NewEventLog(eventRepo, collector, zl)
	clk := clock.System()

	availabilitySvc := service.NewAvailabilityService(ruleRepo, slotCache, collector, zl)
	slotSvc := service.NewSlotService(ruleRepo, apptRepo, slotCache, clk, collector, zl)
	reservationSvc := service.NewReservationService(apptRepo, eventLog, eventRepo, slotCache, clk, cfg.Reservation, collector, zl)

	reaper := service.NewExpiryReaper(apptRepo, eventLog, slotCache, clk, cfg.Reservation, collector, zl)
	go reaper.Start(bgCtx)

	router := v1.NewRouter(v1.RouterDeps{
		Availability: availabilitySvc,
		Slots:        slotSvc,
		Reservations: reservationSvc,
		JWT:          auth.NewJWTManager(cfg.JWT),
		Config:       cfg,
		Metrics:      collector,
		Logger:       zl,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zl.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}

	stopBackground()
	eventLog.Shutdown()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		zl.Error("tracer shutdown", zap.Error(err))
	}

	zl.Info("server exited")
}
