package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/neighborhood/facility-booking/internal/cache"
	"github.com/neighborhood/facility-booking/internal/config"
	"github.com/neighborhood/facility-booking/internal/database"
	"github.com/neighborhood/facility-booking/internal/handler"
	"github.com/neighborhood/facility-booking/internal/lock"
	"github.com/neighborhood/facility-booking/internal/logging"
	"github.com/neighborhood/facility-booking/internal/middleware"
	"github.com/neighborhood/facility-booking/internal/model"
	"github.com/neighborhood/facility-booking/internal/queue"
	"github.com/neighborhood/facility-booking/internal/repository"
	"github.com/neighborhood/facility-booking/internal/router"
	"github.com/neighborhood/facility-booking/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real environment wins
	cfg := config.Load()
	logging.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)

	store, facilities, db := openStore(cfg)
	if db != nil {
		defer db.Close()
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	opts := service.Options{
		Locker:         admissionLocker(cfg, rdb),
		Clock:          service.RealClock{},
		Location:       cfg.Location,
		AllowPastDates: cfg.Admission.AllowPastDates,
	}
	listing := cache.NewListing(config.LoadListingCacheConfig(), rdb)
	if listing != nil {
		opts.Cache = listing
	}
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL)
		defer pub.Close()
		opts.Events = pub
	} else {
		log.Info().Msg("RABBITMQ_URL not set, reservation events disabled")
	}

	admission := service.NewAdmissionController(store, facilities, opts)
	lifecycle := service.NewLifecycleManager(store, opts)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger())

	var pinger handler.Pinger
	if db != nil {
		pinger = db
	}
	router.RegisterRoutes(e, pinger)
	router.RegisterReservations(e, handler.NewReservationHandler(admission, lifecycle), router.ReservationDeps{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.RateLimit(config.LoadRateLimitConfig(), rdb),
		Cache: func(key middleware.DayKeyFunc) echo.MiddlewareFunc {
			return middleware.CacheByDay(listing, key)
		},
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreBackend).
			Str("lock", cfg.Admission.LockBackend).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("stopped")
}

// openStore returns the reservation store, the facility directory and, for
// the MySQL backend, the database handle to close on exit.
func openStore(cfg config.Config) (repository.ReservationStore, repository.FacilityDirectory, *sql.DB) {
	if cfg.StoreBackend == config.StoreMemory {
		mem := repository.NewMemoryStore()
		now := time.Now().UTC()
		for _, f := range cfg.MemoryFacilities {
			mem.PutFacility(model.Facility{ID: f.ID, Name: f.Name, Capacity: f.Capacity, Status: model.FacilityActive, UpdatedAt: now})
		}
		log.Warn().Int("facilities", len(cfg.MemoryFacilities)).Msg("using in-memory store; data is lost on restart")
		return mem, mem, nil
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
	}
	if err := database.VerifySchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("schema check failed")
	}
	return repository.NewReservationRepo(db), repository.NewFacilityRepo(db), db
}

func admissionLocker(cfg config.Config, rdb *redis.Client) lock.Locker {
	if cfg.Admission.LockBackend != config.LockRedis {
		return lock.NewKeyedMutex()
	}
	if rdb == nil {
		log.Fatal().Msg("ADMISSION_LOCK_BACKEND=redis but redis is unavailable")
	}
	return lock.NewRedisLocker(rdb, "booking:lock", cfg.Admission.LockTTL, cfg.Admission.LockWait)
}
