package main // Entry point package

import (
	"context"
	"errors"
	"log" // used until the zap logger exists
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/event-seat-reservation/internal/clock"
	"github.com/iliyamo/event-seat-reservation/internal/config"
	"github.com/iliyamo/event-seat-reservation/internal/database"
	"github.com/iliyamo/event-seat-reservation/internal/handler"
	"github.com/iliyamo/event-seat-reservation/internal/middleware"
	"github.com/iliyamo/event-seat-reservation/internal/queue"
	"github.com/iliyamo/event-seat-reservation/internal/repository"
	"github.com/iliyamo/event-seat-reservation/internal/router"
	"github.com/iliyamo/event-seat-reservation/internal/service"
	"github.com/iliyamo/event-seat-reservation/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load() // Load environment config

	logger, err := config.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// signals stop intake; workers keep running until in-flight settlements are out
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(sigCtx, database.Config{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnectAttempts: cfg.DBConnAttempts,
	}, logger)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	rdb := config.NewRedisClient(logger) // nil disables caches and the limiter
	if rdb != nil {
		defer rdb.Close()
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	var workers sync.WaitGroup

	clk := clock.NewSystem()
	events := repository.NewEventRepo(db)
	seats := repository.NewSeatRepo(db)

	eventSvc := service.NewEventService(events, seats, clk, cfg.SeatPrice, logger)

	var publisher service.SettlementPublisher
	var amqpPub *queue.Publisher
	if cfg.RabbitEnabled {
		amqpPub = queue.NewPublisher(cfg.RabbitURL, logger)
		publisher = amqpPub
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := queue.StartSettlementConsumer(workerCtx, cfg.RabbitURL, eventSvc.HandleSettlement, logger); err != nil &&
				!errors.Is(err, context.Canceled) {
				logger.Error("settlement consumer stopped", zap.Error(err))
			}
		}()
	} else {
		dispatcher := queue.NewLocalDispatcher(0, eventSvc.HandleSettlement, logger)
		publisher = dispatcher
		workers.Add(1)
		go func() {
			defer workers.Done()
			dispatcher.Run(workerCtx)
		}()
	}

	coord := service.NewCoordinator(seats, events, clk, publisher, logger)

	sweeper := worker.NewExpirySweeper(seats, coord, clk, worker.SweeperConfig{
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	}, logger)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Start(sigCtx)
	}()

	auth, err := service.NewAuthService(repository.NewUserRepo(db), repository.NewTokenRepo(db), service.AuthConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  time.Duration(cfg.AccessTTLMin) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
		BcryptCost: cfg.BcryptCost,
	}, clk, logger)
	if err != nil {
		logger.Fatal("init auth", zap.Error(err))
	}
	caps := service.NewCapabilityResolver(repository.NewPrivilegeRepo(db), rdb, cfg.CapabilityTTL, logger)
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, logger)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger.Named("http")))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(auth, logger))
	router.RegisterPublic(e, handler.NewPublicEventHandler(eventSvc, logger), cache)
	router.RegisterAdmin(e, handler.NewAdminEventHandler(eventSvc, cache, logger), cfg.JWTSecret, caps, logger)
	router.RegisterSeats(e, handler.NewSeatHandler(coord, seats, cfg.HoldTTL, logger), cfg.JWTSecret, caps, limiter, logger)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.Bool("rabbitmq", cfg.RabbitEnabled), zap.Bool("redis", rdb != nil))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-sigCtx.Done()
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	<-sweepDone
	if err := coord.Wait(ctx); err != nil {
		logger.Warn("settlement publishes abandoned", zap.Error(err))
	}
	stopWorkers()
	workers.Wait()
	if amqpPub != nil {
		if err := amqpPub.Close(); err != nil {
			logger.Warn("close publisher", zap.Error(err))
		}
	}
	logger.Info("stopped")
}
