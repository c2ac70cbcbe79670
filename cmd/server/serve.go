package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warehouse-service/config"
	"warehouse-service/internal/api"
	"warehouse-service/internal/broker"
	"warehouse-service/internal/redisclient"
	"warehouse-service/internal/service"
	"warehouse-service/internal/store"
	"warehouse-service/internal/util"
	"warehouse-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// warehouse serve
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the cache invalidation worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func serve(cfg *config.Config) error {
	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting warehouse service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver))

	decimal.MarshalJSONWithoutQuotes = true

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer("warehouse-service", cfg.Observ.JaegerEndpoint, cfg.Observ.SampleRatio)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	ready := []api.Pinger{db}

	var (
		cache       service.ProductCache     = service.NoCache{}
		idempotency service.IdempotencyStore = service.NoCache{}
		redisClient *redisclient.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		cache, idempotency = redisClient, redisClient
		ready = append(ready, redisClient)
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Warn("REDIS_ADDR not set; product cache and idempotency keys disabled")
	}

	var events service.EventPublisher = broker.NopPublisher{}
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var cacheWorker *worker.ProductCacheWorker
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		if redisClient != nil {
			consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ConsumerGroup)
			cacheWorker = worker.NewProductCacheWorker(consumer, redisClient)
			go func() {
				if err := cacheWorker.Start(workerCtx); err != nil && err != context.Canceled {
					logger.Error("Cache worker error", zap.Error(err))
				}
			}()
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set; domain events disabled")
	}

	orderService := service.NewOrderService(db, cache, idempotency, events)
	productService := service.NewProductService(db, cache, events, cfg.Cache.ProductTTL)
	userService := service.NewUserService(db, orderService)
	authService := service.NewAuthService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, productService, userService, authService, ready...)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if cacheWorker != nil {
		if err := cacheWorker.Stop(); err != nil {
			logger.Warn("Error stopping cache worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
	return nil
}

func openStore(cfg *config.Config) (store.DataStore, error) {
	if cfg.Database.Driver == "memory" {
		util.GetLogger().Warn("Using in-memory store; data is lost on exit")
		return store.NewMemoryStore(), nil
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	util.GetLogger().Info("Database connected")

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
