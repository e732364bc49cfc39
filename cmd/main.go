package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"travelquest/backend/internal/api/handler"
	"travelquest/backend/internal/chathub"
	"travelquest/backend/internal/config"
	"travelquest/backend/internal/localization"
	"travelquest/backend/internal/logger"
	"travelquest/backend/internal/meetup"
	"travelquest/backend/internal/ratelimit"
	"travelquest/backend/internal/storage"
	"travelquest/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newLogger(cfg *config.Config) *logger.Logger {
	var (
		log *logger.Logger
		err error
	)
	if cfg.Development() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		panic(err)
	}
	return log
}

// setupStore opens the configured store and runs migrations.
func setupStore(cfg *config.Config, log *logger.Logger) storage.Storage {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return storage.NewMemory(cfg.MaxTxAttempts)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect PostgreSQL", zap.Error(err))
	}
	if err := storage.AutoMigrate(db); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("database connection established, migrations complete")
	return storage.NewStorageService(db, cfg.MaxTxAttempts)
}

// setupRedis connects to Redis when REDIS_ADDR is set. Without Redis the
// service runs as a single instance: events stay in process and request
// frequency is not limited.
func setupRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, running without rate limiting and cross-instance events")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("failed to connect Redis", zap.Error(err))
	}
	log.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
	return rdb
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	log := newLogger(cfg)
	defer log.Sync()
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn("error loading .env file", zap.Error(envErr))
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting travelquest backend", zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := setupStore(cfg, log)
	rdb := setupRedis(ctx, cfg, log)

	var (
		broker chathub.Broker = chathub.NewLocalBroker()
		quota  ratelimit.Quota = ratelimit.Unlimited{}
	)
	if rdb != nil {
		broker = chathub.NewRedisBroker(rdb, log)
		quota = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow)
	}

	hub := chathub.NewManagerService(broker, log)
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Error("chat hub stopped", zap.Error(err))
			stop()
		}
	}()

	loc, err := localization.NewEmbedded()
	if err != nil {
		log.Fatal("failed to load translations", zap.Error(err))
	}

	auth := handler.NewAuthenticator(cfg.JWTSecret)

	var notifier telegram.Notifier = telegram.Nop{}
	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBotService(cfg.TelegramBotToken, store, auth, loc, log)
		if err != nil {
			log.Fatal("failed to start telegram bot", zap.Error(err))
		}
		notifier = telegram.NewBotNotifier(bot.BotAPI, store, log)
		go bot.Run(ctx)
	}

	svc := meetup.NewService(store, quota, hub, log)

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	h := handler.NewHandler(svc, auth, notifier, loc, log)
	h.Register(r, cfg.AuthDevTokens)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
