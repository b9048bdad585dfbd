package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/quote-api-nosql/internal/config"
	"github.com/quote-api-nosql/internal/infrastructure/dynamo"
	"github.com/quote-api-nosql/internal/infrastructure/feed"
	jwtinfra "github.com/quote-api-nosql/internal/infrastructure/jwt"
	"github.com/quote-api-nosql/internal/infrastructure/push"
	s3infra "github.com/quote-api-nosql/internal/infrastructure/s3"
	"github.com/quote-api-nosql/internal/infrastructure/sns"
	"github.com/quote-api-nosql/internal/notify"
	"github.com/quote-api-nosql/internal/pkg/logger"
	transporthttp "github.com/quote-api-nosql/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err == nil {
		fmt.Println("loaded .env")
	}

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables, log)

	// Redis backs the live change feed. When it is unreachable the feed
	// subscriptions fall back to polling; writes still land in the store.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	publisher := feed.NewPublisher(rdb, log)

	quoteRepo := dynamo.NewQuoteRepo(dynamoClient, cfg.DynamoTables.Quotes, publisher, log)
	notifRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications, publisher, log)
	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users, publisher, log)
	sessionRepo := dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions, log)

	feedAdapter := dynamo.NewFeedAdapter(quoteRepo, notifRepo)
	var source feed.Source
	if err := rdb.Ping(ctx).Err(); err == nil {
		source = feed.NewRedisSource(rdb, feedAdapter, log, cfg.FeedBackoff)
	} else {
		log.Warn("redis unreachable, live feed degraded to polling", zap.Error(err))
		source = feed.NewPollingSource(feedAdapter, log, cfg.PollInterval)
	}

	// JWT provider (optional, auth degrades when keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Warn("jwt provider not available", zap.Error(err))
	}

	// S3 store for policy documents.
	s3Client := s3infra.NewClient(cfg)
	s3Store := s3infra.NewStore(s3Client, cfg.S3BucketName)

	// SNS SMS sender (optional).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Warn("sns sender not available", zap.Error(err))
	}

	// FCM push (optional). Without it the agent alert tier is skipped and
	// alerts land on the foreground or toast tier.
	var pushClient *push.Client
	if cfg.FCMCredentialsPath != "" {
		if c, err := push.NewClient(ctx, cfg.FCMCredentialsPath, log); err == nil {
			pushClient = c
		} else {
			log.Warn("push client not available", zap.Error(err))
		}
	}

	alertCfg := notify.ManagerConfig{
		Users:           userRepo,
		Notifs:          notifRepo,
		Source:          source,
		FreshnessWindow: cfg.FreshnessWindow,
		Log:             log,
	}
	if pushClient != nil {
		alertCfg.Registrar = pushClient
		alertCfg.Sender = pushClient
	}
	alertManager := notify.NewManager(alertCfg)

	deps := &transporthttp.Deps{
		QuoteRepo:        quoteRepo,
		NotificationRepo: notifRepo,
		UserRepo:         userRepo,
		SessionRepo:      sessionRepo,
		S3Store:          s3Store,
		SMSSender:        smsSender,
		StaffAlertPhone:  cfg.StaffAlertPhone,
		JWTProvider:      jwtProvider,
		AlertManager:     alertManager,
		RefreshExpiry:    cfg.RefreshExpiry,
		Log:              log,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		// No write timeout: the notification stream endpoint is long-lived.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("forced shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
