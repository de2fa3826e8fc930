package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/phonegate/phonegate/internal/config"
	"github.com/phonegate/phonegate/internal/handlers"
	"github.com/phonegate/phonegate/internal/middleware"
	"github.com/phonegate/phonegate/internal/ratelimit"
	"github.com/phonegate/phonegate/internal/service"
	"github.com/phonegate/phonegate/internal/sms"
	"github.com/phonegate/phonegate/internal/store"
	"github.com/phonegate/phonegate/internal/store/dynamo"
	"github.com/phonegate/phonegate/internal/store/memory"
	"github.com/phonegate/phonegate/internal/token"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	recordStore, cleanup, err := initRecordStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize record store")
	}
	defer cleanup()

	counters, err := initCounters(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize rate-limit counters")
	}

	limiter := ratelimit.New(counters, ratelimit.Config{
		PhoneMax:     cfg.RateLimit.PhoneMax,
		IPMax:        cfg.RateLimit.IPMax,
		GlobalMax:    cfg.RateLimit.GlobalMax,
		Window:       cfg.RateLimit.Window,
		FanoutMax:    cfg.RateLimit.FanoutMax,
		FanoutWindow: cfg.RateLimit.FanoutWindow,
	}, logger)

	transport := sms.NewTwilioTransport(
		cfg.SMS.AccountSID,
		cfg.SMS.AuthToken,
		cfg.SMS.FromNumber,
		cfg.SMS.SendTimeout,
		logger,
	)

	otpService := service.New(recordStore, limiter, transport, &cfg.OTP, cfg.SMS.ProductName, logger)

	issuer, err := token.NewIssuer(&cfg.JWT, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize token issuer")
	}

	authHandlers := handlers.NewAuthHandlers(otpService, issuer, logger)
	authMiddleware := middleware.NewAuthMiddleware(issuer, logger)
	router := handlers.NewRouter(authHandlers, authMiddleware, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initRecordStore(cfg *config.Config, logger *logrus.Logger) (store.RecordStore, func(), error) {
	switch cfg.Store.RecordBackend {
	case "dynamo":
		client, err := initDynamoDB(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return dynamo.New(client, cfg.DynamoDB.TableName, logger), func() {}, nil
	default:
		s := memory.New(logger)
		s.StartSweep(time.Minute)
		logger.Info("In-memory record store initialized")
		return s, s.Close, nil
	}
}

func initCounters(cfg *config.Config, logger *logrus.Logger) (ratelimit.CounterStore, error) {
	if cfg.Store.CounterBackend != "redis" {
		logger.Info("In-memory rate-limit counters initialized")
		return ratelimit.NewMemoryCounters(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis rate-limit counters initialized")
	return ratelimit.NewRedisCounters(client), nil
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}
