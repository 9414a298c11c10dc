package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payuz/internal/config"
	"payuz/internal/domain/ports/adapter"
	payAdapters "payuz/internal/infra/adapters/payment"
	pg "payuz/internal/infra/db/postgres"
	"payuz/internal/infra/events"
	httpapi "payuz/internal/infra/http"
	"payuz/internal/infra/logging"
	"payuz/internal/infra/metrics"
	red "payuz/internal/infra/redis"
	"payuz/internal/infra/webhook"
	"payuz/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	orderRepo := pg.NewOrderRepo(pool)
	paymeTxRepo := pg.NewPaymeTransactionRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Redis (optional; lock degrades to row locking without it) ----
	var locker red.Locker
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connect failed")
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
	}

	// ---- Kafka (optional) ----
	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer publisher.Close()
	}

	// ---- Gateways ----
	// In dev mode a vendor with missing credentials is skipped instead of
	// killing the process, and the in-memory noop gateway is added so the
	// merchant endpoints stay exercisable.
	var gateways []adapter.PaymentGateway
	click, err := payAdapters.NewClickGateway(
		cfg.Click.ServiceID, cfg.Click.MerchantID, cfg.Click.MerchantUserID,
		cfg.Click.SecretKey, cfg.Click.TestMode,
	)
	switch {
	case err == nil:
		gateways = append(gateways, click)
	case cfg.Runtime.Dev:
		logger.Warn().Err(err).Msg("click gateway disabled")
	default:
		logger.Fatal().Err(err).Msg("click gateway init failed")
	}
	payme, err := payAdapters.NewPaymeGateway(
		cfg.Payme.PaymeID, cfg.Payme.PaymeKey, cfg.Payme.AccountField, cfg.Payme.TestMode,
	)
	switch {
	case err == nil:
		gateways = append(gateways, payme)
	case cfg.Runtime.Dev:
		logger.Warn().Err(err).Msg("payme gateway disabled")
	default:
		logger.Fatal().Err(err).Msg("payme gateway init failed")
	}
	if cfg.Runtime.Dev {
		gateways = append(gateways, payAdapters.NewNoopGateway())
	}
	paymentUC := usecase.NewPaymentUseCase(orderRepo, gateways, logger)

	// ---- Webhook handlers ----
	clickHandler := webhook.NewClickHandler(
		cfg.Click.ServiceID, cfg.Click.SecretKey,
		orderRepo, tm, locker, cfg.Redis.LockTTL, publisher, logger,
	)
	paymeHandler := webhook.NewPaymeHandler(
		cfg.Payme.PaymeID, cfg.Payme.PaymeKey, cfg.Payme.AccountField,
		orderRepo, paymeTxRepo, tm, locker, cfg.Redis.LockTTL, publisher, logger,
	)

	srv := httpapi.NewServer(cfg.Server, clickHandler, paymeHandler, paymentUC, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("webhook server failed")
		}
	}()

	// ---- Graceful shutdown ----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
}
