package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/aradsms/wa_gateway/internal/platform/circuitbreaker"
	"github.com/aradsms/wa_gateway/internal/platform/config"
	"github.com/aradsms/wa_gateway/internal/platform/database"
	"github.com/aradsms/wa_gateway/internal/platform/eventbus"
	"github.com/aradsms/wa_gateway/internal/platform/graphapi"
	"github.com/aradsms/wa_gateway/internal/platform/logger"
	"github.com/aradsms/wa_gateway/internal/platform/messagebroker"
	"github.com/aradsms/wa_gateway/internal/platform/settings"
	jobapp "github.com/aradsms/wa_gateway/internal/scheduler_service/app"
	jobpostgres "github.com/aradsms/wa_gateway/internal/scheduler_service/repository/postgres"
	httpadapter "github.com/aradsms/wa_gateway/internal/webhook_service/adapters/http"
	"github.com/aradsms/wa_gateway/internal/webhook_service/app"
	"github.com/aradsms/wa_gateway/internal/webhook_service/domain"
	"github.com/aradsms/wa_gateway/internal/webhook_service/intent"
	claimpostgres "github.com/aradsms/wa_gateway/internal/webhook_service/repository/postgres"
)

const (
	serviceName       = "webhook-service"
	shutdownTimeout   = 10 * time.Second
	limiterSweepEvery = time.Minute
	claimRetention    = 7 * 24 * time.Hour
	claimPruneEvery   = time.Hour
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, v, err := config.Load(serviceName)
	if err != nil {
		logger.New("info").Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel).With("service", serviceName)
	log.Info("Starting service...")

	if cfg.WebhookAppSecret == "" {
		log.Warn("WEBHOOK_APP_SECRET is empty; every webhook delivery will be rejected")
	}
	if cfg.UsesDefaultAdminSecret() {
		log.Warn("ADMIN_JWT_SECRET is unset or the built-in placeholder; anyone can mint admin tokens for /admin")
	}

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("Database connection pool initialized")

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, log)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	log.Info("NATS connection initialized")

	// Repositories
	jobRepo := jobpostgres.NewPgJobRepository(dbPool, log)
	claimStore := claimpostgres.NewPgIdempotencyStore(dbPool, log)
	breakerStore := circuitbreaker.NewPgStateStore(dbPool, log)

	// Circuit breakers, mirrored into the gRPC health service
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThresh,
		Cooldown:         cfg.BreakerCooldown,
		IsFailure:        graphapi.IsTransient,
	}, breakerStore, log)
	graphBreaker := breakers.Get(cfg.BreakerServiceName)
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	circuitbreaker.BindHealth(mainCtx, breakers, healthServer)

	graphClient := graphapi.NewClient(graphapi.Config{
		BaseURL:     cfg.GraphAPIBaseURL,
		AccessToken: cfg.GraphAPIToken,
		Timeout:     cfg.GraphAPITimeout,
		MaxAttempts: cfg.GraphAPIMaxAttempts,
	}, log, graphapi.WithBreaker(graphBreaker))

	// Job queue and event bus
	queue := jobapp.NewQueue(jobRepo, log, eventbus.AsyncHook)
	bus := eventbus.New(log)
	bus.AttachQueue(queue)

	relay := eventbus.NewNATSRelay(natsClient, cfg.NATSEventSubjectPrefix, log)
	if !relay.Register(bus) {
		log.Error("Failed to register NATS event relay")
		os.Exit(1)
	}

	if cfg.MarkMessagesRead {
		receipts := app.NewReadReceiptHandler(graphClient, cfg.GraphPhoneNumberID, log)
		if !receipts.Register(bus) {
			log.Error("Failed to register read receipt handler")
			os.Exit(1)
		}
		// Graph calls run in the worker, never on the webhook request path.
		bus.ConfigureAsync(domain.EventMessages, 0, 0)
		log.Info("Read receipts enabled", "phone_number_id", cfg.GraphPhoneNumberID)
	}

	worker := jobapp.NewWorker(jobRepo, log, jobapp.WorkerConfig{
		PollingInterval:   cfg.SchedulerPollInterval,
		JobBatchSize:      cfg.SchedulerJobBatchSize,
		Concurrency:       cfg.SchedulerWorkers,
		VisibilityTimeout: cfg.SchedulerVisibility,
	})
	worker.Register(eventbus.AsyncHook, bus.HandleAsyncJob)

	// HTTP ingress
	sp := settings.NewViperProvider(v)
	validate := validator.New()
	limiter := httpadapter.NewRateLimiter(sp)
	processor := app.NewProcessor(claimStore, bus, intent.NewClassifier(), log)
	webhookHandler := httpadapter.NewWebhookHandler(sp, limiter, processor, validate, log, cfg.WebhookMaxBodyBytes)
	adminHandler := httpadapter.NewAdminHandler(queue, breakers, validate, cfg.AdminJWTSecret, log)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(webhookHandler, adminHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("Starting HTTP server...", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			return err
		}
		log.Info("HTTP server stopped gracefully.")
		return nil
	})

	g.Go(func() error {
		log.Info("Starting metrics server...", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		grpcListenAddress := fmt.Sprintf(":%d", cfg.GRPCHealthPort)
		log.Info("Starting gRPC health server...", "address", grpcListenAddress)
		lis, err := net.Listen("tcp", grpcListenAddress)
		if err != nil {
			log.Error("Failed to listen for gRPC", "error", err)
			return err
		}
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("gRPC server failed", "error", err)
			return err
		}
		log.Info("gRPC server stopped gracefully.")
		return nil
	})

	g.Go(func() error {
		log.Info("Starting job worker...", "polling_interval", cfg.SchedulerPollInterval, "workers", cfg.SchedulerWorkers)
		return worker.Run(groupCtx)
	})

	g.Go(func() error {
		return limiter.Run(groupCtx, limiterSweepEvery)
	})

	g.Go(func() error {
		ticker := time.NewTicker(claimPruneEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := claimStore.Prune(groupCtx, time.Now().Add(-claimRetention))
				if err != nil {
					log.WarnContext(groupCtx, "Failed to prune idempotency claims", "error", err)
					continue
				}
				if n > 0 {
					log.InfoContext(groupCtx, "Pruned idempotency claims", "count", n)
				}
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
		}
	})

	// Shutdown of the network servers once the group is cancelled.
	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Initiating server graceful shutdown...")
		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Metrics server shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	log.Info("Service components initialized and workers started. Service is ready.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		log.Info("Received termination signal", "signal", sig)
	case groupErr = <-watchGroup(g):
		if groupErr != nil {
			log.Error("A critical component failed, initiating shutdown", "error", groupErr)
		}
	}

	log.Info("Attempting graceful shutdown...")
	mainCancel()

	waitErr := g.Wait()
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) && !errors.Is(waitErr, context.DeadlineExceeded) {
		log.Error("Error during graceful shutdown of components", "error", waitErr)
	} else if groupErr != nil && !errors.Is(groupErr, context.Canceled) && !errors.Is(groupErr, context.DeadlineExceeded) {
		log.Error("Shutdown initiated due to component error", "error", groupErr)
	}

	log.Info("Service shutdown complete.")
}

// watchGroup returns a channel that receives the result of g.Wait().
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
		close(errCh)
	}()
	return errCh
}
