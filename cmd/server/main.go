package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	api "property-ledger-backend/internal/api/grpc"
	"property-ledger-backend/internal/api/grpc/interceptor"
	httpapi "property-ledger-backend/internal/api/http"
	"property-ledger-backend/internal/config"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/metrics"
	"property-ledger-backend/internal/repository/postgres"
	"property-ledger-backend/internal/security"
	"property-ledger-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	migrate := flag.Bool("migrate", false, "Apply the schema before serving")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Property Ledger Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "grpc_port", cfg.Server.GRPCPort)
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)

	// Initialize Database
	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, cfg.Database.Database),
	)
	m := metrics.New(reg)

	// Initialize Repositories
	store := postgres.NewStore(db,
		postgres.WithRetry(cfg.Database.RetryCount, cfg.RetryBackoff()),
		postgres.WithRetryHook(func(op string) { m.StorageRetries.WithLabelValues(op).Inc() }),
	)
	if *migrate {
		if err := store.Migrate(context.Background()); err != nil {
			log.Fatalf("Failed to migrate schema: %v", err)
		}
	}

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer)

	// Initialize Services
	emailSvc := service.NewEmailService(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName)
	notifier := service.NewNotifier(store.NotificationRepository, store.UserRepository, emailSvc)
	workflowSvc := service.NewWorkflowService(store.LedgerEntryRepository, store.RentalAgreementRepository, store.PropertyRepository, notifier, m)
	services := httpapi.Services{
		Ledger:        service.NewLedgerService(store.LedgerEntryRepository, store.RentalAgreementRepository, store.PropertyRepository, workflowSvc, notifier, m),
		Balance:       service.NewBalanceCalculator(store.LedgerEntryRepository, store.PropertyRepository, store.RentalAgreementRepository),
		Agreements:    service.NewAgreementService(store.RentalAgreementRepository, store.PropertyRepository, workflowSvc, notifier),
		Notifications: service.NewNotificationService(store.NotificationRepository),
	}

	metricsPath := cfg.Metrics.Path
	if !cfg.Metrics.Enabled {
		metricsPath = ""
	}
	router := httpapi.NewServer(services, tokenManager, m, store).WithMetricsPath(metricsPath).Router()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up gRPC health server
	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort != 0 {
		lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
			log.Fatalf("Failed to listen: %v", err)
		}

		authInterceptor := interceptor.NewAuthInterceptor(tokenManager)
		grpcServer = grpc.NewServer(
			grpc.UnaryInterceptor(authInterceptor.Unary()),
			grpc.StreamInterceptor(authInterceptor.Stream()),
		)
		healthReporter := api.NewHealthReporter(store, 10*time.Second)
		healthReporter.Register(grpcServer)

		// Register reflection service for grpcurl
		reflection.Register(grpcServer)

		go healthReporter.Run(ctx)
		go func() {
			logger.Info("gRPC health server listening", "address", cfg.GetGRPCAddress())
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
			}
		}()
	}

	// Set up HTTP API server
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "address", cfg.GetServerAddress())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	logger.Info("Servers stopped. Goodbye!")
}
