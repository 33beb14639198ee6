package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/wareflow/wareflow-backend/internal/stock/consumers"
	"github.com/wareflow/wareflow-backend/internal/stock/events"
	"github.com/wareflow/wareflow-backend/internal/stock/handler"
	"github.com/wareflow/wareflow-backend/internal/stock/repository"
	"github.com/wareflow/wareflow-backend/internal/stock/service"
	"github.com/wareflow/wareflow-backend/pkg/auth"
	"github.com/wareflow/wareflow-backend/pkg/config"
	"github.com/wareflow/wareflow-backend/pkg/database"
	"github.com/wareflow/wareflow-backend/pkg/httputil"
	"github.com/wareflow/wareflow-backend/pkg/logger"
	"github.com/wareflow/wareflow-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	batchRepo := repository.NewBatchRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	dispatchRepo := repository.NewDispatchRepository(db)
	damageRepo := repository.NewDamageRecoveryRepository(db)

	// Initialize service
	allocationService := service.NewAllocationService(
		db, batchRepo, ledgerRepo, dispatchRepo, damageRepo,
		publisher, cfg.Allocation, log,
	)

	// Initialize handlers
	dispatchHandler := handler.NewDispatchHandler(allocationService, log)
	transferHandler := handler.NewTransferHandler(allocationService, log)
	adjustmentHandler := handler.NewAdjustmentHandler(allocationService, log)
	batchHandler := handler.NewBatchHandler(allocationService, log)
	ledgerHandler := handler.NewLedgerHandler(allocationService, log)

	// Start order event consumer
	orderConsumer, err := consumers.NewOrderEventConsumer(rmq, allocationService, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create order event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orderConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start order event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "stock-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	verifier := auth.NewVerifier(&cfg.JWT)
	r.Route("/api/v1/stock", func(r chi.Router) {
		r.Use(auth.Middleware(verifier))

		r.Route("/dispatches", func(r chi.Router) {
			r.Get("/", dispatchHandler.List)
			r.Post("/", dispatchHandler.Create)
			r.Put("/{id}/status", dispatchHandler.UpdateStatus)
		})

		r.Post("/transfers", transferHandler.Create)
		r.Post("/damage-recovery", adjustmentHandler.DamageRecovery)
		r.Post("/returns", adjustmentHandler.Return)

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", batchHandler.List)
			r.Post("/", batchHandler.Create)
		})
		r.Get("/availability", batchHandler.Availability)

		r.Get("/ledger", ledgerHandler.List)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
