package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nexpay/backend/internal/config"
	"github.com/nexpay/backend/internal/database"
	"github.com/nexpay/backend/internal/handlers"
	"github.com/nexpay/backend/internal/logging"
	"github.com/nexpay/backend/internal/metrics"
	mW "github.com/nexpay/backend/internal/middleware"
	"github.com/nexpay/backend/internal/models"
	"github.com/nexpay/backend/internal/services"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.Migrate(db, logger); err != nil {
			return err
		}
	}

	redisClient := database.OpenRedis(ctx, cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	m := metrics.New()

	ledgerService := services.NewLedgerService(db, logger, m)
	historyService := services.NewHistoryService(db, logger, cfg.Pagination)
	authService := services.NewAuthService(db, redisClient, cfg.JWT, cfg.Argon2, logger)
	qrService := services.NewQRService(redisClient, ledgerService, logger)

	bankHandler := handlers.NewBankHandler(ledgerService, historyService, logger)
	adminHandler := handlers.NewAdminHandler(ledgerService, cfg.Pagination.AdminPageSize, logger)
	qrHandler := handlers.NewQRHandler(qrService)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Use(mW.APIKey(cfg.Server.APIKey, "/health", "/metrics", "/swagger", "/openapi.yaml"))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		services.SendJSONResponse(w, http.StatusOK, map[string]string{"message": "Welcome to the nexpay API"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			services.SendJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		services.SendJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Handle("/metrics", m.Handler())

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/openapi.yaml"),
	))

	r.Handle("/openapi.yaml", mW.StaticFileServer("./api"))

	authenticate := mW.Authenticate(cfg.JWT.SecretKey, redisClient, logger)

	r.Post("/login", authService.Login)
	r.Post("/users/register", authService.Register)

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Post("/logout", authService.Logout)
		r.Get("/users/info", authService.UserInfo)

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(models.RoleUser))

			r.Delete("/users/self", authService.DeactivateSelf)
			r.Get("/users/balance/{account_id}", bankHandler.GetBalance)
			r.Get("/bank-accounts", bankHandler.ListAccounts)
			r.Post("/bank-accounts", bankHandler.OpenAccount)
			r.Post("/transactions/transfer", bankHandler.Transfer)
			r.Get("/transactions/history", bankHandler.TransactionHistory)
			r.Get("/mutations/history", bankHandler.MutationHistory)
			r.Post("/qr/generate", qrHandler.GenerateQR)
			r.Post("/qr/pay", qrHandler.PayQR)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(mW.RequireRole(models.RoleAdmin))

			r.Get("/users/account", adminHandler.ListAccounts)
			r.Get("/users/{uuid}/balance", adminHandler.OwnerBalance)
			r.Post("/users/{user_id}/add-balance", adminHandler.AddBalance)
			r.Post("/users/{user_id}/deduct-balance", adminHandler.DeductBalance)
			r.Delete("/users/{user_id}", authService.DeleteUser)
			r.Get("/accounts/{account_id}/reconcile", adminHandler.Reconcile)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
