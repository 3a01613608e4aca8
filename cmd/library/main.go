package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/library-system/internal/application"
	"github.com/example/library-system/internal/auth"
	"github.com/example/library-system/internal/config"
	"github.com/example/library-system/internal/fines"
	httptransport "github.com/example/library-system/internal/http"
	"github.com/example/library-system/internal/logging"
	"github.com/example/library-system/internal/persistence/sqldb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, slog.LevelInfo).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("library service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := newApp(ctx, cfg, logger, time.Now)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("library API listening", "addr", server.Addr, "driver", cfg.DatabaseDriver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// app holds the wired HTTP handler and the resources it owns.
type app struct {
	Handler http.Handler
	store   *sqldb.Store
}

func (a *app) Close() error {
	if a == nil {
		return nil
	}
	return a.store.Close()
}

// newApp opens and migrates the store, builds the services and mounts the API.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, now func() time.Time) (*app, error) {
	store, err := sqldb.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("storage ready", "driver", store.Driver())

	tokens, err := auth.NewManager(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("session tokens: %w", err)
	}

	idGenerator := uuid.NewString
	users := newUserRepositoryAdapter(store)
	books := newBookRepositoryAdapter(store)
	ledger := newLedgerAdapter(store)
	activity := newActivityLogAdapter(store)

	policy := application.LoanPolicy{
		BorrowLimit: cfg.BorrowLimit,
		Fines:       fines.Policy{UnitRate: cfg.FineRate, LoanPeriod: cfg.LoanPeriod},
	}

	authService := application.NewAuthServiceWithLogger(application.AuthServiceDeps{
		Users:       users,
		Tokens:      newTokenIssuerAdapter(tokens),
		Activity:    activity,
		IDGenerator: idGenerator,
		Now:         now,
	}, logger)
	userService := application.NewUserServiceWithLogger(users, activity, nil, idGenerator, now, logger)
	bookService := application.NewBookServiceWithLogger(books, ledger, idGenerator, now, logger)
	borrowingService := application.NewBorrowingServiceWithLogger(ledger, policy, idGenerator, now, logger)
	borrowingService.OnCirculationChange(bookService.InvalidateCategories)
	activityService := application.NewActivityServiceWithLogger(activity, logger)

	if cfg.AdminUsername != "" {
		if _, _, err := userService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("bootstrap administrator: %w", err)
		}
	}

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:       httptransport.NewAuthHandler(authService, logger),
		Users:      httptransport.NewUserHandler(userService, logger),
		Books:      httptransport.NewBookHandler(bookService, logger),
		Borrowings: httptransport.NewBorrowingHandler(borrowingService, logger),
		Activity:   httptransport.NewActivityHandler(activityService, logger),
		Ready:      store.Ping,
		Session:    httptransport.RequireSession(authService, logger),
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	return &app{Handler: handler, store: store}, nil
}
