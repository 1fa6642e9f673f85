package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorekeeper/internal/auth"
	"github.com/dukerupert/chorekeeper/internal/authz"
	"github.com/dukerupert/chorekeeper/internal/clock"
	"github.com/dukerupert/chorekeeper/internal/migrate"
	"github.com/dukerupert/chorekeeper/internal/server"
	"github.com/dukerupert/chorekeeper/internal/signal"
	"github.com/dukerupert/chorekeeper/internal/store"
	"github.com/dukerupert/chorekeeper/internal/websocket"
	"github.com/dukerupert/chorekeeper/internal/workflow"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the websocket feed and the due-window scanner",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return serve(a)
		},
	}
}

func serve(a *app) error {
	cfg, db, logger := a.cfg, a.db, a.logger
	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	users := store.NewUserStore(db)
	snap := a.snapshotter()

	// No request is served until legacy accounts are unified.
	res, err := migrate.NewMigrator(store.NewLegacyStore(db), users, snap, logger.With("component", "migrate")).Run(ctx)
	if err != nil {
		return fmt.Errorf("unify users: %w", err)
	}
	if !res.AlreadyMigrated {
		logger.Info("legacy users unified", "users", res.Users, "merged", res.Merged)
	}

	hub := websocket.NewHub(logger.With("component", "websocket"), cfg.Server.AllowedOrigins...)
	resolver := authz.NewResolver(authz.AnyOverride{auth.ContextOverride{}, store.NewAdminStore(db)}, logger.With("component", "authz"))
	mgr := workflow.NewManager(workflow.Deps{
		Chores:  store.NewChoreStore(db),
		Users:   users,
		Sent:    store.NewSignalLogStore(db),
		Authz:   resolver,
		Emitter: signal.Multi{hub, signal.NewLogger(logger.With("component", "signal"))},
		Clock:   clock.System{},
		Logger:  logger.With("component", "workflow"),
	})
	locker := workflow.NewLocker()

	scanner := workflow.NewScanLoop(mgr, locker, cfg.Scan.Interval, logger.With("component", "scan"))
	scanner.Start(ctx)
	defer scanner.Stop()

	srv := server.New(server.Deps{
		DB:        db,
		Manager:   mgr,
		Locker:    locker,
		Hub:       hub,
		Tokens:    auth.NewTokens(cfg.Auth.Secret, cfg.Auth.TokenTTL),
		Snapshot:  snap,
		RateLimit: cfg.Server.RateLimit,
		Logger:    logger,
	})
	srv.RateLimiter().StartCleanup(ctx, 5*time.Minute)

	httpServer := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		// websocket connections outlive any write deadline
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("chorekeeper listening", "addr", cfg.Server.Addr, "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	fmt.Fprintln(os.Stderr, "\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
