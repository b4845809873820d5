// syncd is the resident sync agent: it keeps the per-metric sync jobs
// registered, armed and audited, and serves the local admin API.
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

	shared "github.com/vitalsync/agent/pkg"
	"github.com/vitalsync/agent/pkg/adminapi"
	"github.com/vitalsync/agent/pkg/bootstrap"
	"github.com/vitalsync/agent/pkg/engine"
	"github.com/vitalsync/agent/pkg/infrastructure/oauth"
	"github.com/vitalsync/agent/pkg/infrastructure/sentry"
	"github.com/vitalsync/agent/pkg/orchestrator"
	"github.com/vitalsync/agent/pkg/providers/fitbit"
	"github.com/vitalsync/agent/pkg/providers/wellbeing"
	"github.com/vitalsync/agent/pkg/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "syncd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := bootstrap.NewService(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	logger := bootstrap.NewLogger("syncd")

	if svc.Config.SentryDSN != "" {
		if err := sentry.Init(sentry.Config{
			DSN:         svc.Config.SentryDSN,
			Environment: svc.Config.Environment,
			ServerName:  "syncd",
		}, logger); err != nil {
			logger.Warn("Sentry init failed, continuing without it", "error", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	userID := os.Getenv("SYNC_USER_ID")
	if userID == "" {
		return fmt.Errorf("SYNC_USER_ID is required")
	}

	fitbitTokens := oauth.NewFirestoreTokenSource(svc, userID, shared.SourceFitbit)
	wellbeingTokens := oauth.NewFirestoreTokenSource(svc, userID, shared.SourceWellbeing)
	providers := orchestrator.Providers{
		Fitbit:    fitbit.NewClientWithUsageTracking(fitbitTokens, svc, userID),
		Wellbeing: wellbeing.NewClient(wellbeingTokens),
	}

	tasks := scheduler.NewInProc(logger)
	defer tasks.Close()

	sched := scheduler.New(tasks, logger, nil)
	tasks.SetHandler(sched.Dispatch)

	notifier := &engine.Notifier{Pub: svc.Pub, Logger: logger}
	runner := engine.NewRunner(svc, notifier, logger)
	orch := orchestrator.New(svc, sched, runner, userID, providers, logger)

	if err := orch.Reevaluate(ctx); err != nil {
		// A flaky store at boot must not kill the agent; the periodic
		// reevaluation below catches up.
		logger.Error("Initial reevaluation failed", "error", err)
	}

	// Settings changes land in the user document; poll for them so an
	// enablement flip takes effect without a restart.
	reevalCtx := ctx
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-reevalCtx.Done():
				return
			case <-ticker.C:
				if err := orch.Reevaluate(reevalCtx); err != nil {
					logger.Warn("Reevaluation failed", "error", err)
				}
			}
		}
	}()

	watchdog := &scheduler.Watchdog{Sched: sched, Logger: logger, Enabled: orch.Enabled}
	watchdog.Start(ctx)

	api := adminapi.NewServer(orch, logger)
	srv := &http.Server{
		Addr:              svc.Config.AdminAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Admin API listening", "addr", svc.Config.AdminAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin API server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin API shutdown failed", "error", err)
	}
	return nil
}
