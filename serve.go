package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"clipflow/config"
	"clipflow/failures"
	"clipflow/job"
	"clipflow/logger"
	"clipflow/routes"
	"clipflow/success"
	taskqueue "clipflow/taskQueue"

	"github.com/spf13/cobra"
)

const (
	cleanupInterval = 24 * time.Hour
	shutdownTimeout = 15 * time.Second
)

func newServeCommand(conf func() *config.Config) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP event endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			if listen != "" {
				cfg.ListenAddr = listen
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			closeStores, err := openStores()
			if err != nil {
				return err
			}
			defer closeStores()

			pipeline, err := buildPipeline(ctx, cfg, allStages)
			if err != nil {
				return err
			}
			logger.Infof("Analyzers enabled: %v", pipeline.Kinds())

			go cleanupRoutine(ctx, time.Duration(cfg.RetentionDays)*24*time.Hour, pipeline)

			server := routes.NewServer(ctx, pipeline, routes.Options{
				WebhookSecret: cfg.WebhookSecret,
				WebhookIssuer: cfg.WebhookIssuer,
			})
			srv := &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("clipflow server listening on %s", cfg.ListenAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				logger.Info("Shutdown signal received, draining connections")
			}

			shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Errorf("Graceful shutdown failed: %v", err)
				return err
			}
			logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides CLIPFLOW_LISTEN_ADDR)")
	return cmd
}

// cleanupRoutine periodically prunes ledger records, settled registry
// entries and settled analysis states older than maxAge.
func cleanupRoutine(ctx context.Context, maxAge time.Duration, pipeline *job.Pipeline) {
	if maxAge <= 0 {
		logger.Info("Retention disabled, cleanup routine not started")
		return
	}
	logger.Infof("Cleanup routine started - will run every %v", cleanupInterval)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			runCleanup(maxAge, pipeline)
		}
	}
}

func runCleanup(maxAge time.Duration, pipeline *job.Pipeline) {
	logger.Infof("Running scheduled cleanup of records older than %v", maxAge)
	cutoff := time.Now().Add(-maxAge)

	if pipeline != nil {
		logger.Infof("Forgot %d settled analysis invocations", pipeline.PruneAnalyses(cutoff))
	}

	if err := success.CleanupOldRecords(maxAge); err != nil {
		logger.Errorf("Failed to cleanup old success records: %v", err)
	}
	if err := failures.CleanupOldFailures(maxAge); err != nil {
		logger.Errorf("Failed to cleanup old failure records: %v", err)
	}
	n, err := taskqueue.PruneJobs(cutoff)
	if err != nil {
		logger.Errorf("Failed to prune transcode registry: %v", err)
		return
	}
	logger.Infof("Scheduled cleanup completed, %d registry entries pruned", n)
}
