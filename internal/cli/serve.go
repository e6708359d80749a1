package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/internal/config"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/internal/metrics"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/internal/scheduler"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP API",
	Long: `Run alert passes on the configured cron schedule and serve the HTTP API
for manual triggers, budget management, cost reports, health checks and metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().String("schedule", "", "Cron schedule (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if schedule, _ := cmd.Flags().GetString("schedule"); schedule != "" {
		cfg.Scheduler.Schedule = schedule
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := newPipeline(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	collector := metrics.NewCollector(nil)
	p.processor.WithRecorder(collector)

	sched := scheduler.New(p.processor, cfg.Scheduler.Schedule, logger).WithSkipRecorder(collector)
	if lock := cfg.Scheduler.RedisLock; lock.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     lock.Addr,
			Password: lock.Password,
			DB:       lock.DB,
		})
		defer client.Close()
		sched.WithLocker(scheduler.NewRedisLocker(client, lock.Key, config.Duration(lock.TTL, 10*time.Minute)))
	}

	api := server.NewServer(p.processor, store, server.StaticTokens(cfg.Server.Tokens()), logger).
		WithCostReport(p.reporter)
	if cfg.Metrics.Enabled {
		api.WithMetrics(cfg.Metrics.Path, collector.Handler())
	}

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      api.Handler(),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 30*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 60*time.Second),
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "listen", cfg.Server.Listen, "schedule", cfg.Scheduler.Schedule)
		fmt.Fprintf(os.Stderr, "Cloud Cost Guardian listening on %s\n", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}
