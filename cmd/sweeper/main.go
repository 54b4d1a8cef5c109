package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/estatehub/reportsweep/internal/config"
	"github.com/estatehub/reportsweep/internal/inquiry"
	"github.com/estatehub/reportsweep/internal/logger"
	"github.com/estatehub/reportsweep/internal/store"
	"github.com/estatehub/reportsweep/internal/sweep"
	"github.com/estatehub/reportsweep/internal/synthesis"
)

// connectWithRetry attempts to connect to Redis with exponential backoff
func connectWithRetry(redisURL string, maxRetries int, log logger.Logger) (*store.RedisStore, error) {
	var st *store.RedisStore
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		st, err = store.NewRedisStore(redisURL)
		if err == nil {
			return st, nil
		}

		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		log.Warn("Failed to connect to Redis, retrying",
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"error", err,
			"retry_in", delay)

		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries, err)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	mainLog := log.WithComponent(logger.ComponentMain)
	mainLog.Info("Report sweeper starting",
		"redis_url", cfg.RedisURL,
		"tenants", len(cfg.TenantIDs),
		"sweep_cron", cfg.SweepCron,
		"concurrency", cfg.SweepConcurrency)

	st, err := connectWithRetry(cfg.RedisURL, 5, mainLog)
	if err != nil {
		mainLog.Error("Could not connect to Redis", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	synthClient := synthesis.NewClient(cfg.SynthesisBaseURL, cfg.SynthesisTimeout)
	sweeper := sweep.NewSweeper(
		st,
		st,
		inquiry.NewAggregator(st),
		synthesis.NewRemoteSynthesizer(synthClient),
		st,
		st.Client(),
		sweep.Config{
			Concurrency:  cfg.SweepConcurrency,
			SweepLockTTL: cfg.SweepLockTTL,
			RuleLockTTL:  cfg.RuleLockTTL,
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := cron.New()
	_, err = trigger.AddFunc(cfg.SweepCron, func() {
		for _, tenantID := range cfg.TenantIDs {
			if ctx.Err() != nil {
				return
			}
			if err := sweeper.Run(ctx, tenantID); err != nil {
				mainLog.Error("Sweep failed", "tenant_id", tenantID, "error", err)
			}
		}
	})
	if err != nil {
		mainLog.Error("Failed to register sweep trigger", "error", err)
		os.Exit(1)
	}
	trigger.Start()
	mainLog.Info("Sweep trigger registered", "cron", cfg.SweepCron)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	mainLog.Info("Shutdown signal received", "signal", sig.String())

	cancel()
	stopCtx := trigger.Stop()

	select {
	case <-stopCtx.Done():
		mainLog.Info("Sweep trigger stopped")
	case <-time.After(30 * time.Second):
		mainLog.Warn("Timed out waiting for in-flight sweeps", "timeout", "30s")
	}

	mainLog.Info("Report sweeper stopped")
}
