package main

import (
	"context"
	"fmt"
	"os"

	"jubi-watch/internal/api"
	"jubi-watch/internal/cache"
	"jubi-watch/internal/costbasis"
	"jubi-watch/internal/exchange"
	"jubi-watch/internal/exchange/exchangeobs"
	"jubi-watch/internal/history"
	"jubi-watch/internal/interfaces"
	"jubi-watch/internal/logger"
	"jubi-watch/internal/metrics"
	"jubi-watch/internal/presenter"
	"jubi-watch/internal/store"
	"jubi-watch/internal/trace"

	"github.com/joho/godotenv"
)

const defaultConfigPath = "config.yaml"

// initializeSystem loads .env and starts the logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// loadConfig reads the file named by WATCH_CONFIG, or config.yaml
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("WATCH_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	logger.Info(ctx, "Config loaded", "path", path, "base_url", cfg.BaseURL, "poll_seconds", cfg.PollSeconds)
	return cfg, nil
}

func retryConfig(cfg *store.Config) *api.RetryConfig {
	return &api.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		InitialWait: cfg.RetryInitialWait(),
		MaxWait:     cfg.RetryMaxWait(),
	}
}

// initializeExchange builds the HTTP client and the jubi gateway with observability.
// Failed fetches are reported on the status line before each retry.
func initializeExchange(cfg *store.Config, view interfaces.Presenter, m *metrics.Metrics) interfaces.Exchange {
	client := api.NewClient(
		api.WithBaseURL(cfg.BaseURL),
		api.WithUserAgent(cfg.UserAgent),
		api.WithTimeout(cfg.RequestTimeout()),
		api.WithRateLimit(cfg.RequestRate),
		api.WithLogging(true),
		api.WithRetryHook(func(_ context.Context, url string, _ int, _ error) {
			view.Status(fmt.Sprintf("fetch failed: [%s], retrying", url))
		}),
	)

	jubi := exchange.NewJubi(exchange.Params{
		Client:   client,
		Retry:    retryConfig(cfg),
		PageSize: cfg.TradePageSize,
	})
	return exchangeobs.Wrap(jubi, m)
}

// initializeCosts creates the cost-basis calculator, backed by the on-disk
// cache when cost_cache.dir is set.
func initializeCosts(ctx context.Context, cfg *store.Config, ex interfaces.Exchange) *costbasis.Calculator {
	if cfg.CostCache.Dir == "" {
		return costbasis.New(ex, nil)
	}

	persist, err := cache.New(cfg.CostCache.Dir, cfg.CostCacheTTL())
	if err != nil {
		logger.Warn(ctx, "Cost cache unavailable, keeping costs in memory only", "dir", cfg.CostCache.Dir, "error", err)
		return costbasis.New(ex, nil)
	}
	if err := persist.CleanupExpired(); err != nil {
		logger.Warn(ctx, "Failed to clean up cost cache", "error", err)
	}
	return costbasis.New(ex, persist)
}

func initializePresenter(cfg *store.Config) *presenter.Terminal {
	return presenter.New(os.Stdout, presenter.Options{
		Color:  cfg.Display.Color,
		Footer: !cfg.Display.HideFooter,
	})
}

// initializeHistory returns nil when history.dir is unset. Old daily files
// are compressed once at startup.
func initializeHistory(ctx context.Context, cfg *store.Config) interfaces.History {
	if cfg.History.Dir == "" {
		return nil
	}
	rec := history.New(cfg.History.Dir)
	if err := rec.CompressOlder(cfg.History.RetentionDays); err != nil {
		logger.Warn(ctx, "Failed to compress old history files", "dir", cfg.History.Dir, "error", err)
	}
	return rec
}
