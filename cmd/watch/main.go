package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jubi-watch/internal/logger"
	"jubi-watch/internal/metrics"
	"jubi-watch/internal/poller"
	"jubi-watch/internal/session"
	"jubi-watch/internal/trace"
	"jubi-watch/internal/valuation"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if shutdownErr := shutdown(); shutdownErr != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", shutdownErr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	m := metrics.New()
	view := initializePresenter(cfg)
	ex := initializeExchange(cfg, view, m)
	costs := initializeCosts(ctx, cfg, ex)

	p := poller.New(poller.Params{
		Exchange:   ex,
		Session:    session.NewManager(ex, cfg.CookiePath, cfg.Credentials, retryConfig(cfg)),
		Aggregator: valuation.NewAggregator(costs, cfg.MinHoldingValue()),
		Presenter:  view,
		History:    initializeHistory(ctx, cfg),
		Metrics:    m,
		Interval:   cfg.PollInterval(),
	})

	view.Clear()
	logger.Info(ctx, "Watcher started", "min_value", cfg.MinHoldingValue(), "metrics", cfg.Metrics.Listen)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return m.Serve(gctx, cfg.Metrics.Listen)
		})
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	g.Go(func() error {
		refreshOnSignal(gctx, hup, costs)
		return nil
	})

	err = g.Wait()
	logger.Info(ctx, "Shutting down...", "passes", p.Passes())
	return err
}

// shutdown flushes logs and traces
func shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return multierr.Combine(
		trace.Shutdown(ctx),
		logger.Sync(),
	)
}
