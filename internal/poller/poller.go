package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"jubi-watch/internal/exchange"
	"jubi-watch/internal/interfaces"
	"jubi-watch/internal/logger"
	"jubi-watch/internal/metrics"
	"jubi-watch/internal/trace"
	"jubi-watch/internal/types"
	"jubi-watch/internal/valuation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// State is the phase the poller is currently in.
type State int32

const (
	Idle State = iota
	Fetching
	Aggregating
	Rendering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Aggregating:
		return "aggregating"
	case Rendering:
		return "rendering"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Params struct {
	Exchange   interfaces.Exchange
	Session    interfaces.Session
	Aggregator interfaces.Aggregator
	Presenter  interfaces.Presenter
	History    interfaces.History // optional
	Metrics    *metrics.Metrics
	Interval   time.Duration
}

// Poller refreshes the portfolio view. Passes never overlap: the next one is
// scheduled only after the previous one has finished.
type Poller struct {
	ex       interfaces.Exchange
	session  interfaces.Session
	agg      interfaces.Aggregator
	view     interfaces.Presenter
	history  interfaces.History
	metrics  *metrics.Metrics
	interval time.Duration

	state  atomic.Int32
	passes atomic.Int64
}

func New(p Params) *Poller {
	if p.Interval <= 0 {
		p.Interval = 5 * time.Second
	}
	return &Poller{
		ex:       p.Exchange,
		session:  p.Session,
		agg:      p.Aggregator,
		view:     p.Presenter,
		history:  p.History,
		metrics:  p.Metrics,
		interval: p.Interval,
	}
}

func (p *Poller) State() State {
	return State(p.state.Load())
}

// Passes returns how many passes have completed, successful or not.
func (p *Poller) Passes() int64 {
	return p.passes.Load()
}

// Run polls until ctx is cancelled. Pass errors are shown and logged; they
// never stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	logger.Info(ctx, "Poller started", "interval", p.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Poller stopped", "passes", p.Passes())
			return nil
		case <-timer.C:
			if err := p.Pass(ctx); err != nil && ctx.Err() == nil {
				p.view.Error(err)
			}
			timer.Reset(p.interval)
		}
	}
}

// Pass performs one full fetch, value and render cycle.
func (p *Poller) Pass(ctx context.Context) (err error) {
	passID := uuid.NewString()
	ctx, span := trace.StartSpan(ctx, "poller.Pass")
	span.SetAttributes(attribute.String("pass_id", passID))
	defer span.End()

	started := time.Now()
	defer func() {
		p.state.Store(int32(Idle))
		p.passes.Add(1)
		p.metrics.ObservePass(started, err)
		if err != nil {
			span.RecordError(err)
			logger.ErrorWithErr(ctx, "Pass failed", err, "pass_id", passID)
		}
	}()

	p.state.Store(int32(Fetching))
	p.view.Status("fetching data...")

	cookie, err := p.session.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("failed to establish session: %w", err)
	}

	snap, err := p.fetch(ctx, cookie)
	if err != nil {
		if errors.Is(err, exchange.ErrFinanceUnavailable) {
			if invErr := p.session.Invalidate(ctx); invErr != nil {
				logger.Warn(ctx, "Failed to invalidate session", "error", invErr)
			}
		}
		return err
	}

	p.state.Store(int32(Aggregating))
	holdings, err := p.agg.Aggregate(ctx, cookie, snap)
	if err != nil {
		return fmt.Errorf("failed to value holdings: %w", err)
	}
	rows := valuation.Format(holdings)
	summary := valuation.Summarize(rows)

	p.state.Store(int32(Rendering))
	p.view.Status("rendering...")
	if err := p.view.Render(rows, summary); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}

	p.metrics.ObserveValuation(holdings, summary)
	if p.history != nil {
		if err := p.history.Record(passID, rows, summary); err != nil {
			logger.Warn(ctx, "Failed to record valuation history", "error", err)
		}
	}
	logger.Valuation(ctx, passID, len(rows), summary.TodayProfit, summary.TotalProfit,
		"value", summary.Value, "duration", time.Since(started))
	return nil
}

// fetch reads balances, market listing and trend listing concurrently.
func (p *Poller) fetch(ctx context.Context, cookie string) (types.Snapshot, error) {
	var snap types.Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		balances, order, err := p.ex.Finance(gctx, cookie)
		if err != nil {
			return err
		}
		snap.Balances, snap.BalanceOrder = balances, order
		return nil
	})
	g.Go(func() error {
		markets, err := p.ex.Markets(gctx, cookie)
		if err != nil {
			return err
		}
		snap.Markets = markets
		return nil
	})
	g.Go(func() error {
		trends, err := p.ex.Trends(gctx, cookie)
		if err != nil {
			return err
		}
		snap.Trends = trends
		return nil
	})

	if err := g.Wait(); err != nil {
		return types.Snapshot{}, err
	}
	return snap, nil
}
