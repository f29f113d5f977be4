package exchangeobs

import (
	"context"
	"time"

	"jubi-watch/internal/interfaces"
	"jubi-watch/internal/logger"
	"jubi-watch/internal/metrics"
	"jubi-watch/internal/trace"
	"jubi-watch/internal/types"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// observableExchange wraps an Exchange with observability (logging, tracing & metrics)
type observableExchange struct {
	exchange interfaces.Exchange
	metrics  *metrics.Metrics
}

// Compile-time interface check
var _ interfaces.Exchange = (*observableExchange)(nil)

// Wrap wraps an exchange with observability middleware. m may be nil.
func Wrap(exchange interfaces.Exchange, m *metrics.Metrics) interfaces.Exchange {
	return &observableExchange{
		exchange: exchange,
		metrics:  m,
	}
}

// Login authenticates with observability. Credentials are never logged.
func (oe *observableExchange) Login(ctx context.Context, credentials map[string]string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.Login")
	defer span.End()
	started := time.Now()

	logger.InfoSkip(ctx, 1, "Logging in", "fields", len(credentials))

	cookie, err := oe.exchange.Login(ctx, credentials)
	oe.metrics.ObserveRequest("login", started, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Login failed", err)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Login succeeded")
	return cookie, nil
}

// Finance fetches balances with observability
func (oe *observableExchange) Finance(ctx context.Context, cookie string) (map[string]types.Balance, []string, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.Finance")
	defer span.End()
	started := time.Now()

	logger.DebugSkip(ctx, 1, "Fetching balances", "authenticated", cookie != "")

	balances, order, err := oe.exchange.Finance(ctx, cookie)
	oe.metrics.ObserveRequest("finance", started, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch balances", err)
		return nil, nil, err
	}

	span.SetAttributes(attribute.Int("coins", len(order)))
	logger.DebugSkip(ctx, 1, "Balances fetched successfully", "coins", len(order))
	return balances, order, nil
}

// Markets fetches the instrument listing with observability
func (oe *observableExchange) Markets(ctx context.Context, cookie string) (map[string]types.Market, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.Markets")
	defer span.End()
	started := time.Now()

	markets, err := oe.exchange.Markets(ctx, cookie)
	oe.metrics.ObserveRequest("markets", started, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch market listing", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("markets", len(markets)))
	logger.DebugSkip(ctx, 1, "Market listing fetched successfully", "count", len(markets))
	return markets, nil
}

// Trends fetches the trend listing with observability
func (oe *observableExchange) Trends(ctx context.Context, cookie string) (map[string]types.Trend, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.Trends")
	defer span.End()
	started := time.Now()

	trends, err := oe.exchange.Trends(ctx, cookie)
	oe.metrics.ObserveRequest("trends", started, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch trend listing", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Trend listing fetched successfully", "count", len(trends))
	return trends, nil
}

// Trades fetches trade history with observability
func (oe *observableExchange) Trades(ctx context.Context, cookie, coin string) ([]types.Trade, error) {
	ctx, span := trace.StartSpan(ctx, "exchange.Trades", oteltrace.WithAttributes(attribute.String("coin", coin)))
	defer span.End()
	started := time.Now()

	logger.DebugSkip(ctx, 1, "Fetching trade history", "coin", coin)

	trades, err := oe.exchange.Trades(ctx, cookie, coin)
	oe.metrics.ObserveRequest("trades", started, err)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch trade history", err, "coin", coin)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Trade history fetched successfully", "coin", coin, "count", len(trades))
	return trades, nil
}
