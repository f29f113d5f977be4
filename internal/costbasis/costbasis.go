package costbasis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"jubi-watch/internal/cache"
	"jubi-watch/internal/logger"
	"jubi-watch/internal/mathx"
	"jubi-watch/internal/types"

	"golang.org/x/sync/singleflight"
)

// ErrNoPosition means the trade window nets out to zero quantity, so no
// average price exists.
var ErrNoPosition = errors.New("no net position")

// TradeSource provides the recent trade history of one coin.
type TradeSource interface {
	Trades(ctx context.Context, cookie, coin string) ([]types.Trade, error)
}

// Calculator derives and memoizes average acquisition prices. Each coin's
// history is fetched at most once per Calculator unless forgotten.
type Calculator struct {
	src     TradeSource
	persist *cache.Cache

	mu    sync.RWMutex
	costs map[string]float64
	group singleflight.Group
}

// New creates a calculator. persist may be nil; when set, computed costs are
// also written to it and read back on a later process start.
func New(src TradeSource, persist *cache.Cache) *Calculator {
	return &Calculator{
		src:     src,
		persist: persist,
		costs:   make(map[string]float64),
	}
}

// AverageCost returns the cached cost of coin, computing it on first use.
func (c *Calculator) AverageCost(ctx context.Context, cookie, coin string) (float64, error) {
	if cost, ok := c.Cached(coin); ok {
		return cost, nil
	}

	v, err, _ := c.group.Do(coin, func() (interface{}, error) {
		if cost, ok := c.Cached(coin); ok {
			return cost, nil
		}
		if c.persist != nil {
			var cost float64
			if c.persist.Get(cacheKey(coin), &cost) {
				c.store(coin, cost)
				logger.Debug(ctx, "Cost price restored from cache", "coin", coin, "cost", cost)
				return cost, nil
			}
		}

		trades, err := c.src.Trades(ctx, cookie, coin)
		if err != nil {
			return 0.0, err
		}
		cost, err := Average(trades)
		if err != nil {
			return 0.0, fmt.Errorf("%s: %w", coin, err)
		}

		c.store(coin, cost)
		if c.persist != nil {
			if err := c.persist.Set(cacheKey(coin), cost); err != nil {
				logger.Warn(ctx, "Failed to persist cost price", "coin", coin, "error", err)
			}
		}
		logger.Debug(ctx, "Cost price computed", "coin", coin, "cost", cost, "trades", len(trades))
		return cost, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Cached returns the memoized cost of coin without fetching.
func (c *Calculator) Cached(coin string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cost, ok := c.costs[coin]
	return cost, ok
}

// Reset drops every memoized cost, in memory and on disk, so each coin is
// recomputed from its trade history on next use.
func (c *Calculator) Reset() {
	c.mu.Lock()
	c.costs = make(map[string]float64)
	c.mu.Unlock()
	if c.persist != nil {
		if err := c.persist.Clear(); err != nil {
			logger.Warn(context.Background(), "Failed to clear cost cache", "error", err)
		}
	}
}

func (c *Calculator) store(coin string, cost float64) {
	c.mu.Lock()
	c.costs[coin] = cost
	c.mu.Unlock()
}

// Average nets buys against sells and divides the net amount by the net
// quantity, rounded to 2 decimals.
func Average(trades []types.Trade) (float64, error) {
	var qty, amount float64
	for _, t := range trades {
		if t.Direction == types.Buy {
			qty += t.Quantity
			amount += t.Amount
		} else {
			qty -= t.Quantity
			amount -= t.Amount
		}
	}
	if qty == 0 {
		return 0, ErrNoPosition
	}
	return mathx.Round(amount/qty, 2), nil
}

func cacheKey(coin string) string {
	return "cost:" + coin
}
