package valuation

import (
	"context"
	"errors"
	"math"

	"jubi-watch/internal/costbasis"
	"jubi-watch/internal/interfaces"
	"jubi-watch/internal/logger"
	"jubi-watch/internal/mathx"
	"jubi-watch/internal/types"
)

// DefaultMinValue is the smallest balance × price a coin needs to be shown.
const DefaultMinValue = 5.0

// Aggregator joins balances with prices and trends and resolves cost prices.
type Aggregator struct {
	costs    interfaces.CostResolver
	minValue float64
}

var _ interfaces.Aggregator = (*Aggregator)(nil)

func NewAggregator(costs interfaces.CostResolver, minValue float64) *Aggregator {
	return &Aggregator{costs: costs, minValue: minValue}
}

// Aggregate returns one Holding per coin worth more than the minimum value,
// in the finance listing's order. Cost prices are resolved one coin at a
// time. A coin without a net position is kept with CostKnown false; any other
// cost lookup failure aborts the pass.
func (a *Aggregator) Aggregate(ctx context.Context, cookie string, snap types.Snapshot) ([]types.Holding, error) {
	var holdings []types.Holding

	for _, coin := range snap.BalanceOrder {
		bal, ok := snap.Balances[coin]
		if !ok {
			continue
		}
		market, ok := snap.Markets[coin]
		if !ok || market.Price == 0 {
			continue
		}
		if !(bal.Balance*market.Price > a.minValue) {
			continue
		}

		h := types.Holding{
			Coin:      coin,
			Name:      market.Name,
			Balance:   bal.Balance,
			Price:     market.Price,
			MaxPrice:  market.MaxPrice,
			MinPrice:  market.MinPrice,
			TodayRate: mathx.Round(TodayRate(market.Price, snap.Trends[coin])*100, 2),
		}

		cost, err := a.costs.AverageCost(ctx, cookie, coin)
		switch {
		case err == nil:
			h.CostPrice = cost
			h.CostKnown = true
		case errors.Is(err, costbasis.ErrNoPosition):
			logger.Warn(ctx, "Cost price undefined, trade window nets to zero", "coin", coin)
			h.CostPrice = math.NaN()
		default:
			return nil, err
		}

		holdings = append(holdings, h)
	}

	return holdings, nil
}

// TodayRate is the fractional change of price against yesterday's close.
// A missing or zero close yields 0.
func TodayRate(price float64, trend types.Trend) float64 {
	if trend.YesterdayPrice == 0 {
		return 0
	}
	return (price - trend.YesterdayPrice) / trend.YesterdayPrice
}
