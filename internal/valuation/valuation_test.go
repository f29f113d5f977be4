package valuation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"jubi-watch/internal/costbasis"
	"jubi-watch/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCosts struct {
	costs map[string]float64
	errs  map[string]error
	asked []string
}

func (f *fixedCosts) AverageCost(_ context.Context, _ string, coin string) (float64, error) {
	f.asked = append(f.asked, coin)
	if err, ok := f.errs[coin]; ok {
		return 0, err
	}
	return f.costs[coin], nil
}

func snapshot() types.Snapshot {
	return types.Snapshot{
		BalanceOrder: []string{"ltc", "doge", "btc", "cny", "eth"},
		Balances: map[string]types.Balance{
			"ltc":  {Coin: "ltc", Balance: 10},
			"doge": {Coin: "doge", Balance: 100},
			"btc":  {Coin: "btc", Balance: 1},
			"cny":  {Coin: "cny", Balance: 1000},
			"eth":  {Coin: "eth", Balance: 2.5},
		},
		Markets: map[string]types.Market{
			"ltc":  {Coin: "ltc", Name: "莱特币", Price: 2, MaxPrice: 2.2, MinPrice: 1.9},
			"doge": {Coin: "doge", Name: "狗狗币", Price: 0.05},
			"btc":  {Coin: "btc", Name: "比特币", Price: 0},
			"eth":  {Coin: "eth", Name: "以太坊", Price: 2},
		},
		Trends: map[string]types.Trend{
			"ltc": {Coin: "ltc", YesterdayPrice: 2},
			"eth": {Coin: "eth", YesterdayPrice: 1.6},
		},
	}
}

func TestAggregateFiltersByValue(t *testing.T) {
	costs := &fixedCosts{costs: map[string]float64{"ltc": 1, "eth": 1.5}}
	agg := NewAggregator(costs, DefaultMinValue)

	holdings, err := agg.Aggregate(context.Background(), "", snapshot())
	require.NoError(t, err)

	// doge: 100 × 0.05 = 5 is not above the threshold; btc has no price;
	// cny has no market; eth: 2.5 × 2 = 5 exactly is excluded too.
	require.Len(t, holdings, 1)
	assert.Equal(t, types.Holding{
		Coin: "ltc", Name: "莱特币", Balance: 10, Price: 2, MaxPrice: 2.2, MinPrice: 1.9,
		TodayRate: 0, CostPrice: 1, CostKnown: true,
	}, holdings[0])
	assert.Equal(t, []string{"ltc"}, costs.asked, "cost is only resolved for included coins")
}

func TestAggregateInclusionProperty(t *testing.T) {
	agg := NewAggregator(&fixedCosts{}, DefaultMinValue)

	for _, bal := range []float64{0, 0.5, 2.4, 2.5, 2.6, 10} {
		for _, price := range []float64{0.1, 1, 2, 2.000001, 50} {
			snap := types.Snapshot{
				BalanceOrder: []string{"x"},
				Balances:     map[string]types.Balance{"x": {Coin: "x", Balance: bal}},
				Markets:      map[string]types.Market{"x": {Coin: "x", Price: price}},
			}
			holdings, err := agg.Aggregate(context.Background(), "", snap)
			require.NoError(t, err)
			assert.Equal(t, bal*price > 5, len(holdings) == 1, "balance=%v price=%v", bal, price)
		}
	}
}

func TestAggregateKeepsBalanceOrder(t *testing.T) {
	snap := snapshot()
	snap.Balances["eth"] = types.Balance{Coin: "eth", Balance: 10}
	snap.BalanceOrder = []string{"eth", "ltc"}

	holdings, err := NewAggregator(&fixedCosts{}, DefaultMinValue).Aggregate(context.Background(), "", snap)
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "eth", holdings[0].Coin)
	assert.Equal(t, "ltc", holdings[1].Coin)
	// (2 - 1.6) / 1.6 = 25%
	assert.Equal(t, 25.0, holdings[0].TodayRate)
}

func TestAggregateNoPositionIsNotFatal(t *testing.T) {
	costs := &fixedCosts{errs: map[string]error{"ltc": fmt.Errorf("ltc: %w", costbasis.ErrNoPosition)}}

	holdings, err := NewAggregator(costs, DefaultMinValue).Aggregate(context.Background(), "", snapshot())
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.False(t, holdings[0].CostKnown)
	assert.True(t, math.IsNaN(holdings[0].CostPrice))
}

func TestAggregateCostFailureAbortsPass(t *testing.T) {
	boom := errors.New("offline")
	costs := &fixedCosts{errs: map[string]error{"ltc": boom}}

	_, err := NewAggregator(costs, DefaultMinValue).Aggregate(context.Background(), "", snapshot())
	assert.ErrorIs(t, err, boom)
}

func TestTodayRate(t *testing.T) {
	assert.Equal(t, 0.5, TodayRate(3, types.Trend{YesterdayPrice: 2}))
	assert.Equal(t, 0.0, TodayRate(3, types.Trend{}))
	assert.InDelta(t, -0.1, TodayRate(1.8, types.Trend{YesterdayPrice: 2}), 1e-12)
}

func TestFormatScenario(t *testing.T) {
	rows := Format([]types.Holding{{Name: "莱特币", Balance: 10, Price: 2, CostPrice: 1, TodayRate: 0, CostKnown: true}})
	require.Len(t, rows, 1)

	assert.Equal(t, types.Row{
		Name: "莱特币", Balance: 10, Price: 2, CostPrice: 1,
		TodayRate: 0, TodayProfit: 0, TotalProfit: 10, ProfitRate: 100,
	}, rows[0])
}

func TestFormatClampsTodayProfit(t *testing.T) {
	// bought at 1.9, today opened at 1.6 and is now 2: today +25% but total only +1
	rows := Format([]types.Holding{{Balance: 10, Price: 2, CostPrice: 1.9, TodayRate: 25}})
	require.Len(t, rows, 1)

	assert.Equal(t, 1.0, rows[0].TotalProfit)
	assert.Equal(t, 1.0, rows[0].TodayProfit)
	assert.Equal(t, 5.2632, rows[0].ProfitRate)
}

func TestFormatTodayProfitNeverExceedsTotal(t *testing.T) {
	for _, price := range []float64{0.5, 1, 3.3, 10} {
		for _, cost := range []float64{0.1, 1, 2.75, 12} {
			for _, rate := range []float64{-30, -1.25, 0, 4.5, 60} {
				for _, bal := range []float64{0.3, 7, 1000} {
					rows := Format([]types.Holding{{Balance: bal, Price: price, CostPrice: cost, TodayRate: rate}})
					assert.LessOrEqual(t, rows[0].TodayProfit, rows[0].TotalProfit,
						"price=%v cost=%v rate=%v balance=%v", price, cost, rate, bal)
				}
			}
		}
	}
}

func TestFormatRoundsProfitRateTo4dp(t *testing.T) {
	rows := Format([]types.Holding{{Balance: 1, Price: 10, CostPrice: 3}})
	// (10 - 3) / 3 × 100 = 233.3333...
	assert.Equal(t, 233.3333, rows[0].ProfitRate)
}

func TestFormatUnknownCostPropagatesNaN(t *testing.T) {
	rows := Format([]types.Holding{{Balance: 10, Price: 2, CostPrice: math.NaN(), TodayRate: 5}})
	assert.True(t, math.IsNaN(rows[0].TotalProfit))
	assert.True(t, math.IsNaN(rows[0].ProfitRate))
	assert.Equal(t, 1.0, rows[0].TodayProfit)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]types.Row{
		{Balance: 10, Price: 2, TodayProfit: 1, TotalProfit: 10},
		{Balance: 1, Price: 100, TodayProfit: -3, TotalProfit: math.NaN()},
	})
	assert.Equal(t, types.Summary{Value: 120, TodayProfit: -2, TotalProfit: 10}, s)
}
