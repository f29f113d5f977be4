package costbasis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jubi-watch/internal/cache"
	"jubi-watch/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	mu     sync.Mutex
	calls  map[string]int
	trades map[string][]types.Trade
	err    error
}

func (s *countingSource) Trades(_ context.Context, _ string, coin string) ([]types.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[coin]++
	if s.err != nil {
		return nil, s.err
	}
	return s.trades[coin], nil
}

func scenarioTrades() []types.Trade {
	return []types.Trade{
		{Direction: types.Buy, Quantity: 10, Amount: 100},
		{Direction: types.Sell, Quantity: 4, Amount: 50},
	}
}

func TestAverage(t *testing.T) {
	cost, err := Average(scenarioTrades())
	require.NoError(t, err)
	assert.Equal(t, 8.33, cost)
}

func TestAverageNoPosition(t *testing.T) {
	_, err := Average([]types.Trade{
		{Direction: types.Buy, Quantity: 3, Amount: 30},
		{Direction: types.Sell, Quantity: 3, Amount: 36},
	})
	assert.True(t, errors.Is(err, ErrNoPosition))

	_, err = Average(nil)
	assert.True(t, errors.Is(err, ErrNoPosition))
}

func TestAverageCostFetchesOnce(t *testing.T) {
	src := &countingSource{trades: map[string][]types.Trade{"ltc": scenarioTrades()}}
	calc := New(src, nil)
	ctx := context.Background()

	first, err := calc.AverageCost(ctx, "", "ltc")
	require.NoError(t, err)
	second, err := calc.AverageCost(ctx, "", "ltc")
	require.NoError(t, err)

	assert.Equal(t, 8.33, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls["ltc"])
}

func TestAverageCostConcurrentCallersShareFetch(t *testing.T) {
	src := &countingSource{trades: map[string][]types.Trade{"ltc": scenarioTrades()}}
	calc := New(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cost, err := calc.AverageCost(context.Background(), "", "ltc")
			assert.NoError(t, err)
			assert.Equal(t, 8.33, cost)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, src.calls["ltc"])
}

func TestAverageCostErrorsAreNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("offline")}
	calc := New(src, nil)

	_, err := calc.AverageCost(context.Background(), "", "ltc")
	require.Error(t, err)

	src.err = nil
	src.trades = map[string][]types.Trade{"ltc": scenarioTrades()}
	cost, err := calc.AverageCost(context.Background(), "", "ltc")
	require.NoError(t, err)
	assert.Equal(t, 8.33, cost)
	assert.Equal(t, 2, src.calls["ltc"])
}

func TestResetRefetches(t *testing.T) {
	store, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)
	src := &countingSource{trades: map[string][]types.Trade{"ltc": scenarioTrades()}}
	calc := New(src, store)
	ctx := context.Background()

	_, err = calc.AverageCost(ctx, "", "ltc")
	require.NoError(t, err)
	calc.Reset()
	_, ok := calc.Cached("ltc")
	assert.False(t, ok)

	_, err = calc.AverageCost(ctx, "", "ltc")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls["ltc"], "reset also drops the on-disk copy")
}

func TestPersistentCacheSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.New(dir, time.Hour)
	require.NoError(t, err)

	src := &countingSource{trades: map[string][]types.Trade{"ltc": scenarioTrades()}}
	_, err = New(src, store).AverageCost(context.Background(), "", "ltc")
	require.NoError(t, err)

	restarted := New(src, store)
	cost, err := restarted.AverageCost(context.Background(), "", "ltc")
	require.NoError(t, err)

	assert.Equal(t, 8.33, cost)
	assert.Equal(t, 1, src.calls["ltc"])
}
