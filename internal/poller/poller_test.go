package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jubi-watch/internal/exchange"
	"jubi-watch/internal/metrics"
	"jubi-watch/internal/types"
	"jubi-watch/internal/valuation"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchange struct {
	mu          sync.Mutex
	financeErrs []error
	calls       int
}

func (f *fakeExchange) Login(context.Context, map[string]string) (string, error) {
	return "sid=1", nil
}

func (f *fakeExchange) Finance(context.Context, string) (map[string]types.Balance, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.financeErrs) > 0 {
		err := f.financeErrs[0]
		f.financeErrs = f.financeErrs[1:]
		if err != nil {
			return nil, nil, err
		}
	}
	return map[string]types.Balance{"ltc": {Coin: "ltc", Balance: 10}}, []string{"ltc"}, nil
}

func (f *fakeExchange) Markets(context.Context, string) (map[string]types.Market, error) {
	return map[string]types.Market{"ltc": {Coin: "ltc", Name: "莱特币", Price: 2}}, nil
}

func (f *fakeExchange) Trends(context.Context, string) (map[string]types.Trend, error) {
	return map[string]types.Trend{"ltc": {Coin: "ltc", YesterdayPrice: 2}}, nil
}

func (f *fakeExchange) Trades(context.Context, string, string) ([]types.Trade, error) {
	return nil, nil
}

type fakeSession struct {
	invalidated atomic.Int32
}

func (s *fakeSession) Ensure(context.Context) (string, error) { return "sid=1", nil }

func (s *fakeSession) Invalidate(context.Context) error {
	s.invalidated.Add(1)
	return nil
}

type unitCost struct{}

func (unitCost) AverageCost(context.Context, string, string) (float64, error) { return 1, nil }

type recorder struct {
	mu       sync.Mutex
	statuses []string
	frames   [][]types.Row
	errs     []error
	rendered chan struct{}
}

func newRecorder() *recorder {
	return &recorder{rendered: make(chan struct{}, 16)}
}

func (r *recorder) Status(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, msg)
}

func (r *recorder) Render(rows []types.Row, _ types.Summary) error {
	r.mu.Lock()
	r.frames = append(r.frames, rows)
	r.mu.Unlock()
	select {
	case r.rendered <- struct{}{}:
	default:
	}
	return nil
}

func (r *recorder) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func newTestPoller(ex *fakeExchange, sess *fakeSession, view *recorder, m *metrics.Metrics) *Poller {
	return New(Params{
		Exchange:   ex,
		Session:    sess,
		Aggregator: valuation.NewAggregator(unitCost{}, valuation.DefaultMinValue),
		Presenter:  view,
		Metrics:    m,
		Interval:   time.Millisecond,
	})
}

func TestPassRendersRows(t *testing.T) {
	view := newRecorder()
	m := metrics.New()
	p := newTestPoller(&fakeExchange{}, &fakeSession{}, view, m)

	require.NoError(t, p.Pass(context.Background()))
	require.Len(t, view.frames, 1)
	assert.Equal(t, types.Row{
		Name: "莱特币", Balance: 10, Price: 2, CostPrice: 1, TotalProfit: 10, ProfitRate: 100,
	}, view.frames[0][0])
	assert.Equal(t, Idle, p.State())
	assert.Equal(t, int64(1), p.Passes())
	expected := `
# HELP jubi_watch_total_profit Sum of total profit across displayed coins.
# TYPE jubi_watch_total_profit gauge
jubi_watch_total_profit 10
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "jubi_watch_total_profit"))
}

func TestFinanceFailureThenRecovery(t *testing.T) {
	ex := &fakeExchange{financeErrs: []error{exchange.ErrFinanceUnavailable}}
	sess := &fakeSession{}
	view := newRecorder()
	p := newTestPoller(ex, sess, view, nil)

	err := p.Pass(context.Background())
	assert.ErrorIs(t, err, exchange.ErrFinanceUnavailable)
	assert.Empty(t, view.frames)
	assert.Equal(t, int32(1), sess.invalidated.Load())
	assert.Equal(t, Idle, p.State())

	require.NoError(t, p.Pass(context.Background()))
	assert.Len(t, view.frames, 1)
	assert.Equal(t, int32(1), sess.invalidated.Load())
}

func TestTransportFailureKeepsSession(t *testing.T) {
	ex := &fakeExchange{financeErrs: []error{errors.New("connection reset")}}
	sess := &fakeSession{}
	p := newTestPoller(ex, sess, newRecorder(), nil)

	assert.Error(t, p.Pass(context.Background()))
	assert.Zero(t, sess.invalidated.Load())
}

func TestRunShowsErrorsAndKeepsPolling(t *testing.T) {
	ex := &fakeExchange{financeErrs: []error{exchange.ErrFinanceUnavailable}}
	view := newRecorder()
	p := newTestPoller(ex, &fakeSession{}, view, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-view.rendered:
	case <-time.After(5 * time.Second):
		t.Fatal("no frame rendered")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	view.mu.Lock()
	defer view.mu.Unlock()
	require.NotEmpty(t, view.errs)
	assert.ErrorIs(t, view.errs[0], exchange.ErrFinanceUnavailable)
	assert.Contains(t, view.statuses, "fetching data...")
}

type slowAggregator struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (s *slowAggregator) Aggregate(context.Context, string, types.Snapshot) ([]types.Holding, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	if n > s.maxSeen.Load() {
		s.maxSeen.Store(n)
	}
	s.calls.Add(1)
	time.Sleep(5 * time.Millisecond)
	return nil, nil
}

func TestPassesNeverOverlap(t *testing.T) {
	agg := &slowAggregator{}
	p := New(Params{
		Exchange:   &fakeExchange{},
		Session:    &fakeSession{},
		Aggregator: agg,
		Presenter:  newRecorder(),
		Interval:   time.Microsecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.GreaterOrEqual(t, agg.calls.Load(), int32(2))
	assert.Equal(t, int32(1), agg.maxSeen.Load())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "fetching", Fetching.String())
	assert.Equal(t, "aggregating", Aggregating.String())
	assert.Equal(t, "rendering", Rendering.String())
}

type fakeHistory struct {
	passIDs []string
	values  []float64
}

func (h *fakeHistory) Record(passID string, _ []types.Row, summary types.Summary) error {
	h.passIDs = append(h.passIDs, passID)
	h.values = append(h.values, summary.Value)
	return nil
}

func TestPassRecordsHistory(t *testing.T) {
	hist := &fakeHistory{}
	p := New(Params{
		Exchange:   &fakeExchange{financeErrs: []error{exchange.ErrFinanceUnavailable}},
		Session:    &fakeSession{},
		Aggregator: valuation.NewAggregator(unitCost{}, valuation.DefaultMinValue),
		Presenter:  newRecorder(),
		History:    hist,
	})

	assert.Error(t, p.Pass(context.Background()))
	assert.Empty(t, hist.passIDs, "failed passes are not recorded")

	require.NoError(t, p.Pass(context.Background()))
	require.NoError(t, p.Pass(context.Background()))
	require.Len(t, hist.passIDs, 2)
	assert.NotEqual(t, hist.passIDs[0], hist.passIDs[1])
	assert.Equal(t, []float64{20, 20}, hist.values)
}
