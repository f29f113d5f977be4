package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jubi-watch/internal/api"
	"jubi-watch/internal/interfaces"
	"jubi-watch/internal/types"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

const (
	loginPath   = "/ajax/user/login"
	financePath = "/ajax/user/finance"
	marketsPath = "/coin/allcoin"
	trendsPath  = "/coin/trends"
	tradesPath  = "/ajax/trade/order/coin/%s?p=1&pagesize=%d"
)

var (
	// ErrFinanceUnavailable means the finance endpoint answered with a non-success status.
	ErrFinanceUnavailable = errors.New("finance data unavailable")
	// ErrLoginRejected means the login endpoint answered with a non-success status.
	ErrLoginRejected = errors.New("login rejected")
)

// Params configures a Jubi gateway.
type Params struct {
	Client   *api.Client
	Retry    *api.RetryConfig
	PageSize int
	// Now is used for cache-busting query parameters; defaults to time.Now.
	Now func() time.Time
}

// Jubi talks to the jubi.com private web endpoints.
type Jubi struct {
	client   *api.Client
	retry    *api.RetryConfig
	pageSize int
	now      func() time.Time
}

var _ interfaces.Exchange = (*Jubi)(nil)

// NewJubi creates a gateway. The client must already carry the base URL and user agent.
func NewJubi(p Params) *Jubi {
	if p.PageSize <= 0 {
		p.PageSize = 100
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Jubi{client: p.Client, retry: p.Retry, pageSize: p.PageSize, now: p.Now}
}

// Login posts the credential form and returns the session cookie built from
// the Set-Cookie response headers.
func (j *Jubi) Login(ctx context.Context, credentials map[string]string) (string, error) {
	form := url.Values{}
	for k, v := range credentials {
		form.Set(k, v)
	}

	var env envelope
	req := api.NewRequest(http.MethodPost, loginPath).WithContext(ctx).WithForm(form)
	resp, err := j.client.DoJSONWithRetry(req, j.retry, &env)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	if !env.ok() {
		return "", fmt.Errorf("%w: %s", ErrLoginRejected, env.Msg)
	}

	cookie := CookieHeader(resp.Cookies())
	if cookie == "" {
		return "", fmt.Errorf("%w: no session cookie in response", ErrLoginRejected)
	}
	return cookie, nil
}

// Finance returns the held balances keyed by coin, plus the coins in the
// order the endpoint listed them.
func (j *Jubi) Finance(ctx context.Context, cookie string) (map[string]types.Balance, []string, error) {
	var env envelope
	req := api.NewRequest(http.MethodGet, financePath).WithContext(ctx).WithCookie(cookie)
	if _, err := j.client.DoJSONWithRetry(req, j.retry, &env); err != nil {
		return nil, nil, fmt.Errorf("finance request failed: %w", err)
	}
	if !env.ok() {
		if env.Msg != "" {
			return nil, nil, fmt.Errorf("%w: %s", ErrFinanceUnavailable, env.Msg)
		}
		return nil, nil, ErrFinanceUnavailable
	}

	return ParseBalances(env.Data)
}

// Markets returns the full instrument listing keyed by coin.
func (j *Jubi) Markets(ctx context.Context, cookie string) (map[string]types.Market, error) {
	var raw map[string][]interface{}
	req := api.NewRequest(http.MethodGet, j.bust(marketsPath)).WithContext(ctx).WithCookie(cookie)
	if _, err := j.client.DoJSONWithRetry(req, j.retry, &raw); err != nil {
		return nil, fmt.Errorf("market listing request failed: %w", err)
	}
	return ParseMarkets(raw), nil
}

// Trends returns the previous-day close of every coin.
func (j *Jubi) Trends(ctx context.Context, cookie string) (map[string]types.Trend, error) {
	var raw map[string]map[string]interface{}
	req := api.NewRequest(http.MethodGet, j.bust(trendsPath)).WithContext(ctx).WithCookie(cookie)
	if _, err := j.client.DoJSONWithRetry(req, j.retry, &raw); err != nil {
		return nil, fmt.Errorf("trend listing request failed: %w", err)
	}

	trends := make(map[string]types.Trend, len(raw))
	for coin, fields := range raw {
		trends[coin] = types.Trend{Coin: coin, YesterdayPrice: cast.ToFloat64(fields["yprice"])}
	}
	return trends, nil
}

// Trades returns the most recent page of the user's fills for coin.
func (j *Jubi) Trades(ctx context.Context, cookie, coin string) ([]types.Trade, error) {
	var page tradePage
	path := fmt.Sprintf(tradesPath, url.PathEscape(coin), j.pageSize)
	req := api.NewRequest(http.MethodGet, path).WithContext(ctx).WithCookie(cookie)
	if _, err := j.client.DoJSONWithRetry(req, j.retry, &page); err != nil {
		return nil, fmt.Errorf("trade history request for %s failed: %w", coin, err)
	}

	trades := make([]types.Trade, 0, len(page.Data.Datas))
	for _, rt := range page.Data.Datas {
		dir := types.Sell
		if rt.T == buyTag || strings.EqualFold(rt.T, string(types.Buy)) {
			dir = types.Buy
		}
		trades = append(trades, types.Trade{
			Direction: dir,
			Quantity:  cast.ToFloat64(rt.N),
			Amount:    cast.ToFloat64(rt.S),
			Timestamp: cast.ToInt64(rt.C),
		})
	}
	return trades, nil
}

// bust appends a millisecond timestamp so intermediaries never serve a cached listing.
func (j *Jubi) bust(path string) string {
	return path + "?t=" + strconv.FormatInt(j.now().UnixMilli(), 10)
}

// ParseBalances walks the flat finance object in document order. Keys ending
// in _balance, _lock or _rate are folded into one Balance per coin; other keys
// are ignored.
func ParseBalances(data []byte) (map[string]types.Balance, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse finance data: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("failed to parse finance data: expected object, got %v", tok)
	}

	balances := make(map[string]types.Balance)
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse finance data: %w", err)
		}
		key, _ := tok.(string)

		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("failed to parse finance value %q: %w", key, err)
		}

		coin, field, ok := splitBalanceKey(key)
		if !ok {
			continue
		}
		b, seen := balances[coin]
		if !seen {
			b.Coin = coin
			order = append(order, coin)
		}
		switch field {
		case "balance":
			b.Balance = cast.ToFloat64(value)
		case "lock":
			b.Lock = cast.ToFloat64(value)
		case "rate":
			b.Rate = cast.ToFloat64(value)
		}
		balances[coin] = b
	}
	return balances, order, nil
}

func splitBalanceKey(key string) (coin, field string, ok bool) {
	for _, suffix := range balanceSuffixes {
		if strings.HasSuffix(key, "_"+suffix) && len(key) > len(suffix)+1 {
			return key[:len(key)-len(suffix)-1], suffix, true
		}
	}
	return "", "", false
}

// ParseMarkets converts the allcoin tuples [name, price, ?, ?, max, min, ...].
// Tuples too short to carry a price are skipped.
func ParseMarkets(raw map[string][]interface{}) map[string]types.Market {
	markets := make(map[string]types.Market, len(raw))
	for coin, tuple := range raw {
		if len(tuple) < 2 {
			continue
		}
		m := types.Market{
			Coin:  coin,
			Name:  cast.ToString(tuple[0]),
			Price: cast.ToFloat64(tuple[1]),
		}
		if len(tuple) > 5 {
			m.MaxPrice = cast.ToFloat64(tuple[4])
			m.MinPrice = cast.ToFloat64(tuple[5])
		}
		markets[coin] = m
	}
	return markets
}

// CookieHeader serializes cookies as a Cookie request header value.
func CookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
