package interfaces

import (
	"context"

	"jubi-watch/internal/types"
)

// Exchange is the set of private endpoints one valuation pass needs.
// cookie is the raw Cookie header of the current session; empty means anonymous.
type Exchange interface {
	Login(ctx context.Context, credentials map[string]string) (string, error)
	Finance(ctx context.Context, cookie string) (map[string]types.Balance, []string, error)
	Markets(ctx context.Context, cookie string) (map[string]types.Market, error)
	Trends(ctx context.Context, cookie string) (map[string]types.Trend, error)
	Trades(ctx context.Context, cookie, coin string) ([]types.Trade, error)
}
