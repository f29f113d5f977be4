package types

import "math"

// Balance is one held coin as reported by the finance endpoint.
type Balance struct {
	Coin    string  `json:"coin"`
	Balance float64 `json:"balance"`
	Lock    float64 `json:"lock"`
	Rate    float64 `json:"rate"`
}

// Market is one row of the instrument listing.
type Market struct {
	Coin     string  `json:"coin"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	MaxPrice float64 `json:"max_price"`
	MinPrice float64 `json:"min_price"`
}

// Trend carries the previous day's closing price of a coin.
type Trend struct {
	Coin           string  `json:"coin"`
	YesterdayPrice float64 `json:"yprice"`
}

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Trade is one historical fill used for cost basis.
type Trade struct {
	Direction Direction `json:"direction"`
	Quantity  float64   `json:"quantity"`
	Amount    float64   `json:"amount"`
	Timestamp int64     `json:"timestamp"`
}

// Snapshot is everything one pass reads from the exchange.
type Snapshot struct {
	Balances     map[string]Balance
	BalanceOrder []string
	Markets      map[string]Market
	Trends       map[string]Trend
}

// Holding is an aggregated coin that passed the minimum value filter.
type Holding struct {
	Coin      string  `json:"coin"`
	Name      string  `json:"name"`
	Balance   float64 `json:"balance"`
	Price     float64 `json:"price"`
	MaxPrice  float64 `json:"max_price"`
	MinPrice  float64 `json:"min_price"`
	TodayRate float64 `json:"today_rate"` // percent, 2dp
	CostPrice float64 `json:"cost_price"`
	CostKnown bool    `json:"cost_known"`
}

// Value is balance × price.
func (h Holding) Value() float64 {
	return h.Balance * h.Price
}

// Row is one formatted table line.
type Row struct {
	Name        string  `json:"name"`
	Balance     float64 `json:"balance"`
	Price       float64 `json:"price"`
	CostPrice   float64 `json:"cost_price"`
	TodayRate   float64 `json:"today_rate"`
	TodayProfit float64 `json:"today_profit"`
	TotalProfit float64 `json:"total_profit"`
	ProfitRate  float64 `json:"profit_rate"`
}

// Summary totals a set of rows.
type Summary struct {
	Value       float64 `json:"value"`
	TodayProfit float64 `json:"today_profit"`
	TotalProfit float64 `json:"total_profit"`
}

// Finite reports whether f is neither NaN nor infinite.
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
