package valuation

import (
	"jubi-watch/internal/mathx"
	"jubi-watch/internal/types"
)

// Format turns holdings into display rows. Today's profit is capped at the
// total profit.
func Format(holdings []types.Holding) []types.Row {
	rows := make([]types.Row, 0, len(holdings))
	for _, h := range holdings {
		todayProfit := mathx.Round(h.Price*h.TodayRate/100*h.Balance, 0)
		totalProfit := mathx.Round((h.Price-h.CostPrice)*h.Balance, 0)
		if totalProfit < todayProfit {
			todayProfit = totalProfit
		}
		profitRate := mathx.Round((h.Price-h.CostPrice)/h.CostPrice*100, 4)

		rows = append(rows, types.Row{
			Name:        h.Name,
			Balance:     h.Balance,
			Price:       h.Price,
			CostPrice:   h.CostPrice,
			TodayRate:   h.TodayRate,
			TodayProfit: todayProfit,
			TotalProfit: totalProfit,
			ProfitRate:  profitRate,
		})
	}
	return rows
}

// Summarize totals the value and profits of rows. Rows whose figures are not
// finite are left out of the profit totals.
func Summarize(rows []types.Row) types.Summary {
	var s types.Summary
	for _, r := range rows {
		s.Value += r.Balance * r.Price
		if types.Finite(r.TodayProfit) {
			s.TodayProfit += r.TodayProfit
		}
		if types.Finite(r.TotalProfit) {
			s.TotalProfit += r.TotalProfit
		}
	}
	return s
}
