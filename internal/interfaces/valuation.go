package interfaces

import (
	"context"

	"jubi-watch/internal/types"
)

type CostResolver interface {
	AverageCost(ctx context.Context, cookie, coin string) (float64, error)
}

type Aggregator interface {
	Aggregate(ctx context.Context, cookie string, snap types.Snapshot) ([]types.Holding, error)
}

type Presenter interface {
	Status(msg string)
	Render(rows []types.Row, summary types.Summary) error
	Error(err error)
}

// History keeps a record of rendered valuations.
type History interface {
	Record(passID string, rows []types.Row, summary types.Summary) error
}
