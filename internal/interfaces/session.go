package interfaces

import "context"

type Session interface {
	Ensure(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}
