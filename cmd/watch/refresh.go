package main

import (
	"context"
	"os"

	"jubi-watch/internal/logger"
)

type costResetter interface {
	Reset()
}

// refreshOnSignal drops the memoized cost prices each time sig fires, so the
// next pass recomputes them from trade history. Returns when ctx is done.
func refreshOnSignal(ctx context.Context, sig <-chan os.Signal, costs costResetter) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			logger.Info(ctx, "Refreshing cost prices", "signal", s.String())
			costs.Reset()
		}
	}
}
