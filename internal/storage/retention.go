package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Pruner is implemented by every storage backend.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// RunRetentionCleaner drops history older than maxAge every interval until
// ctx is done. A non-positive maxAge disables pruning.
func RunRetentionCleaner(ctx context.Context, store Pruner, maxAge, interval time.Duration, log zerolog.Logger) {
	if maxAge <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.PruneBefore(ctx, now.Add(-maxAge))
			if err != nil {
				log.Error().Err(err).Msg("error pruning history")
				continue
			}
			if n > 0 {
				log.Info().Int("removed", n).Msg("pruned history")
			}
		}
	}
}
