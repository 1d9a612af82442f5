package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/input"
)

const minBackoff = 500 * time.Millisecond

// runWithBackoff restarts r until ctx is done, doubling the wait after each
// failure up to limit. A run that lasted longer than limit resets the wait.
func runWithBackoff(ctx context.Context, name string, r input.Runner, limit time.Duration) {
	if limit < minBackoff {
		limit = minBackoff
	}
	wait := minBackoff
	for {
		start := time.Now()
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > limit {
			wait = minBackoff
		}
		log.Warn().Err(err).Str("producer", name).Dur("retry_in", wait).Msg("producer stopped")

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		wait *= 2
		if wait > limit {
			wait = limit
		}
	}
}
