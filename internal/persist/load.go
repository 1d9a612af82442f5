package persist

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/models"
)

// Load reads the persisted history, oldest first. A missing count means an
// empty history. Records that are missing or undecodable are skipped. When
// more than capacity records were stored only the newest capacity are read.
func Load(ctx context.Context, store Store, capacity int) ([]models.Message, error) {
	raw, err := store.Get(ctx, CountKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", Key: CountKey, Err: err}
	}

	count, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || count < 0 {
		log.Warn().Str("value", string(raw)).Msg("unreadable message count, starting empty")
		return nil, nil
	}

	start := 0
	if capacity > 0 && count > capacity {
		start = count - capacity
	}

	out := make([]models.Message, 0, count-start)
	skipped := 0
	for i := start; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		key := RecordKey(i)
		b, err := store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				log.Warn().Err(err).Str("key", key).Msg("record read failed")
			}
			skipped++
			continue
		}
		m, err := models.DecodeRecord(b)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, m)
	}

	log.Info().Int("loaded", len(out)).Int("skipped", skipped).Msg("history loaded")
	return out, nil
}
