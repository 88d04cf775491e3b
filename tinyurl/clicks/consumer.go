package clicks

import (
	"context"
	"fmt"

	"codeberg.org/tinyurl/server/internal/bus"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
)

type store interface {
	Insert(ctx context.Context, m Message) (bool, error)
}

// receives every stored click, e.g. to fan out to live viewers
type Observer func(m Message)

// bus handler that persists click.events messages. redelivered messages are
// absorbed by the unique correlation id.
func IngestHandler(repo store, observers ...Observer) bus.Handler {
	return func(ctx context.Context, msg bus.Message) error {
		var m Message
		if err := msg.Decode(&m); err != nil {
			return err
		}

		if m.CorrelationID == "" || m.URLID == 0 {
			return fmt.Errorf("%w: click without url id or correlation id", bus.ErrMalformed)
		}

		inserted, err := repo.Insert(ctx, m)
		if err != nil {
			return err
		}

		if !inserted {
			metrics.ClicksIngested.WithLabelValues("duplicate").Inc()
			logger.Debug("duplicate click ignored", "correlation_id", m.CorrelationID)
			return nil
		}

		metrics.ClicksIngested.WithLabelValues("stored").Inc()

		for _, observe := range observers {
			observe(m)
		}

		return nil
	}
}
