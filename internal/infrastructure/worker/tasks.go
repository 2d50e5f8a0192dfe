package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
)

// Worker names
const (
	IdempotencySweeperName = "IdempotencySweeper"
	StoreRefresherName     = "StoreRefresher"
)

// SweepIdempotencyKeys removes idempotency records that expired before now()
func SweepIdempotencyKeys(repo port.IdempotencyRepository, now func() time.Time, logger *zap.Logger) Task {
	return func(ctx context.Context) error {
		n, err := repo.DeleteExpired(ctx, now())
		if err != nil {
			return fmt.Errorf("failed to delete expired idempotency keys: %w", err)
		}
		if n > 0 {
			logger.Info("Expired idempotency keys removed", zap.Int64("count", n))
		}
		return nil
	}
}

// SummarySource lists every request as a summary row
type SummarySource interface {
	Summaries(ctx context.Context) ([]entity.RequestSummary, error)
}

// SummarySink receives a full snapshot of request summaries
type SummarySink interface {
	Replace(items []entity.RequestSummary)
}

// RefreshStore reloads the in-memory store from persistence
func RefreshStore(src SummarySource, sink SummarySink) Task {
	return func(ctx context.Context) error {
		items, err := src.Summaries(ctx)
		if err != nil {
			return fmt.Errorf("failed to load request summaries: %w", err)
		}
		sink.Replace(items)
		return nil
	}
}
