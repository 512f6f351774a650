// Package metrics records one append-only row per conversion attempt for
// offline rollup. Recording is fire-and-forget: a failed write is logged
// and dropped, never surfaced to the request path.
package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/models"
)

// Store persists conversion metrics and serves the admin read queries.
type Store interface {
	Insert(ctx context.Context, metric *models.ConversionMetric) error
	Summary(ctx context.Context) (*models.MetricsSummary, error)
	RecentFailures(ctx context.Context, limit int) ([]models.ConversionMetric, error)
	DeleteFailures(ctx context.Context) (int64, error)
}

const recordTimeout = 5 * time.Second

type Sink struct {
	store  Store
	logger *zap.Logger
}

func NewSink(store Store, logger *zap.Logger) *Sink {
	return &Sink{store: store, logger: logger}
}

// Record writes the metric asynchronously. The caller never blocks on the
// database and never sees recording errors.
func (s *Sink) Record(metric *models.ConversionMetric) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.store.Insert(ctx, metric); err != nil {
			s.logger.Warn("failed to record conversion metric",
				zap.String("metric_id", metric.ID),
				zap.Error(err))
		}
	}()
}
