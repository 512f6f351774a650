package metrics

import (
	"context"

	"github.com/icoforge/icoforge/internal/models"
)

// NoopStore drops every metric. It backs the sink when the database is
// unavailable so conversions keep working without persistence.
type NoopStore struct{}

func (NoopStore) Insert(context.Context, *models.ConversionMetric) error { return nil }

func (NoopStore) Summary(context.Context) (*models.MetricsSummary, error) {
	return &models.MetricsSummary{
		ByOutputFormat: map[string]int64{},
		ByInputFormat:  map[string]int64{},
	}, nil
}

func (NoopStore) RecentFailures(context.Context, int) ([]models.ConversionMetric, error) {
	return []models.ConversionMetric{}, nil
}

func (NoopStore) DeleteFailures(context.Context) (int64, error) { return 0, nil }
