package metrics

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/icoforge/icoforge/internal/models"
)

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertMetricQuery = `
	INSERT INTO conversion_metric
		(id, identity_hash, input_format, output_format, input_bytes, output_bytes,
		 processing_ms, success, error_message, conversion_options, created_at)
	VALUES (:id, :identity_hash, :input_format, :output_format, :input_bytes, :output_bytes,
		 :processing_ms, :success, :error_message, :conversion_options, :created_at);
`

func (s *PostgresStore) Insert(ctx context.Context, metric *models.ConversionMetric) error {
	_, err := s.db.NamedExecContext(ctx, insertMetricQuery, metric)
	return err
}

const summaryQuery = `
	SELECT
		COUNT(*) AS total_conversions,
		COUNT(*) FILTER (WHERE success) AS succeeded,
		COUNT(*) FILTER (WHERE NOT success) AS failed,
		COALESCE(AVG(processing_ms), 0) AS avg_processing_ms
	FROM conversion_metric;
`

const byOutputFormatQuery = `
	SELECT output_format, COUNT(*) AS n
	FROM conversion_metric
	GROUP BY output_format;
`

const byInputFormatQuery = `
	SELECT input_format, COUNT(*) AS n
	FROM conversion_metric
	GROUP BY input_format;
`

func (s *PostgresStore) Summary(ctx context.Context) (*models.MetricsSummary, error) {
	summary := &models.MetricsSummary{
		ByOutputFormat: map[string]int64{},
		ByInputFormat:  map[string]int64{},
	}
	if err := s.db.GetContext(ctx, summary, summaryQuery); err != nil {
		return nil, err
	}

	var outRows []struct {
		OutputFormat string `db:"output_format"`
		N            int64  `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &outRows, byOutputFormatQuery); err != nil {
		return nil, err
	}
	for _, r := range outRows {
		summary.ByOutputFormat[r.OutputFormat] = r.N
	}

	var inRows []struct {
		InputFormat string `db:"input_format"`
		N           int64  `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &inRows, byInputFormatQuery); err != nil {
		return nil, err
	}
	for _, r := range inRows {
		summary.ByInputFormat[r.InputFormat] = r.N
	}

	return summary, nil
}

const recentFailuresQuery = `
	SELECT id, identity_hash, input_format, output_format, input_bytes, output_bytes,
	       processing_ms, success, error_message, conversion_options, created_at
	FROM conversion_metric
	WHERE NOT success
	ORDER BY created_at DESC
	LIMIT $1;
`

func (s *PostgresStore) RecentFailures(ctx context.Context, limit int) ([]models.ConversionMetric, error) {
	failures := []models.ConversionMetric{}
	err := s.db.SelectContext(ctx, &failures, recentFailuresQuery, limit)
	return failures, err
}

const deleteFailuresQuery = `DELETE FROM conversion_metric WHERE NOT success;`

func (s *PostgresStore) DeleteFailures(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, deleteFailuresQuery)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
