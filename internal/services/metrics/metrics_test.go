package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/models"
)

// recordingStore captures inserts and can be told to fail.
type recordingStore struct {
	mu      sync.Mutex
	metrics []*models.ConversionMetric
	failing bool
}

func (r *recordingStore) Insert(_ context.Context, m *models.ConversionMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("db down")
	}
	r.metrics = append(r.metrics, m)
	return nil
}

func (r *recordingStore) Summary(context.Context) (*models.MetricsSummary, error) { return nil, nil }
func (r *recordingStore) RecentFailures(context.Context, int) ([]models.ConversionMetric, error) {
	return nil, nil
}
func (r *recordingStore) DeleteFailures(context.Context) (int64, error) { return 0, nil }

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.metrics)
}

func sampleMetric() *models.ConversionMetric {
	return &models.ConversionMetric{
		ID:           "m-1",
		IdentityHash: "deadbeefdeadbeef",
		InputFormat:  "svg",
		OutputFormat: "ico",
		InputBytes:   1024,
		ProcessingMs: 42,
		Success:      true,
		CreatedAt:    time.Now(),
	}
}

func TestSinkRecordsAsynchronously(t *testing.T) {
	store := &recordingStore{}
	sink := NewSink(store, zap.NewNop())

	sink.Record(sampleMetric())
	assert.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSinkSwallowsStoreFailures(t *testing.T) {
	store := &recordingStore{failing: true}
	sink := NewSink(store, zap.NewNop())

	assert.NotPanics(t, func() { sink.Record(sampleMetric()) })
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, store.count())
}

func TestPostgresStoreInsert(t *testing.T) {
	mockdb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockdb.Close()

	db := sqlx.NewDb(mockdb, "sqlmock")
	store := NewPostgresStore(db)

	mock.ExpectExec("INSERT INTO conversion_metric").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Insert(context.Background(), sampleMetric()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSummary(t *testing.T) {
	mockdb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockdb.Close()

	db := sqlx.NewDb(mockdb, "sqlmock")
	store := NewPostgresStore(db)

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"total_conversions", "succeeded", "failed", "avg_processing_ms"}).
			AddRow(10, 8, 2, 120.5))
	mock.ExpectQuery("SELECT output_format").WillReturnRows(
		sqlmock.NewRows([]string{"output_format", "n"}).AddRow("ico", 6).AddRow("png", 4))
	mock.ExpectQuery("SELECT input_format").WillReturnRows(
		sqlmock.NewRows([]string{"input_format", "n"}).AddRow("svg", 10))

	summary, err := store.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), summary.TotalConversions)
	assert.Equal(t, int64(8), summary.Succeeded)
	assert.Equal(t, int64(6), summary.ByOutputFormat["ico"])
	assert.Equal(t, int64(10), summary.ByInputFormat["svg"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDeleteFailures(t *testing.T) {
	mockdb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockdb.Close()

	db := sqlx.NewDb(mockdb, "sqlmock")
	store := NewPostgresStore(db)

	mock.ExpectExec("DELETE FROM conversion_metric").
		WillReturnResult(sqlmock.NewResult(0, 2))

	deleted, err := store.DeleteFailures(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
