package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(limit int, window time.Duration) (*Limiter, *MemoryStore) {
	store := NewMemoryStore()
	return New(store, window, limit, time.Minute, zap.NewNop()), store
}

func TestCheckAndIncrementCountsMonotonically(t *testing.T) {
	l, _ := newTestLimiter(60, time.Hour)
	now := time.Now()

	for i := 1; i <= 5; i++ {
		d, err := l.CheckAndIncrement(context.Background(), "203.0.113.7", now)
		require.NoError(t, err)
		assert.Equal(t, i, d.TotalHits)
		assert.False(t, d.Blocked)
	}
}

func TestBlocksAboveLimit(t *testing.T) {
	l, _ := newTestLimiter(60, time.Hour)
	now := time.Now()

	var last *Decision
	for i := 0; i < 61; i++ {
		d, err := l.CheckAndIncrement(context.Background(), "203.0.113.7", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		last = d
	}

	assert.True(t, last.Blocked, "request 61 within the window is blocked")
	assert.Equal(t, 61, last.TotalHits)
	assert.Greater(t, last.TimeToExpire, 3500*time.Second)
	assert.LessOrEqual(t, last.TimeToExpire, 3600*time.Second)
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	l, _ := newTestLimiter(2, time.Hour)
	now := time.Now()

	for i := 0; i < 3; i++ {
		_, err := l.CheckAndIncrement(context.Background(), "198.51.100.2", now)
		require.NoError(t, err)
	}

	d, err := l.CheckAndIncrement(context.Background(), "198.51.100.2", now.Add(time.Hour+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalHits, "expired window logically resets on next access")
	assert.False(t, d.Blocked)
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(60, time.Hour)
	now := time.Now()

	_, err := l.CheckAndIncrement(context.Background(), "203.0.113.7", now)
	require.NoError(t, err)
	d, err := l.CheckAndIncrement(context.Background(), "203.0.113.8", now)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalHits)
}

func TestConcurrentIncrementsForOneIdentity(t *testing.T) {
	l, _ := newTestLimiter(1000, time.Hour)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.CheckAndIncrement(context.Background(), "203.0.113.7", now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	d, err := l.CheckAndIncrement(context.Background(), "203.0.113.7", now)
	require.NoError(t, err)
	assert.Equal(t, 51, d.TotalHits, "no increments are lost under concurrency")
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	_, _, err := store.Increment(context.Background(), "aaaa", now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, _, err = store.Increment(context.Background(), "bbbb", now, time.Hour)
	require.NoError(t, err)

	deleted, err := store.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, 1, store.Len())
}

func TestPostgresStoreIncrement(t *testing.T) {
	mockdb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockdb.Close()

	db := sqlx.NewDb(mockdb, "sqlmock")
	store := NewPostgresStore(db)

	now := time.Now()
	expires := now.Add(time.Hour)
	rows := sqlmock.NewRows([]string{"count", "expires_at"}).AddRow(3, expires)
	mock.ExpectQuery("INSERT INTO rate_limit").
		WithArgs("deadbeefdeadbeef", now, expires).
		WillReturnRows(rows)

	count, expiresAt, err := store.Increment(context.Background(), "deadbeefdeadbeef", now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.WithinDuration(t, expires, expiresAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDeleteExpired(t *testing.T) {
	mockdb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockdb.Close()

	db := sqlx.NewDb(mockdb, "sqlmock")
	store := NewPostgresStore(db)

	now := time.Now()
	mock.ExpectExec("DELETE FROM rate_limit").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := store.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweeperRemovesExpiredRecords(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, time.Hour, 60, 20*time.Millisecond, zap.NewNop())

	_, _, err := store.Increment(context.Background(), "cccc", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.StartSweeper(ctx)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
}
