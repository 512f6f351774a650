package workerpool

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/apperrors"
	"github.com/icoforge/icoforge/internal/models"
	"github.com/icoforge/icoforge/internal/services/queue"
)

// fakeConverter crashes or stalls based on the job's original filename.
type fakeConverter struct {
	delay time.Duration
}

func (f *fakeConverter) Convert(job *models.Job) ([]models.Artifact, error) {
	if strings.HasPrefix(job.OriginalFilename, "crash") {
		panic("injected fault")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return []models.Artifact{{Filename: "out.ico", MIMEType: "image/x-icon", Data: []byte{1}}}, nil
}

func newPoolFixture(t *testing.T, workers, queueMax int, timeout time.Duration, conv Converter) (*queue.Queue, *Pool) {
	t.Helper()
	q := queue.New(queueMax, timeout, zap.NewNop())
	p := New(q, conv, workers, zap.NewNop())
	p.SpawnBackoff = 10 * time.Millisecond
	p.Start()
	t.Cleanup(func() {
		q.Shutdown()
		p.Shutdown()
	})
	return q, p
}

func enqueue(t *testing.T, q *queue.Queue, filename string) *queue.Future {
	t.Helper()
	fut, err := q.Enqueue(&models.Job{
		SourceType:       models.SourceSVG,
		SourceBytes:      []byte("<svg/>"),
		OriginalFilename: filename,
		Options:          models.DefaultOptions(),
	})
	require.NoError(t, err)
	return fut
}

func TestPoolCompletesJobs(t *testing.T) {
	q, _ := newPoolFixture(t, 2, 10, time.Second, &fakeConverter{})

	fut := enqueue(t, q, "ok.svg")
	select {
	case <-fut.Done():
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}

	artifacts, err := fut.Result()
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "out.ico", artifacts[0].Filename)
}

func TestWorkerCrashFailsJobAndRecovers(t *testing.T) {
	q, p := newPoolFixture(t, 2, 10, time.Second, &fakeConverter{})

	fut := enqueue(t, q, "crash.svg")
	select {
	case <-fut.Done():
	case <-time.After(time.Second):
		t.Fatal("crash was never reported")
	}

	_, err := fut.Result()
	require.Error(t, err)
	assert.Equal(t, apperrors.KindWorkerCrashed, apperrors.KindOf(err))

	// The pool replaces the dead worker and keeps serving.
	assert.Eventually(t, func() bool { return p.Size() == 2 }, 2*time.Second, 10*time.Millisecond,
		"pool size returns to steady state")

	fut = enqueue(t, q, "ok.svg")
	select {
	case <-fut.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("job after crash never completed")
	}
	_, err = fut.Result()
	assert.NoError(t, err)
}

func TestRepeatedCrashesDoNotStall(t *testing.T) {
	q, p := newPoolFixture(t, 1, 10, 2*time.Second, &fakeConverter{})

	for i := 0; i < 3; i++ {
		fut := enqueue(t, q, "crash.svg")
		select {
		case <-fut.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("crash was never reported")
		}
		assert.Eventually(t, func() bool { return p.Size() == 1 }, 2*time.Second, 10*time.Millisecond)
	}

	fut := enqueue(t, q, "ok.svg")
	select {
	case <-fut.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("job after crashes never completed")
	}
	_, err := fut.Result()
	assert.NoError(t, err)
}

func TestQueueFullReturnsBusy(t *testing.T) {
	q, _ := newPoolFixture(t, 1, 2, 5*time.Second, &fakeConverter{delay: 500 * time.Millisecond})

	var mu sync.Mutex
	busy := 0
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Enqueue(&models.Job{
				SourceType:       models.SourceSVG,
				SourceBytes:      []byte("<svg/>"),
				OriginalFilename: "slow.svg",
				Options:          models.DefaultOptions(),
			})
			if apperrors.Is(err, apperrors.KindBusy) {
				mu.Lock()
				busy++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, busy, 1, "at least one submission is rejected with Busy")
}

func TestShutdownLetsInFlightJobFinish(t *testing.T) {
	q := queue.New(10, 5*time.Second, zap.NewNop())
	p := New(q, &fakeConverter{delay: 100 * time.Millisecond}, 1, zap.NewNop())
	p.Start()

	fut := enqueue(t, q, "ok.svg")
	time.Sleep(20 * time.Millisecond) // let the worker pick it up

	q.Shutdown()
	p.Shutdown()

	require.True(t, fut.Settled())
	_, err := fut.Result()
	assert.NoError(t, err, "in-flight job completes during grace period")
}
