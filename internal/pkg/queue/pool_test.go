package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		Workers:     2,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
		JobTimeout:  time.Second,
	}
}

func startPool(t *testing.T, opts Options) (*Pool, *MemoryFailedJobStore) {
	t.Helper()
	failed := NewMemoryFailedJobStore()
	pool, err := NewPool(NewMemoryBroker(16), failed, opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})
	return pool, failed
}

type greeting struct {
	Name string `json:"name"`
}

func TestPool_RunsRegisteredHandler(t *testing.T) {
	pool, failed := startPool(t, testOptions())

	got := make(chan string, 1)
	pool.Register("greet", func(ctx context.Context, job Job) error {
		var g greeting
		if err := job.Decode(&g); err != nil {
			return err
		}
		got <- g.Name
		return nil
	})
	pool.Start(context.Background())

	id, err := pool.Enqueue(context.Background(), "greet", greeting{Name: "ada"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	select {
	case name := <-got:
		assert.Equal(t, "ada", name)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	_, total, err := failed.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPool_RetriesUntilSuccess(t *testing.T) {
	pool, failed := startPool(t, testOptions())

	var calls atomic.Int32
	done := make(chan struct{})
	pool.Register("flaky", func(ctx context.Context, job Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})
	pool.Start(context.Background())

	_, err := pool.Enqueue(context.Background(), "flaky", nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, int32(3), calls.Load())

	_, total, _ := failed.List(context.Background(), 10, 0)
	assert.Zero(t, total)
}

func TestPool_ExhaustedRetriesAreRecorded(t *testing.T) {
	pool, failed := startPool(t, testOptions())

	var calls atomic.Int32
	pool.Register("broken", func(ctx context.Context, job Job) error {
		calls.Add(1)
		return errors.New("smtp down")
	})
	pool.Start(context.Background())

	jobID, err := pool.Enqueue(context.Background(), "broken", greeting{Name: "x"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, total, _ := failed.List(context.Background(), 10, 0)
		return total == 1
	}, 2*time.Second, 5*time.Millisecond)

	jobs, _, err := failed.List(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID, jobs[0].JobID)
	assert.Equal(t, "broken", jobs[0].Type)
	assert.Equal(t, 3, jobs[0].Attempts)
	assert.Equal(t, "smtp down", jobs[0].Error)
	assert.JSONEq(t, `{"name":"x"}`, string(jobs[0].Payload))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPool_PanicIsTreatedAsFailure(t *testing.T) {
	opts := testOptions()
	opts.MaxAttempts = 1
	pool, failed := startPool(t, opts)

	pool.Register("explode", func(ctx context.Context, job Job) error {
		panic("boom")
	})
	pool.Start(context.Background())

	_, err := pool.Enqueue(context.Background(), "explode", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		jobs, _, _ := failed.List(context.Background(), 10, 0)
		return len(jobs) == 1 && jobs[0].Attempts == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPool_UnknownJobTypeIsDeadLettered(t *testing.T) {
	pool, failed := startPool(t, testOptions())
	pool.Start(context.Background())

	_, err := pool.Enqueue(context.Background(), "nobody-home", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		jobs, _, _ := failed.List(context.Background(), 10, 0)
		return len(jobs) == 1 && jobs[0].Error == ErrNoHandler.Error()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOptions_Backoff(t *testing.T) {
	o := Options{BackoffBase: 100 * time.Millisecond, BackoffMax: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{12, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, o.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	bad := DefaultOptions()
	bad.Workers = 0
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.BackoffMax = bad.BackoffBase / 2
	assert.Error(t, bad.Validate())
}

func TestMemoryBroker_ClosedRejectsPush(t *testing.T) {
	b := NewMemoryBroker(1)
	require.NoError(t, b.Close())

	err := b.Push(context.Background(), Job{ID: "1"})
	assert.ErrorIs(t, err, ErrBrokerClosed)

	_, err = b.Pop(context.Background())
	assert.ErrorIs(t, err, ErrBrokerClosed)
}

func TestPool_HandlerEnqueuesPastBrokerBuffer(t *testing.T) {
	opts := testOptions()
	opts.Workers = 1
	pool, err := NewPool(NewMemoryBroker(2), NewMemoryFailedJobStore(), opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})

	var delivered atomic.Int32
	pool.Register("leaf", func(ctx context.Context, job Job) error {
		delivered.Add(1)
		return nil
	})
	pool.Register("fanout", func(ctx context.Context, job Job) error {
		for i := 0; i < 5; i++ {
			if _, err := pool.Enqueue(ctx, "leaf", greeting{Name: "x"}); err != nil {
				return err
			}
		}
		return nil
	})
	pool.Start(context.Background())

	_, err = pool.Enqueue(context.Background(), "fanout", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return delivered.Load() == 5 }, 500*time.Millisecond, 5*time.Millisecond)
}

type ackCountingBroker struct {
	*MemoryBroker
	mu   sync.Mutex
	acks []int
}

func (b *ackCountingBroker) Ack(ctx context.Context, job Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acks = append(b.acks, job.Attempts)
	return nil
}

func (b *ackCountingBroker) ackedAttempts() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.acks...)
}

func TestPool_AcksEveryResolvedDelivery(t *testing.T) {
	broker := &ackCountingBroker{MemoryBroker: NewMemoryBroker(4)}
	failed := NewMemoryFailedJobStore()
	pool, err := NewPool(broker, failed, testOptions(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})

	pool.Register("broken", func(ctx context.Context, job Job) error {
		return errors.New("always")
	})
	pool.Start(context.Background())

	_, err = pool.Enqueue(context.Background(), "broken", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, total, _ := failed.List(context.Background(), 10, 0)
		return total == 1 && len(broker.ackedAttempts()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []int{1, 2, 3}, broker.ackedAttempts(), "each retry acks after it is requeued, the last after it is recorded")
}

func TestMemoryBroker_FIFOWithoutBlocking(t *testing.T) {
	b := NewMemoryBroker(1)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, b.Push(context.Background(), Job{ID: id}))
	}
	assert.Equal(t, 3, b.Len())

	for _, want := range []string{"a", "b", "c"} {
		job, err := b.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, job.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryBroker_WakesEveryWaitingConsumer(t *testing.T) {
	b := NewMemoryBroker(0)
	got := make(chan string, 3)
	for i := 0; i < 3; i++ {
		go func() {
			job, err := b.Pop(context.Background())
			if err == nil {
				got <- job.ID
			}
		}()
	}
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, b.Push(context.Background(), Job{ID: id}))
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case id := <-got:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("a consumer was not woken")
		}
	}
	assert.Len(t, seen, 3)
	require.NoError(t, b.Close())
}
