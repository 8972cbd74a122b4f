package queue

import (
	"context"
	"sort"
	"sync"
)

// MemoryBroker keeps pending jobs in an in-process FIFO. Push never blocks, so a
// handler may enqueue follow-up jobs into the pool it runs on. Jobs do not
// survive a restart.
type MemoryBroker struct {
	mu      sync.Mutex
	pending []Job
	closed  bool

	// ready wakes one waiting Pop; a woken Pop passes the signal on while jobs remain
	ready chan struct{}
	done  chan struct{}
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemoryBroker creates a broker whose queue is pre-sized to buffer jobs.
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer < 0 {
		buffer = 0
	}
	return &MemoryBroker{
		pending: make([]Job, 0, buffer),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (b *MemoryBroker) Push(_ context.Context, job Job) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	b.pending = append(b.pending, job)
	b.mu.Unlock()

	b.signal()
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context) (Job, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return Job{}, ErrBrokerClosed
		}
		if len(b.pending) > 0 {
			job := b.pending[0]
			b.pending[0] = Job{}
			b.pending = b.pending[1:]
			more := len(b.pending) > 0
			b.mu.Unlock()
			if more {
				b.signal()
			}
			return job, nil
		}
		b.mu.Unlock()

		select {
		case <-b.ready:
		case <-b.done:
			return Job{}, ErrBrokerClosed
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}
}

func (b *MemoryBroker) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Ack is a no-op; a popped job lives only in the worker that holds it.
func (b *MemoryBroker) Ack(context.Context, Job) error {
	return nil
}

// Len returns the number of pending jobs.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

// MemoryFailedJobStore keeps dead-lettered jobs in memory.
type MemoryFailedJobStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   []FailedJob
}

var _ FailedJobStore = (*MemoryFailedJobStore)(nil)

func NewMemoryFailedJobStore() *MemoryFailedJobStore {
	return &MemoryFailedJobStore{}
}

func (s *MemoryFailedJobStore) Record(_ context.Context, job FailedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	job.ID = s.nextID
	s.jobs = append(s.jobs, job)
	return nil
}

// List returns the most recent failures first.
func (s *MemoryFailedJobStore) List(_ context.Context, limit int, offset uint64) ([]FailedJob, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]FailedJob, len(s.jobs))
	copy(all, s.jobs)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	if offset >= uint64(len(all)) {
		return []FailedJob{}, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}
