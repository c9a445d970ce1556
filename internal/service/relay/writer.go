package relay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Writer runs persistence and publishing off the hub goroutine. Jobs run one
// at a time in submission order; failures are logged and dropped.
type Writer struct {
	jobs    chan job
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWriter starts a writer with a queue of the given depth.
func NewWriter(queue int, timeout time.Duration, log *zap.Logger) *Writer {
	if queue < 1 {
		queue = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &Writer{
		jobs:    make(chan job, queue),
		timeout: timeout,
		log:     log.Named("writer"),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	for j := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := j.run(ctx); err != nil {
			w.log.Warn("background write failed", zap.String("job", j.name), zap.Error(err))
		}
		cancel()
	}
}

// Submit queues fn without blocking. It reports false when the queue is full
// or the writer is closed.
func (w *Writer) Submit(name string, fn func(ctx context.Context) error) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}

	select {
	case w.jobs <- job{name: name, run: fn}:
		return true
	default:
		w.log.Warn("write queue full, dropping job", zap.String("job", name))
		return false
	}
}

// Close stops accepting jobs and waits for the queue to drain or ctx to end.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
