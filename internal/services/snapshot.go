package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"codecollab/internal/metrics"

	"github.com/cespare/xxhash/v2"
)

/*
LEARNING: SNAPSHOT WRITER WORKER POOL

The live content of each open document is saved in the background by a
fixed pool of workers, so a slow database never stalls the relay.

Unlike a plain shared-queue pool, every worker owns its own queue and a
document always hashes to the same worker. Two saves of one document are
therefore written in the order they were submitted, and an older snapshot
can never overwrite a newer one.
*/

var (
	ErrQueueFull    = errors.New("snapshot queue is full")
	ErrShuttingDown = errors.New("snapshot writer is shutting down")
)

// SnapshotJob asks for a document's content to be persisted.
type SnapshotJob struct {
	DocumentID string
	Content    string
	// Done, if set, is called by the worker once the write finished.
	Done func(err error)
}

// SnapshotWriter persists document content with a worker pool
type SnapshotWriter struct {
	store   ContentStore
	queues  []chan SnapshotJob
	timeout time.Duration

	mu     sync.RWMutex // guards closed against concurrent Submit/Shutdown
	closed bool
	wg     sync.WaitGroup
}

// NewSnapshotWriter creates the pool; call Start to spawn the workers.
// Returns concrete type - "Accept interfaces, return structs"
func NewSnapshotWriter(store ContentStore, numWorkers, queueSize int) *SnapshotWriter {
	if numWorkers < 1 {
		numWorkers = 1
	}
	queues := make([]chan SnapshotJob, numWorkers)
	for i := range queues {
		queues[i] = make(chan SnapshotJob, queueSize)
	}
	return &SnapshotWriter{
		store:   store,
		queues:  queues,
		timeout: 10 * time.Second,
	}
}

// Start spawns one goroutine per queue
func (w *SnapshotWriter) Start() {
	log.Printf("🔧 Starting snapshot writer with %d workers", len(w.queues))

	for i, q := range w.queues {
		w.wg.Add(1)
		go w.worker(i, q)
	}
}

func (w *SnapshotWriter) worker(id int, jobs <-chan SnapshotJob) {
	defer w.wg.Done()

	// Drains the queue even after Shutdown closed it.
	for job := range jobs {
		err := w.write(job)
		if err != nil {
			log.Printf("  Snapshot worker %d: %v", id, err)
			metrics.SnapshotSaves.WithLabelValues("error").Inc()
		} else {
			metrics.SnapshotSaves.WithLabelValues("ok").Inc()
		}
		if job.Done != nil {
			job.Done(err)
		}
	}
}

func (w *SnapshotWriter) write(job SnapshotJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.store.UpdateContent(ctx, job.DocumentID, job.Content); err != nil {
		return fmt.Errorf("failed to save snapshot of %s: %w", job.DocumentID, err)
	}
	return nil
}

func (w *SnapshotWriter) queueFor(documentID string) chan SnapshotJob {
	return w.queues[xxhash.Sum64String(documentID)%uint64(len(w.queues))]
}

// Submit queues a job without blocking.
func (w *SnapshotWriter) Submit(job SnapshotJob) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrShuttingDown
	}
	select {
	case w.queueFor(job.DocumentID) <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait queues a job, waiting for room in the queue until ctx is done.
func (w *SnapshotWriter) SubmitWait(ctx context.Context, job SnapshotJob) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrShuttingDown
	}
	select {
	case w.queueFor(job.DocumentID) <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueLength returns the number of jobs waiting across all workers
func (w *SnapshotWriter) QueueLength() int {
	n := 0
	for _, q := range w.queues {
		n += len(q)
	}
	return n
}

// Shutdown stops accepting jobs and waits until every queued job is written
func (w *SnapshotWriter) Shutdown() {
	log.Println("🛑 Shutting down snapshot writer...")

	w.mu.Lock()
	if !w.closed {
		w.closed = true
		for _, q := range w.queues {
			close(q)
		}
	}
	w.mu.Unlock()

	w.wg.Wait()

	log.Println("✓ Snapshot writer shutdown complete")
}
