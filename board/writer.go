package board

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// patchWrite is one field update destined for the store.
type patchWrite struct {
	taskID string
	patch  domain.TaskPatch
}

// writeJob batches the persistence work of a single gesture.
type writeJob struct {
	patches []patchWrite
	deletes []string
}

// writer is the asynchronous persistence pool. Gestures hand their writes
// off without blocking; a saturated buffer falls back to a short timed
// handoff and finally to a dedicated goroutine, so the gesture path never
// waits on the store. Failures are logged and surfaced as transient
// notices; there is no rollback of the optimistic local state.
type writer struct {
	boardID string
	store   Store
	logger  *log.Logger
	notify  NoticeSink

	jobs    chan writeJob
	timeout time.Duration
	handoff time.Duration

	inflight sync.WaitGroup
	workerWG sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newWriter(boardID string, store Store, logger *log.Logger, notify NoticeSink, workers int) *writer {
	if workers <= 0 {
		workers = envInt("BOARD_WRITE_WORKERS", 4)
	}
	w := &writer{
		boardID: boardID,
		store:   store,
		logger:  logger,
		notify:  notify,
		jobs:    make(chan writeJob, envInt("BOARD_WRITE_BUFFER", 256)),
		timeout: envDur("BOARD_WRITE_TIMEOUT", 30*time.Second),
		handoff: envDur("BOARD_WRITE_HANDOFF", 15*time.Millisecond),
	}
	for i := 0; i < workers; i++ {
		w.workerWG.Add(1)
		go w.worker()
	}
	return w
}

func (w *writer) worker() {
	defer w.workerWG.Done()
	for job := range w.jobs {
		w.perform(job)
	}
}

// enqueue hands a job to the pool. The gesture path calls this after local
// state has already mutated, so the job must eventually run even when the
// buffer is saturated.
func (w *writer) enqueue(job writeJob) {
	if len(job.patches) == 0 && len(job.deletes) == 0 {
		return
	}
	w.inflight.Add(1)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.inflight.Done()
		return
	}
	select {
	case w.jobs <- job:
		w.mu.Unlock()
		return
	default:
	}
	w.mu.Unlock()

	if w.sendWithTimer(job) {
		return
	}
	w.logger.Warn("write buffer saturated; persisting on a dedicated goroutine")
	go func() {
		defer w.inflight.Done()
		w.performWrites(job)
	}()
}

// sendWithTimer attempts a timed handoff. A send on a channel closed by a
// concurrent shutdown is recovered and reported as a failed handoff.
func (w *writer) sendWithTimer(job writeJob) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	timer := time.NewTimer(w.handoff)
	defer timer.Stop()
	select {
	case w.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}

func (w *writer) perform(job writeJob) {
	defer w.inflight.Done()
	w.performWrites(job)
}

func (w *writer) performWrites(job writeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	failed := false
	for _, p := range job.patches {
		if err := w.store.UpdateTaskFields(ctx, w.boardID, p.taskID, p.patch); err != nil {
			w.logger.WithFields(log.Fields{
				"board": w.boardID,
				"task":  p.taskID,
			}).Errorf("persist task fields: %v", err)
			failed = true
		}
	}
	for _, id := range job.deletes {
		if err := w.store.DeleteTask(ctx, w.boardID, id); err != nil {
			w.logger.WithFields(log.Fields{
				"board": w.boardID,
				"task":  id,
			}).Errorf("delete task: %v", err)
			failed = true
		}
	}
	if failed {
		w.notify(Notice{Message: "Failed to move task. Please try again."})
	}
}

// quiesce waits for in-flight jobs, including the saturation-fallback
// goroutines. Used by tests and shutdown.
func (w *writer) quiesce() { w.inflight.Wait() }

func (w *writer) shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	w.workerWG.Wait()
	w.inflight.Wait()
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDur(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
