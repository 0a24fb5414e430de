package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"

	"banana/storage-api/pkg/util"

	"go.uber.org/zap"
)

var (
	ErrQueueFull    = errors.New("job queue full")
	ErrQueueStopped = errors.New("job queue stopped")
)

type FFmpegJob struct {
	ID       string
	Username string
	Args     []string
	Ctx      context.Context
	Done     chan error
}

// JobQueue runs ffmpeg jobs on a fixed number of workers. Enqueue never
// blocks, a full queue is reported to the caller.
type JobQueue struct {
	jobs    chan *FFmpegJob
	running atomic.Int32
	mu      sync.RWMutex
	stopped bool
	workers int
	bin     string
}

// NewJobQueue initializes a new job queue that limits the max amount of
// jobs that can be queued at once to four per worker
func NewJobQueue(bin string, workers int) *JobQueue {
	workers = max(workers, 1)

	zap.L().Debug("Initializing job queue", zap.Int("workers", workers), zap.String("ffmpeg", bin))

	return &JobQueue{
		jobs:    make(chan *FFmpegJob, workers*4),
		workers: workers,
		bin:     bin,
	}
}

func (q *JobQueue) StartWorkerPool() {
	for range q.workers {
		go q.worker()
	}
}

// Stop lets the workers exit once the queue drained. Later calls to Enqueue
// return ErrQueueStopped.
func (q *JobQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}

	q.stopped = true
	close(q.jobs)
}

func (q *JobQueue) worker() {
	for job := range q.jobs {
		err := q.runFFmpegJob(job)

		job.Done <- err
		close(job.Done)

		q.running.Add(-1)

		if err != nil {
			zap.L().Error("FFmpeg job finished with an error",
				zap.String("username", job.Username),
				zap.String("job_id", job.ID),
				zap.Error(err))
		} else {
			zap.L().Debug("FFmpeg job finished successfully", zap.String("job_id", job.ID))
		}
	}
}

func (q *JobQueue) Enqueue(job *FFmpegJob) error {
	if job.ID == "" {
		job.ID = util.RandStr(5)
	}
	if job.Done == nil {
		job.Done = make(chan error, 1)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		return ErrQueueStopped
	}

	select {
	case q.jobs <- job:
		q.running.Add(1)
		zap.L().Debug("New ffmpeg job enqueued", zap.Int32("enqueued", q.running.Load()), zap.String("username", job.Username))
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *JobQueue) runFFmpegJob(job *FFmpegJob) error {
	if len(job.Args) == 0 {
		return errors.New("no arguments provided")
	}

	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := exec.CommandContext(ctx, q.bin, job.Args...)

	zap.L().Debug("Running FFmpeg command", zap.String("cmd", cmd.String()))

	stderrBuf := &bytes.Buffer{}
	cmd.Stderr = stderrBuf

	if err := cmd.Run(); err != nil {
		zap.L().Error("FFmpeg failed", zap.Error(err), zap.String("stderr", stderrBuf.String()))
		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	return nil
}
