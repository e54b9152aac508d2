// Package processing runs post-upload enrichment on a bounded worker pool and
// drives each record through pending -> processing -> completed|failed.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/princekumarofficial/video-service/internal/events"
	"github.com/princekumarofficial/video-service/internal/metrics"
	"github.com/princekumarofficial/video-service/internal/storage"
	"github.com/princekumarofficial/video-service/internal/types"
)

var ErrQueueClosed = errors.New("processing queue is closed")

// Job is one newly ingested video waiting for enrichment.
type Job struct {
	VideoID  string
	OwnerID  string
	Filename string
}

// StatusStore is the part of the metadata store the workers write to.
type StatusStore interface {
	TransitionStatus(ctx context.Context, id string, update types.StatusUpdate) error
}

// Paths resolves the files a job reads and writes.
type Paths interface {
	Resolve(filename string) (string, error)
	ThumbnailPath(id string) (string, error)
}

// ThumbnailMirror copies a generated thumbnail somewhere else, e.g. object storage.
type ThumbnailMirror interface {
	PublishThumbnail(ctx context.Context, videoID, localPath string) error
}

type Options struct {
	Workers   int
	QueueSize int
	// Timeout bounds one inspection.
	Timeout time.Duration
	// MaxRetries bounds store write attempts; RetryInterval is the first backoff.
	MaxRetries    uint
	RetryInterval time.Duration
}

func (o *Options) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Minute
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
}

type Queue struct {
	opts      Options
	jobs      chan Job
	store     StatusStore
	inspector Inspector
	paths     Paths
	publisher events.Publisher
	mirror    ThumbnailMirror

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue builds a queue; mirror may be nil and publisher defaults to
// events.Nop. Call Start to launch the workers.
func NewQueue(opts Options, store StatusStore, inspector Inspector, paths Paths, publisher events.Publisher, mirror ThumbnailMirror) *Queue {
	opts.withDefaults()
	if publisher == nil {
		publisher = events.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		opts:      opts,
		jobs:      make(chan Job, opts.QueueSize),
		store:     store,
		inspector: inspector,
		paths:     paths,
		publisher: publisher,
		mirror:    mirror,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (q *Queue) Start() {
	for i := 1; i <= q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	slog.Info("Processing workers started", slog.Int("workers", q.opts.Workers), slog.Int("queue_size", q.opts.QueueSize))
}

// Enqueue blocks until the job is accepted, ctx ends or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued and in-flight jobs. If ctx ends
// first, running inspections are cancelled and ctx.Err() is returned; the
// records they held stay in processing until the stale sweeper fails them.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		q.process(id, job)
	}
}

func (q *Queue) process(workerID int, job Job) {
	log := slog.With(slog.String("video_id", job.VideoID), slog.Int("worker_id", workerID))
	ctx := q.ctx

	if err := q.transition(ctx, job.VideoID, types.StatusUpdate{To: types.StatusProcessing}); err != nil {
		// Deleted, already claimed, or the store is down; in the last case
		// the stale sweeper fails the record later.
		log.Warn("Could not claim video for processing", slog.String("error", err.Error()))
		return
	}
	q.notify(log, job, types.ProcessingState{Status: types.StatusProcessing}, nil)

	metrics.ActiveJobs.Inc()
	started := time.Now()
	defer func() {
		metrics.ActiveJobs.Dec()
		metrics.ProcessingDuration.Observe(time.Since(started).Seconds())
	}()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Processing panicked", slog.Any("panic", r))
			q.fail(log, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	update, err := q.inspect(ctx, log, job)
	if err != nil {
		log.Error("Processing failed", slog.String("error", err.Error()))
		q.fail(log, job, err.Error())
		return
	}

	if err := q.transition(ctx, job.VideoID, update); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Info("Video deleted while processing")
			return
		}
		log.Error("Failed to record completion", slog.String("error", err.Error()))
		q.fail(log, job, "failed to record processing result")
		return
	}

	metrics.ProcessingJobs.WithLabelValues(string(types.StatusCompleted)).Inc()
	q.notify(log, job, types.ProcessingState{Status: types.StatusCompleted}, update.Duration)
	log.Info("Processing completed", slog.Float64("duration_seconds", *update.Duration))
}

// inspect runs the inspector and builds the completed update. It is never
// retried.
func (q *Queue) inspect(ctx context.Context, log *slog.Logger, job Job) (types.StatusUpdate, error) {
	videoPath, err := q.paths.Resolve(job.Filename)
	if err != nil {
		return types.StatusUpdate{}, err
	}
	thumbPath, err := q.paths.ThumbnailPath(job.VideoID)
	if err != nil {
		return types.StatusUpdate{}, err
	}

	ictx, cancel := context.WithTimeout(ctx, q.opts.Timeout)
	defer cancel()

	duration, err := q.inspector.Inspect(ictx, videoPath, thumbPath)
	if err != nil {
		return types.StatusUpdate{}, err
	}

	if q.mirror != nil {
		if err := q.mirror.PublishThumbnail(ctx, job.VideoID, thumbPath); err != nil {
			log.Warn("Thumbnail mirror failed, serving from disk", slog.String("error", err.Error()))
		}
	}

	thumbnail := filepath.Base(thumbPath)
	return types.StatusUpdate{
		To:        types.StatusCompleted,
		Duration:  &duration,
		Thumbnail: &thumbnail,
	}, nil
}

func (q *Queue) fail(log *slog.Logger, job Job, reason string) {
	state := types.Failed(reason)
	err := q.transition(q.ctx, job.VideoID, types.StatusUpdate{To: types.StatusFailed, Reason: state.Reason})
	if err != nil {
		log.Error("Failed to record processing failure", slog.String("error", err.Error()))
		return
	}
	metrics.ProcessingJobs.WithLabelValues(string(types.StatusFailed)).Inc()
	q.notify(log, job, state, nil)
}

// transition writes update with exponential backoff. Rejected transitions
// and unknown ids are permanent.
func (q *Queue) transition(ctx context.Context, id string, update types.StatusUpdate) error {
	operation := func() (struct{}, error) {
		err := q.store.TransitionStatus(ctx, id, update)
		if errors.Is(err, storage.ErrInvalidTransition) || errors.Is(err, storage.ErrNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.opts.RetryInterval
	bo.MaxInterval = 10 * time.Second

	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(q.opts.MaxRetries))
	return err
}

func (q *Queue) notify(log *slog.Logger, job Job, state types.ProcessingState, duration *float64) {
	if err := q.publisher.PublishStatusChanged(job.OwnerID, job.VideoID, state, duration); err != nil {
		log.Warn("Failed to publish status event", slog.String("error", err.Error()))
	}
}
