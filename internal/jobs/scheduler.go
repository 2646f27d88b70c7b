// Package jobs runs the worker's main loop: claim queued crawl jobs
// with bounded concurrency, dispatch each to the right pipeline, and
// wake on queue notifications, a fallback timer, or job completion.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pagegraph/internal/model"
)

// Pipeline executes one claimed job end to end. The crawl engine
// satisfies it.
type Pipeline interface {
	Run(ctx context.Context, job *model.CrawlJob) error
	RunAddPage(ctx context.Context, job *model.CrawlJob) error
}

// Store is the subset of store operations the scheduler needs.
type Store interface {
	ClaimNextJob(ctx context.Context) (*model.CrawlJob, error)
	SetJobStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, errMsg string) error
	TouchJob(ctx context.Context, id uuid.UUID) error
}

type Scheduler struct {
	store        Store
	pipeline     Pipeline
	maxJobs      int
	pollInterval time.Duration
	heartbeat    time.Duration
	log          *slog.Logger

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(st Store, p Pipeline, maxJobs int, pollInterval time.Duration, log *slog.Logger) *Scheduler {
	if maxJobs <= 0 {
		maxJobs = 3
	}
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Scheduler{
		store:        st,
		pipeline:     p,
		maxJobs:      maxJobs,
		pollInterval: pollInterval,
		heartbeat:    time.Minute,
		log:          log.With("component", "scheduler"),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Wake nudges the claim loop. Nudges arriving while one is already
// pending are coalesced.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the claim loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	slots := make(chan struct{}, s.maxJobs)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		// Keep claiming while there are free slots and queued jobs.
		if s.claim(ctx, slots) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

// claim tries to take one free slot and one queued job. It reports
// whether a job was launched so the caller can immediately try again.
func (s *Scheduler) claim(ctx context.Context, slots chan struct{}) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case slots <- struct{}{}:
	default:
		return false
	}

	job, err := s.store.ClaimNextJob(ctx)
	if err != nil || job == nil {
		if err != nil && ctx.Err() == nil {
			s.log.Error("job claim failed", "error", err)
		}
		<-slots
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			<-slots
			s.Wake()
		}()
		s.runJob(ctx, job)
	}()
	return true
}

func (s *Scheduler) runJob(ctx context.Context, job *model.CrawlJob) {
	log := s.log.With("job_id", job.ID, "source_id", job.SourceID)
	kind := "crawl"
	if job.AddPage() {
		kind = "add-page"
	}
	log.Info("job started", "kind", kind, "explicit_urls", len(job.ExplicitURLs))

	// Progress writes refresh last_activity_at, but slow phases (long
	// embedding batches, dive fetches) can outlast the stale-claim
	// window; the heartbeat keeps the row owned.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go s.heartbeatLoop(hbCtx, job.ID)

	var err error
	if job.AddPage() {
		err = s.pipeline.RunAddPage(ctx, job)
	} else {
		err = s.pipeline.Run(ctx, job)
	}
	if err == nil {
		log.Info("job finished", "kind", kind)
		return
	}

	if ctx.Err() != nil {
		// Shutdown mid-job: leave the row running so the stale-claim
		// recovery re-queues it.
		log.Warn("job interrupted by shutdown", "kind", kind)
		return
	}

	log.Error("job failed", "kind", kind, "error", err)
	failCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := s.store.SetJobStatus(failCtx, job.ID, model.JobFailed, err.Error()); serr != nil {
		log.Error("failed-status write failed", "error", serr)
	}
}

func (s *Scheduler) heartbeatLoop(ctx context.Context, id uuid.UUID) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.TouchJob(ctx, id); err != nil && ctx.Err() == nil {
				s.log.Warn("job heartbeat failed", "job_id", id, "error", err)
			}
		}
	}
}

// Stop cancels the loop and waits up to grace for in-flight jobs to
// finish.
func (s *Scheduler) Stop(grace time.Duration) {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(grace):
		s.log.Warn("shutdown grace elapsed with jobs in flight")
	}
}
