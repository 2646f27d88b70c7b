package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// queuedChannel is the pg_notify channel raised by the crawl_jobs
// insert trigger.
const queuedChannel = "crawl_jobs_queued"

const listenRetryDelay = 5 * time.Second

// Listener holds one dedicated connection in LISTEN mode and wakes the
// scheduler on every queued-job notification. A lost connection is
// retried; the scheduler's fallback ticker covers the gap.
type Listener struct {
	dsn   string
	sched *Scheduler
	log   *slog.Logger
}

func NewListener(dsn string, sched *Scheduler, log *slog.Logger) *Listener {
	return &Listener{
		dsn:   dsn,
		sched: sched,
		log:   log.With("component", "listener"),
	}
}

// Run blocks until ctx is cancelled. Callers run it in its own
// goroutine.
func (l *Listener) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := l.listenOnce(ctx); err != nil && ctx.Err() == nil {
			l.log.Warn("listen connection lost", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(listenRetryDelay):
			}
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+queuedChannel); err != nil {
		return err
	}
	l.log.Info("listening for queued jobs", "channel", queuedChannel)

	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return err
		}
		l.sched.Wake()
	}
}
