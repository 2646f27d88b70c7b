package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"pagegraph/internal/model"
)

// staleAfter is how long a running job may go without activity before
// it is considered abandoned and re-queued.
const staleAfter = 5 * time.Minute

const jobColumns = `id, source_id, status,
	coalesce(array_to_string(explicit_urls, E'\n'), ''),
	indexed_count, discovered_count, total_pages,
	encoding_chunks_total, encoding_chunks_done,
	encoding_discovered_total, encoding_discovered_done,
	started_at, completed_at, last_activity_at, coalesce(error, '')`

func scanJob(row interface{ Scan(...any) error }) (*model.CrawlJob, error) {
	var j model.CrawlJob
	var explicit sql.NullString
	var totalPages sql.NullInt32
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.SourceID, &j.Status,
		&explicit,
		&j.IndexedCount, &j.DiscoveredCount, &totalPages,
		&j.EncodingChunksTotal, &j.EncodingChunksDone,
		&j.EncodingDiscoveredTotal, &j.EncodingDiscoveredDone,
		&startedAt, &completedAt, &j.LastActivityAt, &j.Error,
	)
	if err != nil {
		return nil, err
	}

	j.ExplicitURLs = decodeURLList(explicit)
	if totalPages.Valid {
		v := int(totalPages.Int32)
		j.TotalPages = &v
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// GetJob fetches a crawl job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*model.CrawlJob, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM crawl_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ClaimNextJob atomically claims the oldest queued job, first
// re-queueing running jobs abandoned by a restarted worker. It returns
// (nil, nil) when there is nothing to claim or another worker won the
// race.
func (s *Store) ClaimNextJob(ctx context.Context) (*model.CrawlJob, error) {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE crawl_jobs
		 SET status = 'queued', updated_at = now()
		 WHERE status = 'running' AND last_activity_at < now() - make_interval(secs => $1)`,
		staleAfter.Seconds())
	if err != nil {
		return nil, err
	}

	var id uuid.UUID
	err = s.DB.QueryRowContext(ctx,
		`SELECT id FROM crawl_jobs WHERE status = 'queued' ORDER BY created_at LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Conditional update: zero rows means another worker won the race.
	row := s.DB.QueryRowContext(ctx,
		`UPDATE crawl_jobs
		 SET status = 'running',
		     started_at = coalesce(started_at, now()),
		     last_activity_at = now(),
		     updated_at = now()
		 WHERE id = $1 AND status = 'queued'
		 RETURNING `+jobColumns, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// SetJobStatus transitions a job and optionally records an error
// message. Terminal transitions also set completed_at.
func (s *Store) SetJobStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, errMsg string) error {
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}

	completed := "completed_at"
	if status.Terminal() {
		completed = "now()"
	}

	_, err := s.DB.ExecContext(ctx,
		`UPDATE crawl_jobs
		 SET status = $2, error = coalesce($3, error),
		     completed_at = `+completed+`,
		     last_activity_at = now(), updated_at = now()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, status, msg)
	return err
}

// UpdateJobProgress writes the crawl counters and refreshes the
// activity timestamp. Counters are monotonic until the terminal
// update: a job re-run after restart recovery must never report less
// than the persisted values, so the write takes the maximum.
func (s *Store) UpdateJobProgress(ctx context.Context, id uuid.UUID, indexed, discovered int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE crawl_jobs
		 SET indexed_count = GREATEST(indexed_count, $2),
		     discovered_count = GREATEST(discovered_count, $3),
		     last_activity_at = now(), updated_at = now()
		 WHERE id = $1`,
		id, indexed, discovered)
	return err
}

// SetJobTotalPages records the page cap the crawl is working toward.
func (s *Store) SetJobTotalPages(ctx context.Context, id uuid.UUID, total int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE crawl_jobs SET total_pages = $2, updated_at = now() WHERE id = $1`,
		id, total)
	return err
}

// UpdateEncodingChunks writes chunk-embedding progress.
func (s *Store) UpdateEncodingChunks(ctx context.Context, id uuid.UUID, total, done int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE crawl_jobs
		 SET encoding_chunks_total = $2, encoding_chunks_done = $3,
		     last_activity_at = now(), updated_at = now()
		 WHERE id = $1`,
		id, total, done)
	return err
}

// UpdateEncodingDiscovered writes discovered-link-embedding progress.
func (s *Store) UpdateEncodingDiscovered(ctx context.Context, id uuid.UUID, total, done int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE crawl_jobs
		 SET encoding_discovered_total = $2, encoding_discovered_done = $3,
		     last_activity_at = now(), updated_at = now()
		 WHERE id = $1`,
		id, total, done)
	return err
}

// TouchJob refreshes last_activity_at so the claim recovery step does
// not re-queue a live job.
func (s *Store) TouchJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE crawl_jobs SET last_activity_at = now(), updated_at = now() WHERE id = $1`, id)
	return err
}
