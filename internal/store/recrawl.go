package store

import (
	"context"

	"github.com/google/uuid"

	"pagegraph/internal/model"
)

// Recrawl resets a source and enqueues a fresh crawl job seeded with
// the URLs of the pages that existed before the reset. Active jobs for
// the source are cancelled first; pages, edges, discovered links, and
// chunks are deleted in one transaction (edge, discovered, and chunk
// rows cascade from pages).
func (s *Store) Recrawl(ctx context.Context, sourceID uuid.UUID) (*model.CrawlJob, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE crawl_jobs
		 SET status = 'cancelled', completed_at = now(), updated_at = now()
		 WHERE source_id = $1 AND status IN ('queued', 'running', 'indexing')`,
		sourceID)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT url FROM pages WHERE source_id = $1 ORDER BY created_at`, sourceID)
	if err != nil {
		return nil, err
	}
	var seeds []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, err
		}
		seeds = append(seeds, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pages WHERE source_id = $1`, sourceID); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx,
		`INSERT INTO crawl_jobs (source_id, status, explicit_urls)
		 VALUES ($1, 'queued', string_to_array(nullif($2, ''), E'\n'))
		 RETURNING `+jobColumns,
		sourceID, encodeURLList(seeds).String)
	job, err := scanJob(row)
	if err != nil {
		return nil, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return job, nil
}
