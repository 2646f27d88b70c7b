package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"pagegraph/internal/model"
)

// GetSource fetches a source by id.
func (s *Store) GetSource(ctx context.Context, id uuid.UUID) (*model.Source, error) {
	var src model.Source
	var label sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, conversation_id, initial_url, depth,
		        same_domain_only, suggestion_mode, label
		 FROM sources WHERE id = $1`, id).Scan(
		&src.ID, &src.OwnerID, &src.ConversationID, &src.InitialURL,
		&src.Depth, &src.SameDomainOnly, &src.SuggestionMode, &label)
	if err != nil {
		return nil, err
	}
	src.Label = label.String
	return &src, nil
}

// SetSourceLabel writes the source's display label, truncated by the
// caller. It only fills an empty label so re-crawls do not clobber it.
func (s *Store) SetSourceLabel(ctx context.Context, id uuid.UUID, label string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET label = $2 WHERE id = $1 AND (label IS NULL OR label = '')`,
		id, label)
	return err
}

// InsertPage inserts a page, or adopts the existing row when the
// (source, url) pair is already present.
func (s *Store) InsertPage(ctx context.Context, p *model.Page) (*model.Page, error) {
	row := s.DB.QueryRowContext(ctx,
		`INSERT INTO pages (source_id, user_id, url, title, path, content, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_id, url) DO NOTHING
		 RETURNING id`,
		p.SourceID, p.OwnerID, p.URL, p.Title, p.Path, p.Content, p.Status)

	err := row.Scan(&p.ID)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return nil, classify(err)
	}

	// Conflict: adopt the existing row.
	existing := &model.Page{}
	err = s.DB.QueryRowContext(ctx,
		`SELECT id, source_id, user_id, url, title, path, content, status
		 FROM pages WHERE source_id = $1 AND url = $2`,
		p.SourceID, p.URL).Scan(
		&existing.ID, &existing.SourceID, &existing.OwnerID, &existing.URL,
		&existing.Title, &existing.Path, &existing.Content, &existing.Status)
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// ListPagesBySource returns every page of a source.
func (s *Store) ListPagesBySource(ctx context.Context, sourceID uuid.UUID) ([]model.Page, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, source_id, user_id, url, title, path, content, status
		 FROM pages WHERE source_id = $1 ORDER BY created_at`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var p model.Page
		if err := rows.Scan(&p.ID, &p.SourceID, &p.OwnerID, &p.URL,
			&p.Title, &p.Path, &p.Content, &p.Status); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// UpsertEdge inserts a directed link and returns the edge id, whether
// freshly inserted or already present.
func (s *Store) UpsertEdge(ctx context.Context, fromPage uuid.UUID, toURL string, owner uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO page_edges (from_page, to_url, user_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (from_page, to_url) DO NOTHING
		 RETURNING id`,
		fromPage, toURL, owner).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, classify(err)
	}

	err = s.DB.QueryRowContext(ctx,
		`SELECT id FROM page_edges WHERE from_page = $1 AND to_url = $2`,
		fromPage, toURL).Scan(&id)
	return id, err
}

// IndexedURLsByConversation returns the canonical URLs of every
// indexed page across all of a conversation's sources.
func (s *Store) IndexedURLsByConversation(ctx context.Context, conversationID uuid.UUID) (map[string]struct{}, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT p.url
		 FROM pages p
		 JOIN sources src ON src.id = p.source_id
		 WHERE src.conversation_id = $1 AND p.status = 'indexed'`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls[u] = struct{}{}
	}
	return urls, rows.Err()
}
