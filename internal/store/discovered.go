package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"pagegraph/internal/model"
)

// PendingDiscovered is an encoded_discovered row awaiting embedding,
// joined with its edge's target URL.
type PendingDiscovered struct {
	ID         uuid.UUID
	PageEdgeID uuid.UUID
	AnchorText string
	Snippet    string
	ToURL      string
	OwnerID    uuid.UUID
}

// UpsertDiscovered inserts one encoded_discovered row per edge. An
// existing row for the edge is left untouched.
func (s *Store) UpsertDiscovered(ctx context.Context, d *model.DiscoveredLink) error {
	var anchor sql.NullString
	if d.AnchorText != "" {
		anchor = sql.NullString{String: d.AnchorText, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO encoded_discovered (page_edge_id, anchor_text, snippet, user_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (page_edge_id) DO NOTHING`,
		d.PageEdgeID, anchor, d.Snippet, d.OwnerID)
	return classify(err)
}

const pendingDiscoveredQuery = `
	SELECT ed.id, ed.page_edge_id, coalesce(ed.anchor_text, ''), ed.snippet, pe.to_url, ed.user_id
	FROM encoded_discovered ed
	JOIN page_edges pe ON pe.id = ed.page_edge_id
	JOIN pages p ON p.id = pe.from_page
	WHERE ed.embedding IS NULL`

func (s *Store) scanPendingDiscovered(rows *sql.Rows) ([]PendingDiscovered, error) {
	defer rows.Close()
	var out []PendingDiscovered
	for rows.Next() {
		var d PendingDiscovered
		if err := rows.Scan(&d.ID, &d.PageEdgeID, &d.AnchorText, &d.Snippet, &d.ToURL, &d.OwnerID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListPendingDiscoveredBySource returns unembedded discovered links
// originating from any page of the source.
func (s *Store) ListPendingDiscoveredBySource(ctx context.Context, sourceID uuid.UUID) ([]PendingDiscovered, error) {
	rows, err := s.DB.QueryContext(ctx,
		pendingDiscoveredQuery+` AND p.source_id = $1 ORDER BY ed.created_at`, sourceID)
	if err != nil {
		return nil, err
	}
	return s.scanPendingDiscovered(rows)
}

// ListPendingDiscoveredByPage returns unembedded discovered links
// originating from one page. Used by the add-page pipeline.
func (s *Store) ListPendingDiscoveredByPage(ctx context.Context, pageID uuid.UUID) ([]PendingDiscovered, error) {
	rows, err := s.DB.QueryContext(ctx,
		pendingDiscoveredQuery+` AND p.id = $1 ORDER BY ed.created_at`, pageID)
	if err != nil {
		return nil, err
	}
	return s.scanPendingDiscovered(rows)
}

// CountPendingDiscoveredBySource counts unembedded discovered links
// for a source. Seeds encoding_discovered_total at the indexing
// transition.
func (s *Store) CountPendingDiscoveredBySource(ctx context.Context, sourceID uuid.UUID) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT count(*)
		 FROM encoded_discovered ed
		 JOIN page_edges pe ON pe.id = ed.page_edge_id
		 JOIN pages p ON p.id = pe.from_page
		 WHERE ed.embedding IS NULL AND p.source_id = $1`, sourceID).Scan(&n)
	return n, err
}

// SetDiscoveredEmbedding stores the snippet (possibly rewritten by
// dive mode) together with its vector.
func (s *Store) SetDiscoveredEmbedding(ctx context.Context, id uuid.UUID, snippet string, vector []float32) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE encoded_discovered
		 SET snippet = $2, embedding = $3::vector
		 WHERE id = $1`,
		id, snippet, encodeVector(vector))
	return err
}

// ClearStaleSuggestions nulls the embedding of every discovered link
// whose target URL is now an indexed page of the same conversation's
// sources. Those links must never be suggested again.
func (s *Store) ClearStaleSuggestions(ctx context.Context, conversationID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE encoded_discovered ed
		 SET embedding = NULL
		 FROM page_edges pe
		 WHERE ed.page_edge_id = pe.id
		   AND ed.embedding IS NOT NULL
		   AND EXISTS (
		       SELECT 1 FROM pages tp
		       JOIN sources src ON src.id = tp.source_id
		       WHERE src.conversation_id = $1
		         AND tp.status = 'indexed'
		         AND tp.url = pe.to_url)`,
		conversationID)
	return err
}

// PageIDsWithChunks returns the ids of the source's pages that already
// have chunk rows, so a later crawl does not chunk them again.
func (s *Store) PageIDsWithChunks(ctx context.Context, sourceID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT c.page_id
		 FROM chunks c
		 JOIN pages p ON p.id = c.page_id
		 WHERE p.source_id = $1`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// InsertChunks writes one batch of chunk rows with their vectors.
// len(chunks) must equal len(vectors).
func (s *Store) InsertChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, c := range chunks {
		var start, end sql.NullInt32
		if c.StartIndex != nil {
			start = sql.NullInt32{Int32: int32(*c.StartIndex), Valid: true}
		}
		if c.EndIndex != nil {
			end = sql.NullInt32{Int32: int32(*c.EndIndex), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (page_id, content, start_index, end_index, embedding, user_id)
			 VALUES ($1, $2, $3, $4, $5::vector, $6)`,
			c.PageID, c.Content, start, end, encodeVector(vectors[i]), c.OwnerID)
		if err != nil {
			return classify(err)
		}
	}
	return tx.Commit()
}
