// Package indexer turns crawled pages into embedded chunks and embeds
// the discovered-link snippets of dynamic sources. It runs inside the
// crawl worker after the crawl phase moves a job to indexing.
package indexer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"pagegraph/internal/embed"
	"pagegraph/internal/model"
	"pagegraph/internal/scraper"
	"pagegraph/internal/store"
)

const (
	// diveFetchDelay spaces out target-page fetches in dive mode.
	diveFetchDelay = 400 * time.Millisecond
	// progressInterval is the longest the job row may go without a
	// progress write while embedding is underway.
	progressInterval = 1200 * time.Millisecond
	// leadChars is the length of the target-page lead used as the
	// dive-mode snippet.
	leadChars = 200
)

// Store is the subset of store operations the indexer needs. The
// store gateway satisfies it.
type Store interface {
	ListPagesBySource(ctx context.Context, sourceID uuid.UUID) ([]model.Page, error)
	PageIDsWithChunks(ctx context.Context, sourceID uuid.UUID) (map[uuid.UUID]struct{}, error)
	UpdateEncodingChunks(ctx context.Context, id uuid.UUID, total, done int) error
	InsertChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error
	ListPendingDiscoveredBySource(ctx context.Context, sourceID uuid.UUID) ([]store.PendingDiscovered, error)
	ListPendingDiscoveredByPage(ctx context.Context, pageID uuid.UUID) ([]store.PendingDiscovered, error)
	IndexedURLsByConversation(ctx context.Context, conversationID uuid.UUID) (map[string]struct{}, error)
	UpdateEncodingDiscovered(ctx context.Context, id uuid.UUID, total, done int) error
	SetDiscoveredEmbedding(ctx context.Context, id uuid.UUID, snippet string, vector []float32) error
	ClearStaleSuggestions(ctx context.Context, conversationID uuid.UUID) error
}

type Indexer struct {
	store   Store
	embed   *embed.Client
	fetcher *scraper.Fetcher
	log     *slog.Logger
}

func New(st Store, ec *embed.Client, fetcher *scraper.Fetcher, log *slog.Logger) *Indexer {
	return &Indexer{
		store:   st,
		embed:   ec,
		fetcher: fetcher,
		log:     log.With("component", "indexer"),
	}
}

// IndexSource embeds every page chunk of the source and, for dynamic
// sources, the pending discovered links. Embedding-endpoint failures
// abort the current pass without failing the job: everything committed
// before the failure stays, and the rest is picked up by the next
// crawl of the source.
func (ix *Indexer) IndexSource(ctx context.Context, job *model.CrawlJob, src *model.Source) error {
	pages, err := ix.store.ListPagesBySource(ctx, src.ID)
	if err != nil {
		return err
	}

	// Pages adopted from an earlier job already have their chunks;
	// re-chunking them would duplicate rows (chunks has no natural key).
	chunked, err := ix.store.PageIDsWithChunks(ctx, src.ID)
	if err != nil {
		return err
	}

	var chunks []model.Chunk
	for _, p := range pages {
		if p.Status != model.PageIndexed {
			continue
		}
		if _, done := chunked[p.ID]; done {
			continue
		}
		chunks = append(chunks, pageChunks(&p)...)
	}
	if err := ix.embedChunks(ctx, job.ID, chunks); err != nil {
		return err
	}

	if src.Dynamic() {
		pending, err := ix.store.ListPendingDiscoveredBySource(ctx, src.ID)
		if err != nil {
			return err
		}
		if err := ix.embedDiscovered(ctx, job.ID, src, pending); err != nil {
			return err
		}
	}

	return ix.store.ClearStaleSuggestions(ctx, src.ConversationID)
}

// IndexPage is the add-page variant: it embeds the chunks of a single
// page plus the discovered links extracted from it.
func (ix *Indexer) IndexPage(ctx context.Context, job *model.CrawlJob, src *model.Source, page *model.Page) error {
	chunked, err := ix.store.PageIDsWithChunks(ctx, src.ID)
	if err != nil {
		return err
	}
	var chunks []model.Chunk
	if _, done := chunked[page.ID]; !done {
		chunks = pageChunks(page)
	}
	if err := ix.embedChunks(ctx, job.ID, chunks); err != nil {
		return err
	}

	if src.Dynamic() {
		pending, err := ix.store.ListPendingDiscoveredByPage(ctx, page.ID)
		if err != nil {
			return err
		}
		if err := ix.embedDiscovered(ctx, job.ID, src, pending); err != nil {
			return err
		}
	}

	return ix.store.ClearStaleSuggestions(ctx, src.ConversationID)
}

func pageChunks(p *model.Page) []model.Chunk {
	if strings.TrimSpace(p.Content) == "" {
		return nil
	}
	var out []model.Chunk
	for _, tc := range ChunkText(p.Content) {
		start, end := tc.Start, tc.End
		out = append(out, model.Chunk{
			PageID:     p.ID,
			Content:    tc.Content,
			StartIndex: &start,
			EndIndex:   &end,
			OwnerID:    p.OwnerID,
		})
	}
	return out
}

// embedChunks sends chunk texts to the embeddings endpoint in batches
// and commits each batch before requesting the next, so a failure never
// loses finished work.
func (ix *Indexer) embedChunks(ctx context.Context, jobID uuid.UUID, chunks []model.Chunk) error {
	total := len(chunks)
	if err := ix.store.UpdateEncodingChunks(ctx, jobID, total, 0); err != nil {
		return err
	}

	for start := 0; start < total; start += embed.BatchSize {
		end := min(start+embed.BatchSize, total)
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := ix.embed.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.log.Warn("chunk embedding pass aborted",
				"job_id", jobID, "done", start, "total", total, "error", err)
			return nil
		}

		if err := ix.store.InsertChunks(ctx, batch, vectors); err != nil {
			return err
		}
		if err := ix.store.UpdateEncodingChunks(ctx, jobID, total, end); err != nil {
			return err
		}
	}
	return nil
}

// embedDiscovered embeds pending discovered-link snippets, skipping
// links whose target is already an indexed page somewhere in the
// conversation.
func (ix *Indexer) embedDiscovered(ctx context.Context, jobID uuid.UUID, src *model.Source, pending []store.PendingDiscovered) error {
	indexed, err := ix.store.IndexedURLsByConversation(ctx, src.ConversationID)
	if err != nil {
		return err
	}

	todo := pending[:0]
	for _, d := range pending {
		if _, ok := indexed[d.ToURL]; ok {
			continue
		}
		todo = append(todo, d)
	}

	total := len(todo)
	if err := ix.store.UpdateEncodingDiscovered(ctx, jobID, total, 0); err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	if src.SuggestionMode == model.SuggestDive {
		return ix.embedDiscoveredDive(ctx, jobID, todo)
	}
	return ix.embedDiscoveredSurface(ctx, jobID, todo)
}

// embedDiscoveredSurface embeds the snippets captured during the crawl,
// batch by batch.
func (ix *Indexer) embedDiscoveredSurface(ctx context.Context, jobID uuid.UUID, todo []store.PendingDiscovered) error {
	total := len(todo)
	for start := 0; start < total; start += embed.BatchSize {
		end := min(start+embed.BatchSize, total)
		batch := todo[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Snippet
		}

		vectors, err := ix.embed.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.log.Warn("discovered-link embedding pass aborted",
				"job_id", jobID, "done", start, "total", total, "error", err)
			return nil
		}

		for i, d := range batch {
			if err := ix.store.SetDiscoveredEmbedding(ctx, d.ID, d.Snippet, vectors[i]); err != nil {
				return err
			}
		}
		if err := ix.store.UpdateEncodingDiscovered(ctx, jobID, total, end); err != nil {
			return err
		}
	}
	return nil
}

// embedDiscoveredDive fetches each link target, replaces the snippet
// with the target page's lead, and embeds one link at a time. A fetch
// failure keeps the snippet captured during the crawl.
func (ix *Indexer) embedDiscoveredDive(ctx context.Context, jobID uuid.UUID, todo []store.PendingDiscovered) error {
	total := len(todo)
	lastProgress := time.Now()

	for i, d := range todo {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(diveFetchDelay):
			}
		}

		snippet := d.Snippet
		if lead := ix.fetchLead(ctx, d.ToURL); lead != "" {
			snippet = lead
		}

		vectors, err := ix.embed.Embed(ctx, []string{snippet})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ix.log.Warn("discovered-link embedding pass aborted",
				"job_id", jobID, "done", i, "total", total, "error", err)
			return nil
		}

		if err := ix.store.SetDiscoveredEmbedding(ctx, d.ID, snippet, vectors[0]); err != nil {
			return err
		}

		if i == total-1 || time.Since(lastProgress) >= progressInterval {
			if err := ix.store.UpdateEncodingDiscovered(ctx, jobID, total, i+1); err != nil {
				return err
			}
			lastProgress = time.Now()
		}
	}
	return nil
}

func (ix *Indexer) fetchLead(ctx context.Context, url string) string {
	html, err := ix.fetcher.Fetch(ctx, url)
	if err != nil {
		ix.log.Debug("dive fetch failed, keeping crawl snippet", "url", url, "error", err)
		return ""
	}
	parsed, err := scraper.Parse(html)
	if err != nil {
		return ""
	}
	return parsed.Lead(leadChars)
}
