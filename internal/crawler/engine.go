// Package crawler runs one claimed crawl job end to end: BFS over the
// seed set up to the depth's page cap, incremental page/edge/discovered
// writes, then the indexing phase. The queue, visited, and discovered
// sets belong to one job and never leave it.
package crawler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"pagegraph/internal/model"
	"pagegraph/internal/scraper"
	"pagegraph/internal/store"
	"pagegraph/internal/urlx"
)

const (
	// edgeBatchSize is how many edge upserts run between micro-pauses.
	edgeBatchSize = 50
	// edgeBatchPause separates edge upsert batches.
	edgeBatchPause = 100 * time.Millisecond
	// maxLinksPerDynamicPage bounds link extraction on dynamic sources.
	maxLinksPerDynamicPage = 200
	// maxDiscoveredPerPage bounds encoded-discovered rows per page.
	maxDiscoveredPerPage = 500
	// labelMaxChars bounds the source label copied from the first page.
	labelMaxChars = 100
)

// Store is the subset of store operations the engine needs. The store
// gateway satisfies it.
type Store interface {
	GetSource(ctx context.Context, id uuid.UUID) (*model.Source, error)
	GetJob(ctx context.Context, id uuid.UUID) (*model.CrawlJob, error)
	SetJobTotalPages(ctx context.Context, id uuid.UUID, total int) error
	SetJobStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, errMsg string) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, indexed, discovered int) error
	UpdateEncodingDiscovered(ctx context.Context, id uuid.UUID, total, done int) error
	CountPendingDiscoveredBySource(ctx context.Context, sourceID uuid.UUID) (int, error)
	InsertPage(ctx context.Context, p *model.Page) (*model.Page, error)
	SetSourceLabel(ctx context.Context, id uuid.UUID, label string) error
	UpsertEdge(ctx context.Context, fromPage uuid.UUID, toURL string, owner uuid.UUID) (uuid.UUID, error)
	UpsertDiscovered(ctx context.Context, d *model.DiscoveredLink) error
}

// Fetcher retrieves pages over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	UserAgent() string
}

// Indexer runs the post-crawl embedding phase.
type Indexer interface {
	IndexSource(ctx context.Context, job *model.CrawlJob, src *model.Source) error
	IndexPage(ctx context.Context, job *model.CrawlJob, src *model.Source, page *model.Page) error
}

type Engine struct {
	store     Store
	fetcher   Fetcher
	indexer   Indexer
	pageDelay time.Duration
	log       *slog.Logger
}

func New(st Store, fetcher Fetcher, ix Indexer, pageDelay time.Duration, log *slog.Logger) *Engine {
	return &Engine{
		store:     st,
		fetcher:   fetcher,
		indexer:   ix,
		pageDelay: pageDelay,
		log:       log.With("component", "crawler"),
	}
}

// crawlState is the per-job traversal state. visited holds canonical
// URLs already popped (stored or errored), discovered every canonical
// URL ever enqueued or extracted. The floors carry the counters a
// re-queued job persisted before a restart, so reported progress never
// drops below them.
type crawlState struct {
	visited    map[string]struct{}
	discovered map[string]struct{}
	queue      []string
	indexed    int
	labelSet   bool

	indexedFloor    int
	discoveredFloor int
}

func (st *crawlState) counts() (indexed, discovered int) {
	indexed = st.indexed
	if indexed < st.indexedFloor {
		indexed = st.indexedFloor
	}
	discovered = len(st.discovered)
	if discovered < st.discoveredFloor {
		discovered = st.discoveredFloor
	}
	return indexed, discovered
}

// Run executes a claimed main-crawl or re-crawl job. It owns the
// running → indexing → completed transitions; any returned error means
// the caller must mark the job failed.
func (e *Engine) Run(ctx context.Context, job *model.CrawlJob) error {
	src, err := e.store.GetSource(ctx, job.SourceID)
	if err != nil {
		return err
	}

	seeds := job.ExplicitURLs
	if len(seeds) == 0 {
		seeds = []string{src.InitialURL}
	}

	st := &crawlState{
		visited:         make(map[string]struct{}),
		discovered:      make(map[string]struct{}),
		labelSet:        src.Label != "",
		indexedFloor:    job.IndexedCount,
		discoveredFloor: job.DiscoveredCount,
	}
	for _, s := range seeds {
		canonical := urlx.Normalize(s)
		if _, dup := st.discovered[canonical]; dup {
			continue
		}
		st.discovered[canonical] = struct{}{}
		st.queue = append(st.queue, canonical)
	}

	pageCap := src.Depth.PageCap()
	if len(st.queue) > pageCap {
		pageCap = len(st.queue)
	}
	if err := e.store.SetJobTotalPages(ctx, job.ID, pageCap); err != nil {
		return err
	}

	policies := newPolicySet(e.fetcher.UserAgent())

	for len(st.queue) > 0 && len(st.visited) < pageCap {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Cancellation is polled at page boundaries: Recrawl (and the
		// UI) cancel by writing a terminal status to the row.
		stopped, err := e.jobStopped(ctx, job.ID)
		if err != nil {
			return err
		}
		if stopped {
			e.log.Info("job stopped externally, abandoning crawl", "job_id", job.ID)
			return nil
		}

		pageURL := urlx.Normalize(st.queue[0])
		st.queue = st.queue[1:]
		if _, seen := st.visited[pageURL]; seen {
			continue
		}
		st.visited[pageURL] = struct{}{}

		if !policies.Allows(ctx, pageURL) {
			e.log.Info("robots policy forbids url", "job_id", job.ID, "url", pageURL)
			continue
		}

		if err := e.crawlPage(ctx, job, src, pageURL, st); err != nil {
			if errors.Is(err, store.ErrParentDeleted) || ctx.Err() != nil {
				return err
			}
			e.log.Warn("page crawl failed", "job_id", job.ID, "url", pageURL, "error", err)
		}

		if len(st.queue) > 0 && len(st.visited) < pageCap {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.pageDelay):
			}
		}
	}

	return e.finish(ctx, job, src)
}

// crawlPage fetches, parses, and stores one page plus its outbound
// edges and discovered links. Errors are per-URL recoverable unless
// they carry the parent-deleted kind.
func (e *Engine) crawlPage(ctx context.Context, job *model.CrawlJob, src *model.Source, pageURL string, st *crawlState) error {
	html, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return err
	}
	parsed, err := scraper.Parse(html)
	if err != nil {
		return err
	}

	page, err := e.store.InsertPage(ctx, &model.Page{
		SourceID: src.ID,
		OwnerID:  src.OwnerID,
		URL:      pageURL,
		Title:    parsed.Title,
		Path:     pathOf(pageURL),
		Content:  parsed.Content,
		Status:   model.PageIndexed,
	})
	if err != nil {
		return err
	}
	st.indexed++

	if !st.labelSet {
		st.labelSet = true
		label := truncateLabel(scraper.StripTitleSuffix(parsed.Title))
		if label != "" {
			if err := e.store.SetSourceLabel(ctx, src.ID, label); err != nil {
				e.log.Warn("label update failed", "source_id", src.ID, "error", err)
			}
		}
	}

	links := parsed.ExtractLinksWithContext(scraper.LinkOptions{
		PageURL:        pageURL,
		SameDomainOnly: src.SameDomainOnly,
	})
	if src.Dynamic() && len(links) > maxLinksPerDynamicPage {
		links = links[:maxLinksPerDynamicPage]
	}

	for _, l := range links {
		if _, seen := st.discovered[l.URL]; seen {
			continue
		}
		st.discovered[l.URL] = struct{}{}
		st.queue = append(st.queue, l.URL)
	}

	if err := e.storeEdges(ctx, src, page, links); err != nil {
		return err
	}

	indexed, discovered := st.counts()
	return e.store.UpdateJobProgress(ctx, job.ID, indexed, discovered)
}

// jobStopped reports whether the job row has reached a terminal state
// since it was claimed.
func (e *Engine) jobStopped(ctx context.Context, id uuid.UUID) (bool, error) {
	cur, err := e.store.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	return cur.Status.Terminal(), nil
}

// storeEdges upserts the page's outbound edges in batches and, for
// dynamic sources, one encoded-discovered row per edge up to the
// per-page cap.
func (e *Engine) storeEdges(ctx context.Context, src *model.Source, page *model.Page, links []scraper.Link) error {
	for i, l := range links {
		if i > 0 && i%edgeBatchSize == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(edgeBatchPause):
			}
		}

		edgeID, err := e.store.UpsertEdge(ctx, page.ID, l.URL, src.OwnerID)
		if err != nil {
			return err
		}

		if !src.Dynamic() || i >= maxDiscoveredPerPage {
			continue
		}
		snippet := l.Snippet
		if src.SuggestionMode == model.SuggestDive || snippet == "" {
			// Dive mode rewrites the snippet from the target's lead at
			// embed time.
			snippet = "Link from page"
		}
		err = e.store.UpsertDiscovered(ctx, &model.DiscoveredLink{
			PageEdgeID: edgeID,
			AnchorText: l.AnchorText,
			Snippet:    snippet,
			OwnerID:    src.OwnerID,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// finish runs the indexing transition: status indexing, seed the
// discovered-embedding total, run the indexer, then complete. A job
// cancelled during the crawl never enters the embedding pass.
func (e *Engine) finish(ctx context.Context, job *model.CrawlJob, src *model.Source) error {
	stopped, err := e.jobStopped(ctx, job.ID)
	if err != nil {
		return err
	}
	if stopped {
		e.log.Info("job stopped externally, skipping indexing", "job_id", job.ID)
		return nil
	}

	if err := e.store.SetJobStatus(ctx, job.ID, model.JobIndexing, ""); err != nil {
		return err
	}

	if src.Dynamic() {
		total, err := e.store.CountPendingDiscoveredBySource(ctx, src.ID)
		if err != nil {
			return err
		}
		if err := e.store.UpdateEncodingDiscovered(ctx, job.ID, total, 0); err != nil {
			return err
		}
	}

	if err := e.indexer.IndexSource(ctx, job, src); err != nil {
		return err
	}

	return e.store.SetJobStatus(ctx, job.ID, model.JobCompleted, "")
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}

func truncateLabel(s string) string {
	r := []rune(s)
	if len(r) <= labelMaxChars {
		return s
	}
	return string(r[:labelMaxChars])
}
