package indexer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"pagegraph/internal/embed"
	"pagegraph/internal/model"
	"pagegraph/internal/scraper"
	"pagegraph/internal/store"
)

type fakeStore struct {
	mu            sync.Mutex
	pages         []model.Page
	chunked       map[uuid.UUID]struct{}
	inserted      []model.Chunk
	chunkTotals   [][2]int
	pendingSource []store.PendingDiscovered
	pendingPage   []store.PendingDiscovered
	indexedURLs   map[string]struct{}
	embedded      map[uuid.UUID]string
	discTotals    [][2]int
	cleared       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chunked:     make(map[uuid.UUID]struct{}),
		indexedURLs: make(map[string]struct{}),
		embedded:    make(map[uuid.UUID]string),
	}
}

func (f *fakeStore) ListPagesBySource(ctx context.Context, sourceID uuid.UUID) ([]model.Page, error) {
	return f.pages, nil
}

func (f *fakeStore) PageIDsWithChunks(ctx context.Context, sourceID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	return f.chunked, nil
}

func (f *fakeStore) UpdateEncodingChunks(ctx context.Context, id uuid.UUID, total, done int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkTotals = append(f.chunkTotals, [2]int{total, done})
	return nil
}

func (f *fakeStore) InsertChunks(ctx context.Context, chunks []model.Chunk, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func (f *fakeStore) ListPendingDiscoveredBySource(ctx context.Context, sourceID uuid.UUID) ([]store.PendingDiscovered, error) {
	return f.pendingSource, nil
}

func (f *fakeStore) ListPendingDiscoveredByPage(ctx context.Context, pageID uuid.UUID) ([]store.PendingDiscovered, error) {
	return f.pendingPage, nil
}

func (f *fakeStore) IndexedURLsByConversation(ctx context.Context, conversationID uuid.UUID) (map[string]struct{}, error) {
	return f.indexedURLs, nil
}

func (f *fakeStore) UpdateEncodingDiscovered(ctx context.Context, id uuid.UUID, total, done int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discTotals = append(f.discTotals, [2]int{total, done})
	return nil
}

func (f *fakeStore) SetDiscoveredEmbedding(ctx context.Context, id uuid.UUID, snippet string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedded[id] = snippet
	return nil
}

func (f *fakeStore) ClearStaleSuggestions(ctx context.Context, conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

// newEmbedServer answers every embeddings request with one fixed
// vector per input, in order.
func newEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		for range req.Input {
			resp.Data = append(resp.Data, item{Embedding: []float32{0.1, 0.2, 0.3}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestIndexer(t *testing.T, st *fakeStore) *Indexer {
	t.Helper()
	srv := newEmbedServer(t)
	t.Cleanup(srv.Close)
	ec := embed.NewClient(srv.URL, "", "test-model")
	fetcher := scraper.NewFetcher(time.Second, "pagegraph-worker/1.0")
	return New(st, ec, fetcher, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func indexedPage(title, content string) model.Page {
	return model.Page{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Title:   title,
		Content: content,
		Status:  model.PageIndexed,
	}
}

func TestIndexSourceSkipsAlreadyChunkedPages(t *testing.T) {
	st := newFakeStore()
	old := indexedPage("Old", "Content from an earlier crawl of this source.")
	fresh := indexedPage("Fresh", "Content stored by the current crawl job.")
	st.pages = []model.Page{old, fresh}
	st.chunked[old.ID] = struct{}{}

	src := &model.Source{ID: uuid.New(), ConversationID: uuid.New(), Depth: model.DepthShallow}
	job := &model.CrawlJob{ID: uuid.New(), SourceID: src.ID}

	if err := newTestIndexer(t, st).IndexSource(context.Background(), job, src); err != nil {
		t.Fatalf("IndexSource: %v", err)
	}

	if len(st.inserted) == 0 {
		t.Fatalf("no chunks inserted for the fresh page")
	}
	for _, c := range st.inserted {
		if c.PageID == old.ID {
			t.Fatalf("chunked an already-chunked page again")
		}
		if c.PageID != fresh.ID {
			t.Errorf("chunk for unexpected page %s", c.PageID)
		}
	}
	if len(st.chunkTotals) == 0 || st.chunkTotals[0][0] != len(st.inserted) {
		t.Errorf("encoding total %v does not match the %d inserted chunks", st.chunkTotals, len(st.inserted))
	}
	if st.cleared != 1 {
		t.Errorf("stale-suggestion cleanup ran %d times, want 1", st.cleared)
	}
}

func TestIndexPageSkipsChunkedPage(t *testing.T) {
	st := newFakeStore()
	page := indexedPage("Adopted", "This page was stored and chunked by an earlier job.")
	st.chunked[page.ID] = struct{}{}

	src := &model.Source{ID: uuid.New(), ConversationID: uuid.New(), Depth: model.DepthShallow}
	job := &model.CrawlJob{ID: uuid.New(), SourceID: src.ID}

	if err := newTestIndexer(t, st).IndexPage(context.Background(), job, src, &page); err != nil {
		t.Fatalf("IndexPage: %v", err)
	}

	if len(st.inserted) != 0 {
		t.Errorf("inserted %d chunks for an already-chunked page", len(st.inserted))
	}
}

func TestEmbedDiscoveredSkipsIndexedTargets(t *testing.T) {
	st := newFakeStore()
	already := store.PendingDiscovered{
		ID:      uuid.New(),
		ToURL:   "https://example.com/known",
		Snippet: "A link to a page that is already indexed.",
	}
	fresh := store.PendingDiscovered{
		ID:      uuid.New(),
		ToURL:   "https://example.com/new",
		Snippet: "A link to a page nobody has crawled yet.",
	}
	st.pendingSource = []store.PendingDiscovered{already, fresh}
	st.indexedURLs[already.ToURL] = struct{}{}

	src := &model.Source{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		Depth:          model.DepthDynamic,
		SuggestionMode: model.SuggestSurface,
	}
	job := &model.CrawlJob{ID: uuid.New(), SourceID: src.ID}

	if err := newTestIndexer(t, st).IndexSource(context.Background(), job, src); err != nil {
		t.Fatalf("IndexSource: %v", err)
	}

	if _, ok := st.embedded[already.ID]; ok {
		t.Errorf("embedded a link whose target is already indexed")
	}
	if st.embedded[fresh.ID] != fresh.Snippet {
		t.Errorf("fresh link snippet = %q, want %q", st.embedded[fresh.ID], fresh.Snippet)
	}
	if len(st.discTotals) == 0 || st.discTotals[0][0] != 1 {
		t.Errorf("discovered encoding totals = %v, want total 1", st.discTotals)
	}
}

func TestDiveKeepsSnippetOnFetchFailure(t *testing.T) {
	st := newFakeStore()
	link := store.PendingDiscovered{
		ID:      uuid.New(),
		ToURL:   "https://127.0.0.1:1/unreachable",
		Snippet: "Snippet captured while crawling the page.",
	}
	st.pendingSource = []store.PendingDiscovered{link}

	src := &model.Source{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		Depth:          model.DepthDynamic,
		SuggestionMode: model.SuggestDive,
	}
	job := &model.CrawlJob{ID: uuid.New(), SourceID: src.ID}

	if err := newTestIndexer(t, st).IndexSource(context.Background(), job, src); err != nil {
		t.Fatalf("IndexSource: %v", err)
	}

	if st.embedded[link.ID] != link.Snippet {
		t.Errorf("snippet = %q, want the crawl-time snippet kept", st.embedded[link.ID])
	}
}
