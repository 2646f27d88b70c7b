package model

import (
	"time"

	"github.com/google/uuid"
)

// CrawlDepth controls how many pages a main crawl may index.
type CrawlDepth string

const (
	DepthShallow  CrawlDepth = "shallow"
	DepthMedium   CrawlDepth = "medium"
	DepthDeep     CrawlDepth = "deep"
	DepthSingular CrawlDepth = "singular"
	DepthDynamic  CrawlDepth = "dynamic"
)

// PageCap maps a crawl depth to the maximum number of pages indexed
// by a main crawl of that depth.
func (d CrawlDepth) PageCap() int {
	switch d {
	case DepthShallow:
		return 5
	case DepthMedium:
		return 15
	case DepthDeep:
		return 35
	case DepthSingular, DepthDynamic:
		return 1
	default:
		return 5
	}
}

// SuggestionMode selects where a dynamic source's discovered-link
// snippets come from: the surrounding text on the crawled page
// (surface) or the target page's lead paragraph (dive).
type SuggestionMode string

const (
	SuggestSurface SuggestionMode = "surface"
	SuggestDive    SuggestionMode = "dive"
)

// JobStatus represents the lifecycle state of a crawl job. These
// values must match the text values stored in crawl_jobs.status.
//
// Centralizing these here avoids scattering string literals like
// "queued" or "completed" across packages.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobIndexing  JobStatus = "indexing"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether a job in this status never changes again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// PageStatus represents the lifecycle state of a page row.
type PageStatus string

const (
	PagePending  PageStatus = "pending"
	PageCrawling PageStatus = "crawling"
	PageIndexed  PageStatus = "indexed"
	PageError    PageStatus = "error"
)

// Source is a user-registered crawl seed. Sources are created by the
// UI; the worker only reads them and writes back the label.
type Source struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	ConversationID uuid.UUID
	InitialURL     string
	Depth          CrawlDepth
	SameDomainOnly bool
	SuggestionMode SuggestionMode
	Label          string
}

// Dynamic reports whether the source stores link context for semantic
// suggestions instead of crawling deeply.
func (s *Source) Dynamic() bool {
	return s.Depth == DepthDynamic
}

// CrawlJob is one unit of worker-side work against a source.
//
// ExplicitURLs is nil for a main crawl from the source's initial URL,
// a single URL for an add-page job, and a full seed list for a
// re-crawl.
type CrawlJob struct {
	ID           uuid.UUID
	SourceID     uuid.UUID
	Status       JobStatus
	ExplicitURLs []string

	IndexedCount    int
	DiscoveredCount int
	TotalPages      *int

	EncodingChunksTotal     int
	EncodingChunksDone      int
	EncodingDiscoveredTotal int
	EncodingDiscoveredDone  int

	StartedAt      *time.Time
	CompletedAt    *time.Time
	LastActivityAt time.Time
	Error          string
}

// AddPage reports whether this job is an add-page job for a single URL.
func (j *CrawlJob) AddPage() bool {
	return len(j.ExplicitURLs) == 1
}

// Page is one crawled document. URL is always canonical and unique
// per (source, url).
type Page struct {
	ID       uuid.UUID
	SourceID uuid.UUID
	OwnerID  uuid.UUID
	URL      string
	Title    string
	Path     string
	Content  string
	Status   PageStatus
}

// PageEdge is a directed outbound link from a crawled page. ToURL is
// canonical and may not correspond to a stored page yet.
type PageEdge struct {
	ID       uuid.UUID
	FromPage uuid.UUID
	ToURL    string
	OwnerID  uuid.UUID
}

// DiscoveredLink is an encoded_discovered row: an outbound link from a
// dynamic source's page, enriched with an embedded snippet so the
// search side can rank unvisited pages. HasVector is false while the
// snippet is still pending embedding; once the target URL is indexed
// the embedding is cleared so the link is never suggested again.
type DiscoveredLink struct {
	ID         uuid.UUID
	PageEdgeID uuid.UUID
	AnchorText string
	Snippet    string
	HasVector  bool
	OwnerID    uuid.UUID
}

// Chunk is an embedded slice of a page's content.
type Chunk struct {
	ID         uuid.UUID
	PageID     uuid.UUID
	Content    string
	StartIndex *int
	EndIndex   *int
	OwnerID    uuid.UUID
}
