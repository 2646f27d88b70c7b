package crawler

import (
	"context"
	"fmt"

	"pagegraph/internal/model"
	"pagegraph/internal/scraper"
	"pagegraph/internal/urlx"
)

// RunAddPage processes an add-page job: fetch the single explicit URL,
// store the page with its edges and discovered links, then run the
// single-page indexing variant. Unlike the main crawl, a fetch failure
// fails the job since the one URL is the whole job.
func (e *Engine) RunAddPage(ctx context.Context, job *model.CrawlJob) error {
	src, err := e.store.GetSource(ctx, job.SourceID)
	if err != nil {
		return err
	}

	pageURL := urlx.Normalize(job.ExplicitURLs[0])
	if err := e.store.SetJobTotalPages(ctx, job.ID, 1); err != nil {
		return err
	}

	policies := newPolicySet(e.fetcher.UserAgent())
	if !policies.Allows(ctx, pageURL) {
		return fmt.Errorf("robots policy forbids %s", pageURL)
	}

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

	links := parsed.ExtractLinksWithContext(scraper.LinkOptions{
		PageURL:        pageURL,
		SameDomainOnly: src.SameDomainOnly,
	})
	if src.Dynamic() && len(links) > maxLinksPerDynamicPage {
		links = links[:maxLinksPerDynamicPage]
	}
	if err := e.storeEdges(ctx, src, page, links); err != nil {
		return err
	}
	if err := e.store.UpdateJobProgress(ctx, job.ID, 1, len(links)); err != nil {
		return err
	}

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
	if err := e.indexer.IndexPage(ctx, job, src, page); err != nil {
		return err
	}

	return e.store.SetJobStatus(ctx, job.ID, model.JobCompleted, "")
}
