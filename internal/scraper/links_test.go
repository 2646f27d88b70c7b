package scraper

import (
	"strings"
	"testing"
)

const pageURL = "https://en.wikipedia.org/wiki/Example"

func extractFrom(t *testing.T, html string, opts LinkOptions) []string {
	t.Helper()
	p := mustParse(t, html)
	return p.ExtractLinks(opts)
}

func TestExtractLinksSkipRules(t *testing.T) {
	html := `<html><body><main>
		<p><a href="#section">anchor only</a></p>
		<p><a href="https://en.wikipedia.org/wiki/Example">self link</a></p>
		<p><a href="/wiki/Special:Random">namespace</a></p>
		<p><a href="/wiki/Category:People">category</a></p>
		<p><a href="/wiki/Main_Page">main page</a></p>
		<p><a href="/docs/paper.pdf">pdf</a></p>
		<p><a href="mailto:someone@example.com">mail</a></p>
		<p><a href="javascript:void(0)">js</a></p>
		<p><a href="/wiki/Kept_Article">kept</a></p>
		<p><a href="/wiki/Kept_Article?oldid=5#History">kept duplicate</a></p>
	</main></body></html>`

	links := extractFrom(t, html, LinkOptions{PageURL: pageURL})
	if len(links) != 1 {
		t.Fatalf("got %d links %v, want 1", len(links), links)
	}
	if links[0] != "https://en.wikipedia.org/wiki/Kept_Article" {
		t.Errorf("link = %q", links[0])
	}
}

func TestExtractLinksSameDomainOnly(t *testing.T) {
	html := `<html><body><main>
		<p><a href="https://en.wikipedia.org/wiki/Inside">inside</a></p>
		<p><a href="https://sub.wikipedia.org/wiki/Sub">subdomain</a></p>
		<p><a href="https://other.example.com/page">outside</a></p>
	</main></body></html>`

	links := extractFrom(t, html, LinkOptions{PageURL: "https://www.wikipedia.org/start", SameDomainOnly: true})
	for _, l := range links {
		if strings.Contains(l, "other.example.com") {
			t.Errorf("cross-domain link kept: %q", l)
		}
	}
	if len(links) != 2 {
		t.Errorf("got %d links %v, want 2", len(links), links)
	}
}

func TestExtractLinksSkipsReferenceSections(t *testing.T) {
	html := `<html><body><main>
		<h2>Biography</h2>
		<p><a href="/wiki/Career_Article">career</a></p>
		<h2>References</h2>
		<ul><li><a href="/wiki/Cited_Work">cited</a></li></ul>
		<h2>Legacy</h2>
		<p><a href="/wiki/Legacy_Article">legacy</a></p>
		<h2>External links</h2>
		<ul><li><a href="https://example.org/official">official site</a></li></ul>
	</main></body></html>`

	links := extractFrom(t, html, LinkOptions{PageURL: pageURL})
	joined := strings.Join(links, " ")
	if strings.Contains(joined, "Cited_Work") {
		t.Errorf("reference-section link kept: %v", links)
	}
	if strings.Contains(joined, "official") {
		t.Errorf("external-links-section link kept: %v", links)
	}
	if !strings.Contains(joined, "Career_Article") || !strings.Contains(joined, "Legacy_Article") {
		t.Errorf("links outside skip sections lost: %v", links)
	}
}

func TestExtractLinksSkipSectionEndsAtSameLevelHeading(t *testing.T) {
	html := `<html><body><main>
		<h2>Notes</h2>
		<p><a href="/wiki/Note_Link">note</a></p>
		<h3>Sub of notes</h3>
		<p><a href="/wiki/Nested_Link">nested</a></p>
		<h2>After</h2>
		<p><a href="/wiki/After_Link">after</a></p>
	</main></body></html>`

	links := extractFrom(t, html, LinkOptions{PageURL: pageURL})
	joined := strings.Join(links, " ")
	if strings.Contains(joined, "Note_Link") || strings.Contains(joined, "Nested_Link") {
		t.Errorf("notes-section links kept: %v", links)
	}
	if !strings.Contains(joined, "After_Link") {
		t.Errorf("post-section link lost: %v", links)
	}
}

func TestExtractLinksWithContextSnippets(t *testing.T) {
	long := strings.Repeat("before text ", 30)
	html := `<html><body><main>
		<p>` + long + `<a href="/wiki/Deep_Topic">deep topic anchor</a> ` + long + `</p>
		<p>short <a href="/wiki/Short_Block">short block anchor</a></p>
		<p><a href="/wiki/X_Y_Topic">x</a></p>
	</main></body></html>`

	p := mustParse(t, html)
	links := p.ExtractLinksWithContext(LinkOptions{PageURL: pageURL})
	if len(links) != 3 {
		t.Fatalf("got %d links, want 3", len(links))
	}

	byURL := map[string]Link{}
	for _, l := range links {
		byURL[l.URL] = l
	}

	deep := byURL["https://en.wikipedia.org/wiki/Deep_Topic"]
	if !strings.Contains(deep.Snippet, "deep topic anchor") {
		t.Errorf("snippet does not contain anchor: %q", deep.Snippet)
	}
	if n := len([]rune(deep.Snippet)); n > snippetWindow {
		t.Errorf("snippet length = %d, want <= %d", n, snippetWindow)
	}

	short := byURL["https://en.wikipedia.org/wiki/Short_Block"]
	if !strings.Contains(short.Snippet, "short") {
		t.Errorf("short-block snippet = %q", short.Snippet)
	}

	// One-character anchor in a near-empty block falls back to a title
	// derived from the URL path.
	tiny := byURL["https://en.wikipedia.org/wiki/X_Y_Topic"]
	if !strings.HasPrefix(tiny.Snippet, "Link to ") {
		t.Errorf("tiny anchor snippet = %q, want derived placeholder", tiny.Snippet)
	}
	if !strings.Contains(tiny.Snippet, "X Y Topic") {
		t.Errorf("derived title missing from %q", tiny.Snippet)
	}
}

func TestContextWindowPlacement(t *testing.T) {
	anchor := "ANCHOR"
	early := anchor + " " + strings.Repeat("tail ", 100)
	win := contextWindow(early, anchor)
	if !strings.HasPrefix(win, anchor) {
		t.Errorf("early anchor window should start at anchor: %q", win[:20])
	}

	late := strings.Repeat("head ", 100) + anchor
	win = contextWindow(late, anchor)
	if !strings.HasSuffix(win, anchor) {
		t.Errorf("late anchor window should end at block end")
	}

	mid := strings.Repeat("head ", 60) + anchor + strings.Repeat(" tail", 60)
	win = contextWindow(mid, anchor)
	if !strings.Contains(win, anchor) {
		t.Errorf("centered window lost anchor")
	}
	if n := len([]rune(win)); n != snippetWindow {
		t.Errorf("window length = %d, want %d", n, snippetWindow)
	}
}

func TestWikiNamespaceOnlyOnWikiHosts(t *testing.T) {
	html := `<html><body><main>
		<p><a href="https://example.com/wiki/Special:Thing">not a wiki host path</a></p>
	</main></body></html>`
	links := extractFrom(t, html, LinkOptions{PageURL: "https://example.com/start"})
	if len(links) != 1 {
		t.Errorf("namespace rule applied off wiki hosts: %v", links)
	}
}
