package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"pagegraph/internal/urlx"
)

// Link is an outbound link with the context used for semantic
// suggestion snippets.
type Link struct {
	URL        string
	Snippet    string
	AnchorText string
}

// LinkOptions controls link extraction for one page.
type LinkOptions struct {
	// PageURL is the canonical URL of the page being parsed. Links
	// equal to it are dropped, and relative hrefs resolve against it.
	PageURL string
	// SameDomainOnly drops links whose host is unrelated to PageURL.
	SameDomainOnly bool
}

const (
	snippetWindow     = 200
	snippetAnchorLead = 50
	minSnippetLen     = 20
	minAnchorLen      = 3
)

// Section headings whose links are excluded from extraction. Matched
// by equality or by prefix followed by a space or parenthesis.
var skipSectionNames = []string{
	"references",
	"citations",
	"external links",
	"further reading",
	"bibliography",
	"notes",
	"sources",
}

var wikiNamespaces = []string{
	"Wikipedia:", "Special:", "Portal:", "Help:", "Template:",
	"Category:", "File:", "Media:", "Talk:", "User:", "User_talk:",
}

// ExtractLinks returns the canonical URLs of outbound links in the
// main content region, applying all skip rules and de-duplicating.
func (p *ParsedPage) ExtractLinks(opts LinkOptions) []string {
	links := p.extract(opts, false)
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}
	return urls
}

// ExtractLinksWithContext returns outbound links together with their
// anchor text and a ~200-character snippet of surrounding text.
func (p *ParsedPage) ExtractLinksWithContext(opts LinkOptions) []Link {
	return p.extract(opts, true)
}

func (p *ParsedPage) extract(opts LinkOptions, withContext bool) []Link {
	base, err := url.Parse(opts.PageURL)
	if err != nil {
		base = nil
	}

	skipped := skippedNodes(p.content)
	seen := make(map[string]struct{})
	var out []Link

	p.content.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if len(a.Nodes) > 0 && inSkipped(a.Nodes[0], skipped) {
			return
		}

		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if !u.IsAbs() && base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			return
		}
		if wikiNamespaceURL(u) {
			return
		}

		canonical := urlx.Normalize(u.String())
		if canonical == opts.PageURL {
			return
		}
		if opts.SameDomainOnly && !urlx.SameDomain(canonical, opts.PageURL) {
			return
		}
		if _, dup := seen[canonical]; dup {
			return
		}
		seen[canonical] = struct{}{}

		link := Link{URL: canonical}
		if withContext {
			link.AnchorText = normalizeText(a.Text())
			link.Snippet = anchorSnippet(a, link.AnchorText, canonical)
		}
		out = append(out, link)
	})

	return out
}

// skippedNodes marks every node belonging to a skip section: the
// heading itself plus its following siblings until the next heading of
// the same level.
func skippedNodes(region *goquery.Selection) map[*html.Node]struct{} {
	skipped := make(map[*html.Node]struct{})

	region.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		if !skipSectionHeading(headingText(h)) {
			return
		}

		tag := goquery.NodeName(h)
		start := h
		// MediaWiki wraps headings in div.mw-heading<level>.
		if parent := h.Parent(); parent.HasClass("mw-heading") {
			start = parent
		}
		stop := fmt.Sprintf("%s, .mw-heading%s", tag, strings.TrimPrefix(tag, "h"))

		mark(skipped, start)
		start.NextUntil(stop).Each(func(_ int, sib *goquery.Selection) {
			mark(skipped, sib)
		})
	})

	return skipped
}

func mark(set map[*html.Node]struct{}, sel *goquery.Selection) {
	for _, n := range sel.Nodes {
		set[n] = struct{}{}
	}
}

func inSkipped(n *html.Node, set map[*html.Node]struct{}) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if _, ok := set[cur]; ok {
			return true
		}
	}
	return false
}

func headingText(h *goquery.Selection) string {
	t := strings.ToLower(strings.TrimSpace(h.Text()))
	// MediaWiki appends "[edit]" spans to headings.
	if i := strings.Index(t, "["); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

func skipSectionHeading(text string) bool {
	for _, name := range skipSectionNames {
		if text == name ||
			strings.HasPrefix(text, name+" ") ||
			strings.HasPrefix(text, name+"(") {
			return true
		}
	}
	return false
}

func wikiNamespaceURL(u *url.URL) bool {
	if !strings.Contains(strings.ToLower(u.Hostname()), "wiki") {
		return false
	}
	seg := u.Path
	if i := strings.LastIndex(seg, "/"); i >= 0 {
		seg = seg[i+1:]
	}
	if unescaped, err := url.PathUnescape(seg); err == nil {
		seg = unescaped
	}
	if seg == "Main_Page" {
		return true
	}
	for _, ns := range wikiNamespaces {
		if strings.HasPrefix(seg, ns) {
			return true
		}
	}
	return false
}

// anchorSnippet builds the ~200-character context window for an anchor
// inside its nearest enclosing block element, falling back to the
// anchor text and then to a derived placeholder.
func anchorSnippet(a *goquery.Selection, anchorText, canonical string) string {
	block := a.Closest("p, li, td, div.mw-parser-output")
	blockText := ""
	if block.Length() > 0 {
		blockText = normalizeText(block.Text())
	}

	if snippet := contextWindow(blockText, anchorText); len(snippet) >= minSnippetLen {
		return snippet
	}
	if len(anchorText) >= minAnchorLen {
		return anchorText
	}
	if title := derivedTitle(canonical); title != "" {
		return "Link to " + title
	}
	return "Link from page"
}

// contextWindow returns a window of snippetWindow runes around the
// anchor text inside the block. The window starts at the anchor when
// the anchor sits near the block start, ends at the block end when the
// anchor sits near it, and is centered otherwise.
func contextWindow(block, anchor string) string {
	if block == "" {
		return ""
	}

	runes := []rune(block)
	if len(runes) <= snippetWindow {
		return block
	}

	idx := 0
	if anchor != "" {
		if byteIdx := strings.Index(block, anchor); byteIdx >= 0 {
			idx = utf8.RuneCountInString(block[:byteIdx])
		}
	}
	anchorLen := utf8.RuneCountInString(anchor)

	var start int
	switch {
	case idx <= snippetAnchorLead:
		start = idx
	default:
		start = idx - (snippetWindow-anchorLen)/2
	}
	if start+snippetWindow > len(runes) {
		start = len(runes) - snippetWindow
	}
	if start < 0 {
		start = 0
	}

	return string(runes[start : start+snippetWindow])
}

// derivedTitle extracts a readable title from a URL path, e.g.
// "/wiki/Joe_Biden" becomes "Joe Biden".
func derivedTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	seg := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(seg, "/"); i >= 0 {
		seg = seg[i+1:]
	}
	if unescaped, err := url.PathUnescape(seg); err == nil {
		seg = unescaped
	}
	seg = strings.ReplaceAll(seg, "_", " ")
	seg = strings.ReplaceAll(seg, "-", " ")
	return strings.TrimSpace(seg)
}
