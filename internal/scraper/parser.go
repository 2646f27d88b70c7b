package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxContentChars bounds the plain text stored per page.
const MaxContentChars = 50000

// contentSelectors are tried in order; the first match with non-empty
// text is treated as the page's main content region.
var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	"#bodyContent",
	".mw-parser-output",
}

// ParsedPage is the result of parsing one fetched document.
type ParsedPage struct {
	Title   string
	Content string

	doc     *goquery.Document
	content *goquery.Selection
}

// Parse builds a ParsedPage from raw HTML. The returned value keeps
// the parsed document so link extraction can reuse it.
func Parse(html string) (*ParsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	p := &ParsedPage{doc: doc}
	p.content = mainContent(doc)
	p.Title = pageTitle(doc)
	p.Content = truncate(normalizeText(p.content.Text()), MaxContentChars)
	return p, nil
}

// pageTitle returns the first non-empty of <title>, the first <h1>,
// or "Untitled".
func pageTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if h := strings.TrimSpace(doc.Find("h1").First().Text()); h != "" {
		return h
	}
	return "Untitled"
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		s := doc.Find(sel).First()
		if s.Length() > 0 && strings.TrimSpace(s.Text()) != "" {
			return s
		}
	}
	return doc.Find("body").First()
}

var titleSuffixRe = regexp.MustCompile(`(?i)\s*[-–—|]\s*(wikipedia(, the free encyclopedia)?|wiktionary|wikibooks|britannica|encyclopedia britannica|the free encyclopedia|fandom|wikihow)\s*$`)

// StripTitleSuffix removes well-known site suffixes such as
// "Article – Wikipedia". It is used for the source label only; page
// titles are stored as fetched.
func StripTitleSuffix(title string) string {
	return strings.TrimSpace(titleSuffixRe.ReplaceAllString(title, ""))
}

var multiSpaceRe = regexp.MustCompile(`[ \t]+`)
var multiNewlineRe = regexp.MustCompile(`\n{3,}`)

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = multiNewlineRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var fluffRes = []*regexp.Regexp{
	// Inline CSS that survives text extraction on MediaWiki pages.
	regexp.MustCompile(`\.mw-parser-output[^{}]*\{[^{}]*\}`),
	regexp.MustCompile(`[.#][\w-]+\s*\{[^{}]*\}`),
	// Coordinate fragments in article leads.
	regexp.MustCompile(`Coordinates?:\s*[^\n]*`),
	regexp.MustCompile(`\d+°\d+[′'][\d.]*[″"]?[NSEW][^\n]*?\d+°\d+[′'][\d.]*[″"]?[NSEW]`),
	// Encyclopedia boilerplate.
	regexp.MustCompile(`(?i)from [\w\s]+, the free encyclopedia`),
	regexp.MustCompile(`(?i)jump to (navigation|search)`),
}

// StripFluff removes CSS rules, coordinate fragments, and encyclopedia
// boilerplate from extracted text. Used to build the lead snippet for
// dive-mode discovered links.
func StripFluff(s string) string {
	for _, re := range fluffRes {
		s = re.ReplaceAllString(s, "")
	}
	return normalizeText(s)
}

// Lead returns the first n characters of the page's main content after
// fluff stripping.
func (p *ParsedPage) Lead(n int) string {
	return truncate(StripFluff(p.Content), n)
}
