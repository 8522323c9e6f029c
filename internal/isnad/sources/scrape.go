package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/anatolykoptev/go_isnad/internal/fetch"
	"github.com/anatolykoptev/go_isnad/internal/toolutil"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the Shamela library site.
const DefaultBaseURL = "https://shamela.ws"

const breadcrumbLabel = "مسار الصفحة الحالية"

var narratorRe = regexp.MustCompile(`/narrator/(\d+)`)

var challengeMarkers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("challenge-platform"),
	[]byte("just a moment"),
	[]byte("checking your browser"),
	[]byte(`id="cf-wrapper"`),
	[]byte(`id="cf-error-details"`),
	[]byte("error code 520"),
	[]byte("error code 522"),
	[]byte("cloudflare"),
}

// IsChallenge reports whether body is a CDN challenge or error page instead
// of a library page. Pages that carry hadith blocks are never challenges.
func IsChallenge(body []byte) bool {
	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte(`class="nass`)) {
		return false
	}
	for _, m := range challengeMarkers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ParsePage extracts the hadith blocks of a fetched page and classifies it.
func ParsePage(book, page int, url string, body []byte) ShamelaPage {
	p := ShamelaPage{BookID: book, PageNumber: page, URL: url}
	if len(body) < 100 {
		return p.failed(ReasonEmptyHTML, fmt.Sprintf("Empty HTML (%d chars)", len(body)))
	}
	if IsChallenge(body) {
		return p.failed(ReasonAPIFailure, "challenge page received")
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return p.failed(ReasonEmptyHTML, "parse html: "+err.Error())
	}
	doc := goquery.NewDocumentFromNode(root)

	nass := doc.Find("div.nass")
	nass.Each(func(_ int, sel *goquery.Selection) {
		p.Blocks = append(p.Blocks, parseBlock(sel))
	})
	if len(p.Blocks) == 0 {
		links := doc.Find("a[href*='/narrator/']").Length()
		return p.failed(ReasonNoHadithBlocks,
			fmt.Sprintf("No hadith blocks. div.nass count: %d, narrator links in page: %d", nass.Length(), links))
	}
	narrators := 0
	for _, b := range p.Blocks {
		narrators += len(b.Narrators)
	}
	if narrators == 0 {
		n := len(p.Blocks)
		p.Blocks = nil
		return p.failed(ReasonNoNarrators, fmt.Sprintf("%d hadith blocks but no narrator links", n))
	}

	p.Status = StatusSuccess
	p.Breadcrumbs = parseBreadcrumbs(doc)
	if v, ok := doc.Find("input#fld_specialNum_top").Attr("value"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			p.HadithNumber = &n
		}
	}
	return p
}

func (p ShamelaPage) failed(reason, msg string) ShamelaPage {
	p.Status = StatusFailed
	p.Reason = reason
	p.Message = msg
	return p
}

func parseBlock(sel *goquery.Selection) HadithBlock {
	var b HadithBlock
	sel.Find("a[href*='/narrator/']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := narratorRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return
		}
		b.Narrators = append(b.Narrators, BlockNarrator{ID: FlexID(id), Name: nodeText(a), URL: href})
	})
	b.Matn = nodeText(sel.Find("span.c2").First())

	clean := sel.Clone()
	clean.Find("a.btn_tag, span.fa, span.anchor").Remove()
	b.FullText = nodeText(clean)
	return b
}

func parseBreadcrumbs(doc *goquery.Document) []Breadcrumb {
	var links *goquery.Selection
	if label := doc.Find(":contains('" + breadcrumbLabel + "')").Last(); label.Length() > 0 {
		container := label
		for range 3 {
			if found := container.Find("a[href]"); found.Length() > 0 {
				links = found
				break
			}
			container = container.Parent()
		}
	}
	if links == nil {
		links = doc.Find(".breadcrumb, .breadcrumbs, #breadcrumb, .path, .navpath").First().Find("a[href]")
	}
	var out []Breadcrumb
	links.Each(func(_ int, a *goquery.Selection) {
		out = append(out, Breadcrumb{Text: nodeText(a), Href: a.AttrOr("href", "")})
	})
	return out
}

// nodeText joins the trimmed text nodes under sel with single spaces.
func nodeText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// ScrapeOptions configures a Scraper.
type ScrapeOptions struct {
	BaseURL string
	Workers int
	Cache   *fetch.Cache // parsed successful pages; nil disables
}

// Scraper turns Shamela book pages into ground-truth JSONL.
type Scraper struct {
	fetcher *fetch.Fetcher
	cache   *fetch.Cache
	baseURL string
	workers int
	mu      sync.Mutex
}

func NewScraper(f *fetch.Fetcher, opts ScrapeOptions) *Scraper {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Scraper{fetcher: f, cache: opts.Cache, baseURL: base, workers: workers}
}

// PageURL returns the address of one book page.
func (s *Scraper) PageURL(book, page int) string {
	return fmt.Sprintf("%s/book/%d/%d", s.baseURL, book, page)
}

// Page fetches and parses one page. Failures are reported in the returned
// page's status and reason, never as an error.
func (s *Scraper) Page(ctx context.Context, book, page int) ShamelaPage {
	key := fetch.Key("shamela", strconv.Itoa(book), strconv.Itoa(page))
	if p, ok := toolutil.CacheLoadJSON[ShamelaPage](ctx, s.cache, key); ok {
		return p
	}
	u := s.PageURL(book, page)
	body, err := s.fetcher.Get(ctx, u)
	if err != nil {
		p := ShamelaPage{BookID: book, PageNumber: page, URL: u}
		return p.failed(ReasonAPIFailure, err.Error())
	}
	p := ParsePage(book, page, u, body)
	if p.Status == StatusSuccess {
		toolutil.CacheStoreJSON(ctx, s.cache, key, p)
	}
	return p
}

// ScrapeSummary counts the outcomes of a range scrape.
type ScrapeSummary struct {
	Book      int            `json:"book"`
	Requested int            `json:"requested"`
	Skipped   int            `json:"skipped"`
	Succeeded int            `json:"succeeded"`
	Failed    map[string]int `json:"failed,omitempty"`
	Blocks    int            `json:"blocks"`
}

// ScrapeRange scrapes pages from..to of book and appends one JSONL line per
// page to out. Pages already recorded as successful in out are skipped.
func (s *Scraper) ScrapeRange(ctx context.Context, book, from, to int, out string) (*ScrapeSummary, error) {
	if from <= 0 || to < from {
		return nil, fmt.Errorf("sources: scrape: bad page range %d..%d", from, to)
	}
	pages := make([]int, 0, to-from+1)
	for page := from; page <= to; page++ {
		pages = append(pages, page)
	}
	return s.ScrapePages(ctx, book, pages, out)
}

// ScrapePages scrapes the listed pages of book, such as the rescrape list of a
// coverage report, appending to out the same way as ScrapeRange.
func (s *Scraper) ScrapePages(ctx context.Context, book int, pages []int, out string) (*ScrapeSummary, error) {
	pages = slices.Clone(pages)
	slices.Sort(pages)
	pages = slices.Compact(pages)
	if len(pages) > 0 && pages[0] <= 0 {
		return nil, fmt.Errorf("sources: scrape: bad page %d", pages[0])
	}
	done, err := successfulPages(out, book)
	if err != nil {
		return nil, fmt.Errorf("sources: scrape: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, fmt.Errorf("sources: scrape: %w", err)
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sources: scrape: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)

	sum := &ScrapeSummary{Book: book, Requested: len(pages), Failed: make(map[string]int)}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, page := range pages {
		if done[page] {
			sum.Skipped++
			continue
		}
		g.Go(func() error {
			p := s.Page(gctx, book, page)
			if err := gctx.Err(); err != nil {
				return err
			}
			slog.Info("shamela: page scraped", slog.Int("book", book), slog.Int("page", page),
				slog.String("status", p.Status), slog.String("reason", p.Reason))

			s.mu.Lock()
			defer s.mu.Unlock()
			if p.Status == StatusSuccess {
				sum.Succeeded++
				sum.Blocks += len(p.Blocks)
			} else {
				sum.Failed[p.Reason]++
			}
			return enc.Encode(p)
		})
	}
	if err := g.Wait(); err != nil {
		return sum, fmt.Errorf("sources: scrape: %w", err)
	}
	return sum, nil
}
