package sources

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
)

// A hadith number opens a narration: digits, an optional bracketed note, then a dash.
var hadithNumberRe = regexp.MustCompile(`(?:^|[^0-9٠-٩])([0-9٠-٩]{1,6})\s*(?:\([^)]*\)\s*)?[-–—]`)

// PageFailure is a page whose recorded scrapes all failed.
type PageFailure struct {
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}

// DuplicateHadith is a hadith number seen on more than one page.
type DuplicateHadith struct {
	Number int   `json:"number"`
	Pages  []int `json:"pages"`
}

// CoverageReport describes how completely a JSONL file covers a page range
// of one book.
type CoverageReport struct {
	Book      int `json:"book_id"`
	From      int `json:"page_from"`
	To        int `json:"page_to"`
	Requested int `json:"pages_in_range"`
	Succeeded int `json:"pages_scraped_ok"`

	Failed []PageFailure `json:"pages_failed"`

	// NoNarrators pages held text without narrator links and are not retried.
	NoNarrators     []int `json:"pages_no_narrators"`
	Missing         []int `json:"pages_missing"`
	PagesToRescrape []int `json:"pages_to_rescrape"`

	Blocks           int `json:"hadith_blocks"`
	UnnumberedBlocks int `json:"blocks_without_number"`

	HadithFrom       int               `json:"hadith_from"`
	HadithTo         int               `json:"hadith_to"`
	HadithPresent    int               `json:"hadith_present"`
	HadithMissing    []int             `json:"hadith_missing"`
	HadithDuplicated []DuplicateHadith `json:"hadith_duplicated"`

	MalformedLines int `json:"malformed_lines"`
}

// Complete reports whether nothing needs scraping again and no hadith number
// is missing.
func (r *CoverageReport) Complete() bool {
	return len(r.PagesToRescrape) == 0 && len(r.HadithMissing) == 0
}

// Coverage checks the scrape output at path for pages from..to of book.
// A page counts as scraped once any of its lines succeeded, matching the
// pages ScrapePages skips. Hadith numbers are expected to run without gaps
// between the smallest and largest one found.
func Coverage(path string, book, from, to int) (*CoverageReport, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ReadCoverage(nil, book, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("sources: coverage: %w", err)
	}
	defer f.Close()
	return ReadCoverage(f, book, from, to)
}

// ReadCoverage is Coverage over an open reader. A nil reader is an empty file.
func ReadCoverage(r io.Reader, book, from, to int) (*CoverageReport, error) {
	if from <= 0 || to < from {
		return nil, fmt.Errorf("sources: coverage: bad page range %d..%d", from, to)
	}
	ok := make(map[int]bool)
	reasons := make(map[int]string)
	numbers := make(map[int][][]int) // page -> hadith numbers per block of its last successful line
	rep := &CoverageReport{Book: book, From: from, To: to, Requested: to - from + 1}

	if r != nil {
		err := ReadPages(r, func(p ShamelaPage) error {
			if p.BookID != book || p.PageNumber < from || p.PageNumber > to {
				return nil
			}
			if p.Status != StatusSuccess {
				if !ok[p.PageNumber] {
					reasons[p.PageNumber] = p.Reason
				}
				return nil
			}
			ok[p.PageNumber] = true
			delete(reasons, p.PageNumber)
			numbers[p.PageNumber] = pageHadithNumbers(p)
			return nil
		})
		if err != nil {
			if !errors.Is(err, isnad.ErrMalformed) {
				return nil, fmt.Errorf("sources: coverage: %w", err)
			}
			rep.MalformedLines = len(flattenJoined(err))
		}
	}

	for page := from; page <= to; page++ {
		reason, failed := reasons[page]
		switch {
		case ok[page]:
			rep.Succeeded++
		case failed && reason == ReasonNoNarrators:
			rep.NoNarrators = append(rep.NoNarrators, page)
		case failed:
			rep.Failed = append(rep.Failed, PageFailure{Page: page, Reason: reason})
			rep.PagesToRescrape = append(rep.PagesToRescrape, page)
		default:
			rep.Missing = append(rep.Missing, page)
			rep.PagesToRescrape = append(rep.PagesToRescrape, page)
		}
	}

	seen := make(map[int][]int) // hadith number -> pages
	for page := from; page <= to; page++ {
		for _, block := range numbers[page] {
			rep.Blocks++
			if len(block) == 0 {
				rep.UnnumberedBlocks++
			}
			for _, n := range block {
				if !slices.Contains(seen[n], page) {
					seen[n] = append(seen[n], page)
				}
			}
		}
	}
	rep.HadithPresent = len(seen)
	for n, pages := range seen {
		if rep.HadithFrom == 0 || n < rep.HadithFrom {
			rep.HadithFrom = n
		}
		rep.HadithTo = max(rep.HadithTo, n)
		if len(pages) > 1 {
			rep.HadithDuplicated = append(rep.HadithDuplicated, DuplicateHadith{Number: n, Pages: pages})
		}
	}
	slices.SortFunc(rep.HadithDuplicated, func(a, b DuplicateHadith) int { return a.Number - b.Number })
	for n := rep.HadithFrom; n > 0 && n <= rep.HadithTo; n++ {
		if _, found := seen[n]; !found {
			rep.HadithMissing = append(rep.HadithMissing, n)
		}
	}
	rep.normalize()
	return rep, nil
}

// normalize replaces nil lists so the report always encodes them as arrays.
func (r *CoverageReport) normalize() {
	for _, l := range []*[]int{&r.NoNarrators, &r.Missing, &r.PagesToRescrape, &r.HadithMissing} {
		if *l == nil {
			*l = []int{}
		}
	}
	if r.Failed == nil {
		r.Failed = []PageFailure{}
	}
	if r.HadithDuplicated == nil {
		r.HadithDuplicated = []DuplicateHadith{}
	}
}

// pageHadithNumbers returns the hadith numbers opening each block of p. A
// block may carry several narrations. The page-level number stands in for a
// block without its own.
func pageHadithNumbers(p ShamelaPage) [][]int {
	out := make([][]int, len(p.Blocks))
	for i, b := range p.Blocks {
		out[i] = blockHadithNumbers(b.FullText)
		if len(out[i]) == 0 && p.HadithNumber != nil && *p.HadithNumber > 0 {
			out[i] = []int{*p.HadithNumber}
		}
	}
	return out
}

func blockHadithNumbers(text string) []int {
	var out []int
	for _, m := range hadithNumberRe.FindAllStringSubmatch(text, -1) {
		if n := arabicAtoi(m[1]); n > 0 {
			out = append(out, n)
		}
	}
	return out
}

// arabicAtoi parses Western or Arabic-Indic digits.
func arabicAtoi(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			n = n*10 + int(r-'0')
		case r >= '٠' && r <= '٩':
			n = n*10 + int(r-'٠')
		default:
			return 0
		}
	}
	return n
}

func flattenJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
