package sources

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
)

// Page outcomes written to the JSONL file.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	ReasonAPIFailure     = "api_failure"
	ReasonEmptyHTML      = "empty_html"
	ReasonNoHadithBlocks = "no_hadith_blocks"
	ReasonNoNarrators    = "no_narrators"
)

// FlexID is a narrator identifier that may be written as a number or a string.
type FlexID int64

func (id *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("narrator id %s: %w", b, err)
	}
	*id = FlexID(n)
	return nil
}

func (id FlexID) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(id), 10))
}

// Breadcrumb is one link of the page's navigation path.
type Breadcrumb struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// BlockNarrator is a linked narrator inside a hadith block.
type BlockNarrator struct {
	ID   FlexID `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// HadithBlock is one narration on a page.
type HadithBlock struct {
	FullText  string          `json:"full_text"`
	Matn      string          `json:"matn"`
	Narrators []BlockNarrator `json:"narrators"`
}

// Text returns the matn, or the full text when the matn was not marked up.
func (b HadithBlock) Text() string {
	if b.Matn != "" {
		return b.Matn
	}
	return b.FullText
}

// ShamelaPage is one line of the scraper's JSONL output.
type ShamelaPage struct {
	Status       string        `json:"status"`
	BookID       int           `json:"book_id"`
	PageNumber   int           `json:"page_number"`
	URL          string        `json:"url,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Message      string        `json:"message,omitempty"`
	Breadcrumbs  []Breadcrumb  `json:"breadcrumb_links,omitempty"`
	HadithNumber *int          `json:"hadith_number,omitempty"`
	Blocks       []HadithBlock `json:"hadith_blocks,omitempty"`
}

// Source names the book a page belongs to, as used for content index scoping.
func (p ShamelaPage) Source() string { return "book:" + strconv.Itoa(p.BookID) }

// Chains converts the page's blocks into reference chains. Blocks without
// narrators carry nothing to match and are dropped.
func (p ShamelaPage) Chains() []isnad.GroundTruthChain {
	if p.Status != StatusSuccess {
		return nil
	}
	var out []isnad.GroundTruthChain
	for i, b := range p.Blocks {
		if len(b.Narrators) == 0 {
			continue
		}
		g := isnad.GroundTruthChain{
			ID:       fmt.Sprintf("%d/%d/%d", p.BookID, p.PageNumber, i),
			Source:   p.Source(),
			Content:  b.Text(),
			Mentions: make([]isnad.KnownMention, len(b.Narrators)),
		}
		for j, n := range b.Narrators {
			g.Mentions[j] = isnad.KnownMention{RawText: n.Name, ID: int64(n.ID)}
		}
		out = append(out, g)
	}
	return out
}

const maxLine = 32 << 20

// ReadPages calls fn for every page line in r. Lines that do not decode are
// skipped and reported joined, wrapping isnad.ErrMalformed.
func ReadPages(r io.Reader, fn func(ShamelaPage) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLine)
	var errs []error
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var p ShamelaPage
		if err := json.Unmarshal(b, &p); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %v: %w", line, err, isnad.ErrMalformed))
			continue
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("sources: read pages: %w", err)
	}
	return errors.Join(errs...)
}

// LoadGroundTruth reads the successful pages of one or more JSONL files into
// reference chains. Malformed lines are reported as in ReadPages.
func LoadGroundTruth(paths ...string) ([]isnad.GroundTruthChain, error) {
	var out []isnad.GroundTruthChain
	var errs []error
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("sources: ground truth: %w", err)
		}
		err = ReadPages(f, func(p ShamelaPage) error {
			out = append(out, p.Chains()...)
			return nil
		})
		f.Close()
		if err != nil {
			if !errors.Is(err, isnad.ErrMalformed) {
				return nil, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return out, errors.Join(errs...)
}

// successfulPages returns the page numbers of book already scraped successfully.
func successfulPages(path string, book int) (map[int]bool, error) {
	done := make(map[int]bool)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return done, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	err = ReadPages(f, func(p ShamelaPage) error {
		if p.Status == StatusSuccess && p.BookID == book {
			done[p.PageNumber] = true
		}
		return nil
	})
	if err != nil && !errors.Is(err, isnad.ErrMalformed) {
		return nil, err
	}
	return done, nil
}
