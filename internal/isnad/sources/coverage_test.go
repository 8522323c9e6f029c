package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anatolykoptev/go_isnad/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coverageFixture = `{"status":"success","book_id":1681,"page_number":1,"hadith_blocks":[{"full_text":"١ - حدثنا الحميدي","matn":"","narrators":[{"id":"200","name":"الحميدي"}]},{"full_text":"٢ - حدثنا سفيان ٣ - حدثنا الزهري","matn":"","narrators":[{"id":300,"name":"الزهري"}]}]}
{"status":"failed","book_id":1681,"page_number":2,"reason":"api_failure","message":"HTTP 503"}
{"status":"failed","book_id":1681,"page_number":3,"reason":"no_narrators"}
{"status":"failed","book_id":1681,"page_number":4,"reason":"api_failure"}
{not json

{"status":"success","book_id":1681,"page_number":2,"hadith_blocks":[{"full_text":"4 - حدثنا وكيع","matn":"","narrators":[{"id":"400","name":"وكيع"}]},{"full_text":"باب","matn":"","narrators":[{"id":"400","name":"وكيع"}]}]}
{"status":"failed","book_id":1681,"page_number":4,"reason":"empty_html"}
{"status":"success","book_id":99,"page_number":5,"hadith_blocks":[{"full_text":"٥ - حدثنا","matn":"","narrators":[{"id":"1","name":"مسدد"}]}]}
{"status":"success","book_id":1681,"page_number":6,"hadith_number":7,"hadith_blocks":[{"full_text":"حدثنا مسدد","matn":"","narrators":[{"id":"1","name":"مسدد"}]},{"full_text":"٣ (١) - حدثنا يحيى","matn":"","narrators":[{"id":"2","name":"يحيى"}]}]}
{"status":"success","book_id":1681,"page_number":8,"hadith_blocks":[{"full_text":"٦ - حدثنا","matn":"","narrators":[{"id":"1","name":"مسدد"}]}]}
`

func TestCoverage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shamela.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(coverageFixture), 0o644))

	rep, err := Coverage(path, 1681, 1, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Requested)
	assert.Equal(t, 3, rep.Succeeded, "page 2 succeeded on its second attempt")
	assert.Equal(t, []PageFailure{{Page: 4, Reason: ReasonEmptyHTML}}, rep.Failed)
	assert.Equal(t, []int{3}, rep.NoNarrators)
	assert.Equal(t, []int{5}, rep.Missing, "lines of other books do not count")
	assert.Equal(t, []int{4, 5}, rep.PagesToRescrape)
	assert.Equal(t, 1, rep.MalformedLines)

	assert.Equal(t, 6, rep.Blocks)
	assert.Equal(t, 1, rep.UnnumberedBlocks)
	assert.Equal(t, 1, rep.HadithFrom)
	assert.Equal(t, 7, rep.HadithTo)
	assert.Equal(t, 5, rep.HadithPresent)
	assert.Equal(t, []int{5, 6}, rep.HadithMissing)
	assert.Equal(t, []DuplicateHadith{{Number: 3, Pages: []int{1, 6}}}, rep.HadithDuplicated)
	assert.False(t, rep.Complete())
}

func TestCoverage_NoFile(t *testing.T) {
	rep, err := Coverage(filepath.Join(t.TempDir(), "absent.jsonl"), 1681, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, rep.Missing)
	assert.Equal(t, []int{3, 4, 5}, rep.PagesToRescrape)
	assert.NotNil(t, rep.HadithMissing)
	assert.Zero(t, rep.HadithPresent)

	_, err = ReadCoverage(strings.NewReader(""), 1681, 5, 2)
	assert.Error(t, err)
}

func TestBlockHadithNumbers(t *testing.T) {
	assert.Equal(t, []int{272, 273}, blockHadithNumbers("٢٧٢ - حدثنا عبد الله ٢٧٣ – وحدثنا"))
	assert.Equal(t, []int{15}, blockHadithNumbers("باب الإيمان 15 — حدثنا"))
	assert.Empty(t, blockHadithNumbers("قال ١٢٣٤٥٦٧ - حدثنا"), "more than six digits is not a hadith number")
	assert.Empty(t, blockHadithNumbers("حدثنا سفيان عن الزهري"))
}

func TestScraper_ScrapePagesFromCoverage(t *testing.T) {
	var ready atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/book/1681/1":
			_, _ = w.Write([]byte(pageFixture))
		case r.URL.Path == "/book/1681/2":
			_, _ = w.Write([]byte(noNarratorsFixture))
		case ready.Load():
			_, _ = w.Write([]byte(pageFixture))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f := fetch.New(fetch.HTTPGetter(srv.Client()), fetch.Options{
		Retry:     fetch.RetryConfig{MaxRetries: 1, InitialWait: time.Millisecond, Multiplier: 1},
		Challenge: IsChallenge,
	})
	s := NewScraper(f, ScrapeOptions{BaseURL: srv.URL, Workers: 2})
	out := filepath.Join(t.TempDir(), "shamela.jsonl")

	_, err := s.ScrapeRange(context.Background(), 1681, 1, 3, out)
	require.NoError(t, err)
	rep, err := Coverage(out, 1681, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, rep.PagesToRescrape)
	assert.Equal(t, []int{2}, rep.NoNarrators)

	ready.Store(true)
	sum, err := s.ScrapePages(context.Background(), 1681, append(rep.PagesToRescrape, 1, 4), out)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Requested, "pages are deduplicated")
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.Succeeded)

	rep, err = Coverage(out, 1681, 1, 4)
	require.NoError(t, err)
	assert.Empty(t, rep.PagesToRescrape)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Equal(t, []DuplicateHadith{{Number: 1, Pages: []int{1, 3, 4}}}, rep.HadithDuplicated)
	assert.True(t, rep.Complete())

	_, err = s.ScrapePages(context.Background(), 1681, []int{0, 2}, out)
	assert.Error(t, err)
}
