package crawl

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pevans/edition/layout"
)

// fixtureDate selects the legacy layout, modernFixtureDate the modern one.
var (
	fixtureDate       = time.Date(2023, time.March, 5, 0, 0, 0, 0, time.Local)
	modernFixtureDate = time.Date(2025, time.January, 9, 0, 0, 0, 0, time.Local)
)

const (
	fixtureBase = "/rmrb/html/2023-03/05/"
	// Modern pages are keyed from here, so both layout/ and content/ paths
	// can be served.
	modernFixtureRoot = "/rmrb/pc/"
)

type fixtureLink struct {
	Label string
	Href  string
}

// entryPage renders the legacy entry page markup the section selector expects.
func entryPage(sections ...fixtureLink) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="head">header</div><div class="main"><div class="left"></div><div class="right"><div class="title">版面导航</div><div class="list"><div class="slides">`)
	for _, s := range sections {
		fmt.Fprintf(&b, `<div class="slide"><a href="%s">%s</a></div>`, s.Href, s.Label)
	}
	b.WriteString(`</div></div></div></div></body></html>`)
	return b.String()
}

// sectionPage renders the legacy section page markup the article selector expects.
func sectionPage(articles ...fixtureLink) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="head"></div><div class="main"><div class="left"></div><div class="right"><div class="a"></div><div class="b"></div><div class="news"><ul>`)
	for _, a := range articles {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, a.Href, a.Label)
	}
	b.WriteString(`</ul></div></div></div></body></html>`)
	return b.String()
}

// modernEntryPage renders the modern first page: the section carousel plus
// the article list of the first section, which the carousel links back to.
func modernEntryPage(sections []fixtureLink, articles ...fixtureLink) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="paper-box"><div class="swiper-container"><div class="swiper-wrapper">`)
	for _, s := range sections {
		fmt.Fprintf(&b, `<div class="swiper-slide"><a href="%s">%s</a></div>`, s.Href, s.Label)
	}
	b.WriteString(`</div></div></div><div class="news"><ul class="news-list">`)
	for _, a := range articles {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, a.Href, a.Label)
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

// modernSectionPage renders the modern section page article list.
func modernSectionPage(articles ...fixtureLink) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="news"><ul class="news-list">`)
	for _, a := range articles {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, a.Href, a.Label)
	}
	b.WriteString(`</ul></div></body></html>`)
	return b.String()
}

// modernArticlePage nests the paragraphs one level below #ozoom.
func modernArticlePage(paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="article"><div id="ozoom"><div class="content">`)
	for _, p := range paragraphs {
		fmt.Fprintf(&b, `<p>%s</p>`, p)
	}
	b.WriteString(`</div></div></div></body></html>`)
	return b.String()
}

func articlePage(paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="text"><div id="ozoom">`)
	for _, p := range paragraphs {
		fmt.Fprintf(&b, `<p>%s</p>`, p)
	}
	b.WriteString(`</div></div></body></html>`)
	return b.String()
}

// archive is a fake edition server. Pages are keyed by path relative to
// root.
type archive struct {
	root string
	date time.Time

	mu     sync.Mutex
	pages  map[string]string
	status map[string]int
	delay  map[string]time.Duration
	hits   map[string]int
}

func newArchive() *archive {
	return &archive{
		root:   fixtureBase,
		date:   fixtureDate,
		pages:  map[string]string{},
		status: map[string]int{},
		delay:  map[string]time.Duration{},
		hits:   map[string]int{},
	}
}

// newModernArchive serves a modern layout edition.
func newModernArchive() *archive {
	a := newArchive()
	a.root = modernFixtureRoot
	a.date = modernFixtureDate
	return a
}

func (a *archive) page(name, body string) *archive {
	a.pages[name] = body
	return a
}

func (a *archive) fail(name string, code int) *archive {
	a.status[name] = code
	return a
}

func (a *archive) hitCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[name]
}

func (a *archive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, a.root)

	a.mu.Lock()
	a.hits[name]++
	body, ok := a.pages[name]
	code := a.status[name]
	delay := a.delay[name]
	a.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if code != 0 {
		w.WriteHeader(code)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

// serve starts the archive and returns the layout pointing at it.
func (a *archive) serve(t *testing.T) layout.Layout {
	t.Helper()
	server := httptest.NewServer(a)
	t.Cleanup(server.Close)

	scheme := layout.DefaultScheme()
	scheme.ArchiveURL = server.URL + "/rmrb/"
	return scheme.Select(a.date)
}

func newTestCrawler(concurrency int) *Crawler {
	return New(NewHTTPFetcher(FetcherOptions{Timeout: 2 * time.Second}), Options{Concurrency: concurrency})
}
