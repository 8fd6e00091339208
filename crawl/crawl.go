// Package crawl walks one edition of the archive: entry page, section pages,
// article pages. It extracts articles in discovery order and drops repeated
// content.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pevans/edition/edition"
	"github.com/pevans/edition/layout"
)

// ErrEditionUnavailable means the entry page does not exist: the edition is
// not published yet or the date has no paper.
var ErrEditionUnavailable = errors.New("edition not yet published or invalid date")

// DefaultConcurrency is the number of article pages fetched at once within a
// section.
const DefaultConcurrency = 4

// Options configures a Crawler.
type Options struct {
	// Concurrency bounds parallel article fetches within a section. One
	// fetches strictly sequentially.
	Concurrency int
	Logger      logrus.FieldLogger
}

// Crawler extracts articles from an edition. A Crawler holds no state
// between Crawl calls and may be reused.
type Crawler struct {
	fetcher     Fetcher
	concurrency int
	log         logrus.FieldLogger
}

// New creates a crawler reading pages through fetcher.
func New(fetcher Fetcher, opts Options) *Crawler {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Crawler{
		fetcher:     fetcher,
		concurrency: opts.Concurrency,
		log:         loggerOrDiscard(opts.Logger),
	}
}

// Stats counts what a crawl found and what it had to skip.
type Stats struct {
	Sections        int
	SectionsSkipped int
	Articles        int
	ArticlesSkipped int
	Duplicates      int
	// EmptyPages counts pages where a selector matched nothing.
	EmptyPages int
	Duration   time.Duration
}

// Skipped is the number of sections and articles lost to fetch failures.
func (s Stats) Skipped() int {
	return s.SectionsSkipped + s.ArticlesSkipped
}

// Outcome classifies a crawl result.
type Outcome string

const (
	OutcomeEmpty    Outcome = "empty"
	OutcomePartial  Outcome = "partial"
	OutcomeComplete Outcome = "complete"
)

// Result holds the deduplicated articles of one crawl in emission order.
type Result struct {
	Articles []edition.Article
	Stats    Stats
}

// Outcome reports whether the crawl found nothing, lost some units to
// failures, or retrieved everything it discovered.
func (r *Result) Outcome() Outcome {
	switch {
	case len(r.Articles) == 0:
		return OutcomeEmpty
	case r.Stats.Skipped() > 0:
		return OutcomePartial
	}
	return OutcomeComplete
}

type link struct {
	label string
	url   string
	err   error
}

// Crawl walks the edition described by l. If the entry page cannot be
// fetched the result is empty and the error wraps ErrEditionUnavailable (not
// found) or ErrTransport. Failures below the entry page only drop the
// affected section or article.
func (c *Crawler) Crawl(ctx context.Context, l layout.Layout) (*Result, error) {
	started := time.Now()
	result := &Result{}
	defer func() { result.Stats.Duration = time.Since(started) }()

	log := c.log.WithFields(logrus.Fields{
		"edition": l.Date.Format("2006-01-02"),
		"layout":  l.Generation.String(),
	})

	entryURL := l.EntryURL()
	doc, err := c.fetcher.Fetch(ctx, entryURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.WithField("url", entryURL).Warn("Edition entry page not found")
			return result, fmt.Errorf("%w: %s", ErrEditionUnavailable, entryURL)
		}
		log.WithField("url", entryURL).Errorf("Failed to fetch edition entry page: %v", err)
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return result, fmt.Errorf("failed to fetch entry page: %w", err)
	}

	sections := extractLinks(doc, l, entryURL, l.Selectors.Sections)
	if len(sections) == 0 {
		result.Stats.EmptyPages++
		log.WithField("url", entryURL).Warn("No sections found on entry page")
	}
	log.Infof("Found %d sections", len(sections))

	// Owned by this call only; articles are keyed in discovery order.
	seen := map[edition.ContentKey]struct{}{}

	for i, sectionLink := range sections {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		section := edition.Section{Name: layout.SectionName(sectionLink.label), Ordinal: i + 1}
		result.Stats.Sections++

		articles, err := c.crawlSection(ctx, l, section, sectionLink, &result.Stats)
		if err != nil {
			result.Stats.SectionsSkipped++
			log.WithFields(logrus.Fields{"section": section.Name, "url": sectionLink.url}).
				Warnf("Skipping section: %v", err)
			continue
		}

		for _, article := range articles {
			key := article.Key()
			if _, ok := seen[key]; ok {
				result.Stats.Duplicates++
				log.WithFields(logrus.Fields{"section": section.Name, "title": article.Title}).Debug("Dropping duplicate article")
				continue
			}
			seen[key] = struct{}{}
			result.Articles = append(result.Articles, article)
		}
	}

	log.WithFields(logrus.Fields{
		"articles":         len(result.Articles),
		"sections_skipped": result.Stats.SectionsSkipped,
		"articles_skipped": result.Stats.ArticlesSkipped,
		"duplicates":       result.Stats.Duplicates,
	}).Info("Edition crawl finished")

	return result, nil
}

// crawlSection fetches a section page and then its articles. Article pages
// are fetched concurrently but returned in link order.
func (c *Crawler) crawlSection(ctx context.Context, l layout.Layout, section edition.Section, sectionLink link, stats *Stats) ([]edition.Article, error) {
	if sectionLink.err != nil {
		return nil, sectionLink.err
	}

	doc, err := c.fetcher.Fetch(ctx, sectionLink.url)
	if err != nil {
		return nil, err
	}

	links := extractLinks(doc, l, sectionLink.url, l.Selectors.Articles)
	if len(links) == 0 {
		stats.EmptyPages++
		c.log.WithFields(logrus.Fields{"section": section.Name, "url": sectionLink.url}).Warn("No articles found on section page")
	}
	stats.Articles += len(links)

	fetched := make([]edition.Article, len(links))
	failures := make([]error, len(links))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, articleLink := range links {
		i, articleLink := i, articleLink
		g.Go(func() error {
			fetched[i], failures[i] = c.fetchArticle(ctx, l, section, i+1, articleLink)
			return nil
		})
	}
	_ = g.Wait()

	articles := make([]edition.Article, 0, len(links))
	for i, articleLink := range links {
		log := c.log.WithFields(logrus.Fields{"section": section.Name, "title": articleLink.label, "url": articleLink.url})
		if failures[i] != nil {
			stats.ArticlesSkipped++
			log.Warnf("Skipping article: %v", failures[i])
			continue
		}
		if fetched[i].BodyHTML == "" {
			stats.EmptyPages++
			log.Warn("No paragraphs found on article page")
		}
		articles = append(articles, fetched[i])
	}

	return articles, nil
}

func (c *Crawler) fetchArticle(ctx context.Context, l layout.Layout, section edition.Section, ordinal int, articleLink link) (edition.Article, error) {
	if articleLink.err != nil {
		return edition.Article{}, articleLink.err
	}

	doc, err := c.fetcher.Fetch(ctx, articleLink.url)
	if err != nil {
		return edition.Article{}, err
	}

	body, err := extractBody(doc, l.Selectors.Paragraphs)
	if err != nil {
		return edition.Article{}, err
	}

	return edition.Article{
		Section:  section,
		Title:    articleLink.label,
		BodyHTML: body,
		Ordinal:  ordinal,
	}, nil
}

// extractLinks returns the anchors matched by selector in document order.
// Anchors whose target cannot be resolved keep their position and carry the
// error, so ordinals stay tied to what the page shows.
func extractLinks(doc *goquery.Document, l layout.Layout, pageURL, selector string) []link {
	var links []link
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		lk := link{label: normalizeText(s.Text())}
		href, ok := s.Attr("href")
		if !ok {
			lk.err = fmt.Errorf("link %q has no href", lk.label)
		} else {
			lk.url, lk.err = l.Resolve(pageURL, href)
		}
		links = append(links, lk)
	})
	return links
}

// extractBody wraps the inner markup of each paragraph in <p> and
// concatenates them without a separator.
func extractBody(doc *goquery.Document, selector string) (string, error) {
	var (
		body strings.Builder
		err  error
	)
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		inner, htmlErr := s.Html()
		if htmlErr != nil {
			err = fmt.Errorf("failed to render paragraph: %w", htmlErr)
			return false
		}
		body.WriteString("<p>")
		body.WriteString(strings.TrimSpace(inner))
		body.WriteString("</p>")
		return true
	})
	if err != nil {
		return "", err
	}
	return body.String(), nil
}

// normalizeText collapses runs of whitespace into single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
