// Package layout knows the two URL and markup generations the archive has
// used and picks the right one for a given edition date.
package layout

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Generation identifies one historical site layout.
type Generation int

const (
	Legacy Generation = iota
	Modern
)

func (g Generation) String() string {
	switch g {
	case Legacy:
		return "legacy"
	case Modern:
		return "modern"
	}
	return fmt.Sprintf("generation(%d)", int(g))
}

// Selectors locates the three levels of an edition inside fetched pages.
type Selectors struct {
	// Sections matches the section links on the entry page.
	Sections string `yaml:"sections"`
	// Articles matches the article links on a section page.
	Articles string `yaml:"articles"`
	// Paragraphs matches the body paragraphs on an article page.
	Paragraphs string `yaml:"paragraphs"`
}

// Merge returns s with every non-empty field of override applied.
func (s Selectors) Merge(override Selectors) Selectors {
	if override.Sections != "" {
		s.Sections = override.Sections
	}
	if override.Articles != "" {
		s.Articles = override.Articles
	}
	if override.Paragraphs != "" {
		s.Paragraphs = override.Paragraphs
	}
	return s
}

// Template holds what is fixed for every edition of one generation.
type Template struct {
	EntryPage string
	Selectors Selectors
}

// Scheme describes the archive: where it lives, when the modern layout took
// over and how each generation is laid out.
type Scheme struct {
	ArchiveURL string
	Cutover    time.Time
	Legacy     Template
	Modern     Template
}

// DefaultArchiveURL is the People's Daily digital edition archive.
const DefaultArchiveURL = "http://paper.people.com.cn/rmrb/"

// DefaultCutover is the first edition published with the modern layout.
var DefaultCutover = time.Date(2024, time.December, 1, 0, 0, 0, 0, time.Local)

// DefaultScheme returns the archive layout as currently published.
func DefaultScheme() Scheme {
	return Scheme{
		ArchiveURL: DefaultArchiveURL,
		Cutover:    DefaultCutover,
		Legacy: Template{
			EntryPage: "nbs.D110000renmrb_01.htm",
			Selectors: Selectors{
				Sections:   "body > div:nth-of-type(2) > div:nth-of-type(2) > div:nth-of-type(2) > div > div > a",
				Articles:   "body > div:nth-of-type(2) > div:nth-of-type(2) > div:nth-of-type(3) > ul > li > a",
				Paragraphs: "div#ozoom > p",
			},
		},
		Modern: Template{
			EntryPage: "node_01.html",
			Selectors: Selectors{
				Sections:   "div.swiper-container div.swiper-slide > a",
				Articles:   "ul.news-list > li > a",
				Paragraphs: "div#ozoom p",
			},
		},
	}
}

// Layout is the concrete choice for one edition. It is selected once per
// crawl and every page of that crawl is resolved through it.
type Layout struct {
	Generation Generation
	Date       time.Time
	BaseURL    string
	EntryPage  string
	Selectors  Selectors
}

// Select picks the generation for date and builds the edition base URL.
func (s Scheme) Select(date time.Time) Layout {
	archive := s.ArchiveURL
	if !strings.HasSuffix(archive, "/") {
		archive += "/"
	}

	cutover := time.Date(s.Cutover.Year(), s.Cutover.Month(), s.Cutover.Day(), 0, 0, 0, 0, date.Location())
	if !date.Before(cutover) {
		return Layout{
			Generation: Modern,
			Date:       date,
			BaseURL:    archive + "pc/layout/" + date.Format("200601") + "/" + date.Format("02") + "/",
			EntryPage:  s.Modern.EntryPage,
			Selectors:  s.Modern.Selectors,
		}
	}

	return Layout{
		Generation: Legacy,
		Date:       date,
		BaseURL:    archive + "html/" + date.Format("2006-01") + "/" + date.Format("02") + "/",
		EntryPage:  s.Legacy.EntryPage,
		Selectors:  s.Legacy.Selectors,
	}
}

// EntryURL is the address of the page listing the edition's sections.
func (l Layout) EntryURL() string {
	return l.BaseURL + l.EntryPage
}

// Resolve turns a link found on pageURL into an absolute address. Links on
// the archive's pages are relative to the page carrying them, which for
// same-directory links is the edition base.
func (l Layout) Resolve(pageURL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty link on %s", pageURL)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page URL %s: %w", pageURL, err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}

	return base.ResolveReference(ref).String(), nil
}

// SectionName strips the page label prefix ("第01版：要闻" -> "要闻"). The
// separator may be an ASCII or a full-width colon.
func SectionName(label string) string {
	label = strings.TrimSpace(label)
	if i := strings.LastIndexFunc(label, isSeparator); i >= 0 {
		_, size := utf8.DecodeRuneInString(label[i:])
		label = label[i+size:]
	}
	return strings.TrimSpace(label)
}

func isSeparator(r rune) bool {
	if r == ':' {
		return true
	}
	return width.LookupRune(r).Narrow() == ':'
}
