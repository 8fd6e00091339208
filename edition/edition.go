// Package edition holds the in-memory model of one day's paper and assembles
// crawled articles into a navigable document.
package edition

import (
	"fmt"
	"time"
)

// Section is a named grouping of articles, numbered by its position on the
// edition's entry page.
type Section struct {
	Name    string
	Ordinal int
}

// Article is one extracted article. Ordinal counts from 1 within its section
// in link discovery order.
type Article struct {
	Section  Section
	Title    string
	BodyHTML string
	Ordinal  int
}

// ContentKey identifies an article's content. Two articles with equal keys
// are the same article reached through different links.
type ContentKey struct {
	Section string
	Title   string
	Body    string
}

// Key returns the deduplication identity of a.
func (a Article) Key() ContentKey {
	return ContentKey{Section: a.Section.Name, Title: a.Title, Body: a.BodyHTML}
}

// ID is derived from the section and article ordinals, e.g. "3_2".
func (a Article) ID() string {
	return fmt.Sprintf("%d_%d", a.Section.Ordinal, a.Ordinal)
}

// Href is the content document name the article is written to.
func (a Article) Href() string {
	return a.ID() + ".xhtml"
}

// SectionEntry is a section together with its articles in discovery order.
type SectionEntry struct {
	ID       string
	Href     string
	Section  Section
	Articles []Article
}

// SpineKind tells what a spine item points at.
type SpineKind int

const (
	SpineNav SpineKind = iota
	SpineSection
	SpineArticle
)

// SpineItem is one step of the linear reading order.
type SpineItem struct {
	Kind SpineKind
	ID   string
	Href string
}

// NavEntry is a node of the table of contents.
type NavEntry struct {
	Label    string
	Href     string
	Children []NavEntry
}

// NavID and NavHref name the navigation document placeholder in the spine.
const (
	NavID   = "nav"
	NavHref = "nav.xhtml"
)

// DefaultPublication is used for document titles when none is configured.
const DefaultPublication = "人民日报"

// Document is a fully assembled edition ready to be packaged.
type Document struct {
	Title    string
	Date     time.Time
	Language string
	Sections []SectionEntry
	Spine    []SpineItem
	Nav      []NavEntry
}

// Empty reports whether the document carries no articles at all.
func (d *Document) Empty() bool {
	return d.ArticleCount() == 0
}

// ArticleCount returns the number of articles across all sections.
func (d *Document) ArticleCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Articles)
	}
	return n
}

// Assemble groups articles by section name, keeping the first-seen order of
// sections and the given order of articles, then derives the spine and the
// table of contents.
func Assemble(articles []Article, date time.Time, publication string) *Document {
	if publication == "" {
		publication = DefaultPublication
	}

	doc := &Document{
		Title:    publication + "_" + date.Format("2006-01-02"),
		Date:     date,
		Language: "zh",
	}

	index := map[string]int{}
	for _, article := range articles {
		i, ok := index[article.Section.Name]
		if !ok {
			i = len(doc.Sections)
			index[article.Section.Name] = i
			doc.Sections = append(doc.Sections, SectionEntry{
				ID:      fmt.Sprintf("section_%d", article.Section.Ordinal),
				Href:    fmt.Sprintf("section_%d.xhtml", article.Section.Ordinal),
				Section: article.Section,
			})
		}
		doc.Sections[i].Articles = append(doc.Sections[i].Articles, article)
	}

	doc.Spine = append(doc.Spine, SpineItem{Kind: SpineNav, ID: NavID, Href: NavHref})
	for _, entry := range doc.Sections {
		doc.Spine = append(doc.Spine, SpineItem{Kind: SpineSection, ID: entry.ID, Href: entry.Href})

		nav := NavEntry{Label: entry.Section.Name, Href: entry.Href}
		for _, article := range entry.Articles {
			doc.Spine = append(doc.Spine, SpineItem{Kind: SpineArticle, ID: "article_" + article.ID(), Href: article.Href()})
			nav.Children = append(nav.Children, NavEntry{Label: article.Title, Href: article.Href()})
		}
		doc.Nav = append(doc.Nav, nav)
	}

	return doc
}
