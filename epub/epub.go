// Package epub serializes an assembled edition into an EPUB 3 container with
// an EPUB 2 NCX for older readers.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pevans/edition/edition"
)

// Layout of the container.
const (
	contentDir = "EPUB"
	opfName    = "content.opf"
	ncxName    = "toc.ncx"
	styleHref  = "style/nav.css"
)

// DefaultStylesheet is written to style/nav.css when Options.Stylesheet is
// empty.
const DefaultStylesheet = "BODY {color: black;}"

// ErrNoDocument is returned when Write is given a nil document.
var ErrNoDocument = errors.New("no document to write")

// Options tunes the package metadata.
type Options struct {
	// Modified is recorded as dcterms:modified. Zero means now.
	Modified   time.Time
	Creator    string
	Publisher  string
	Stylesheet string
}

// Identifier returns the stable urn:uuid identifier for a document title.
// Rebuilding the same edition yields the same identifier.
func Identifier(title string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(title)).URN()
}

// Write streams doc as an EPUB archive to w. The mimetype entry is stored
// uncompressed and first, as readers require.
func Write(w io.Writer, doc *edition.Document, opts Options) error {
	if doc == nil {
		return ErrNoDocument
	}
	if opts.Modified.IsZero() {
		opts.Modified = time.Now()
	}
	if opts.Stylesheet == "" {
		opts.Stylesheet = DefaultStylesheet
	}

	zw := zip.NewWriter(w)

	mimetype, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return fmt.Errorf("failed to create mimetype entry: %w", err)
	}
	if _, err := io.WriteString(mimetype, "application/epub+zip"); err != nil {
		return fmt.Errorf("failed to write mimetype entry: %w", err)
	}

	identifier := Identifier(doc.Title)

	entries := []struct {
		name string
		data func() ([]byte, error)
	}{
		{"META-INF/container.xml", func() ([]byte, error) { return marshal(newContainer()) }},
		{contentDir + "/" + opfName, func() ([]byte, error) { return marshal(buildPackage(doc, identifier, opts)) }},
		{contentDir + "/" + edition.NavHref, func() ([]byte, error) { return navPage(doc), nil }},
		{contentDir + "/" + ncxName, func() ([]byte, error) { return marshal(buildNCX(doc, identifier)) }},
		{contentDir + "/" + styleHref, func() ([]byte, error) { return []byte(opts.Stylesheet), nil }},
	}
	for _, entry := range entries {
		data, err := entry.data()
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", entry.name, err)
		}
		if err := writeEntry(zw, entry.name, data); err != nil {
			return err
		}
	}

	for _, section := range doc.Sections {
		page := contentPage(section.Section.Name, doc.Language, "<h1>"+escape(section.Section.Name)+"</h1>")
		if err := writeEntry(zw, contentDir+"/"+section.Href, page); err != nil {
			return err
		}
		for _, article := range section.Articles {
			page := contentPage(article.Title, doc.Language, "<h2>"+escape(article.Title)+"</h2>"+article.BodyHTML)
			if err := writeEntry(zw, contentDir+"/"+article.Href(), page); err != nil {
				return err
			}
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// WriteFile writes doc to dir/{Title}.epub and returns the path. The file is
// written under a temporary name and renamed into place, so a failed write
// never leaves a truncated book behind.
func WriteFile(dir string, doc *edition.Document, opts Options) (string, error) {
	if doc == nil {
		return "", ErrNoDocument
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, FileName(doc))

	tmp, err := os.CreateTemp(dir, ".edition-*.epub")
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, doc, opts); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move output file into place: %w", err)
	}

	return path, nil
}

// FileName is the archive name for doc.
func FileName(doc *edition.Document) string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, doc.Title)
	return name + ".epub"
}

func buildPackage(doc *edition.Document, identifier string, opts Options) opfPackage {
	pkg := opfPackage{
		Xmlns:            "http://www.idpf.org/2007/opf",
		Version:          "3.0",
		UniqueIdentifier: "id",
		Lang:             doc.Language,
		Metadata: opfMetadata{
			XmlnsDC:    "http://purl.org/dc/elements/1.1/",
			Identifier: dcElement{ID: "id", Content: identifier},
			Title:      dcElement{Content: doc.Title},
			Language:   dcElement{Content: doc.Language},
			Meta: []opfMeta{
				{Property: "dcterms:modified", Value: opts.Modified.UTC().Format("2006-01-02T15:04:05Z")},
			},
		},
		Spine: opfSpine{Toc: "ncx"},
	}
	if !doc.Date.IsZero() {
		pkg.Metadata.Date = &dcElement{Content: doc.Date.Format("2006-01-02")}
	}
	if opts.Creator != "" {
		pkg.Metadata.Creator = &dcElement{Content: opts.Creator}
	}
	if opts.Publisher != "" {
		pkg.Metadata.Publisher = &dcElement{Content: opts.Publisher}
	}

	items := []opfItem{
		{ID: "ncx", Href: ncxName, MediaType: mediaNCX},
		{ID: edition.NavID, Href: edition.NavHref, MediaType: mediaXHTML, Properties: "nav"},
		{ID: "style_nav", Href: styleHref, MediaType: mediaCSS},
	}
	for _, item := range doc.Spine {
		if item.Kind == edition.SpineNav {
			continue
		}
		items = append(items, opfItem{ID: item.ID, Href: item.Href, MediaType: mediaXHTML})
	}
	pkg.Manifest.Items = items

	for _, item := range doc.Spine {
		pkg.Spine.ItemRefs = append(pkg.Spine.ItemRefs, opfItemRef{IDRef: item.ID})
	}

	return pkg
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func marshal(v any) ([]byte, error) {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}
