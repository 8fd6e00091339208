package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/edition/edition"
)

var modified = time.Date(2024, time.March, 5, 8, 30, 0, 0, time.UTC)

func sampleDocument() *edition.Document {
	articles := []edition.Article{
		{Section: edition.Section{Name: "要闻", Ordinal: 1}, Title: "头条 & 快讯", BodyHTML: "<p>第一段</p><p>第二段</p>", Ordinal: 1},
		{Section: edition.Section{Name: "要闻", Ordinal: 1}, Title: "次条", BodyHTML: "<p>内容</p>", Ordinal: 3},
		{Section: edition.Section{Name: "评论", Ordinal: 4}, Title: "社论", BodyHTML: "<p>评论</p>", Ordinal: 1},
	}
	return edition.Assemble(articles, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.Local), "")
}

// readPackage parses the OPF with local names, the way readers see it.
type readPackage struct {
	Version  string `xml:"version,attr"`
	Metadata struct {
		Identifier string `xml:"identifier"`
		Title      string `xml:"title"`
		Language   string `xml:"language"`
		Date       string `xml:"date"`
		Meta       []struct {
			Property string `xml:"property,attr"`
			Value    string `xml:",chardata"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

func writeArchive(t *testing.T, doc *edition.Document) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc, Options{Modified: modified}))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return zr
}

func readEntry(t *testing.T, zr *zip.Reader, name string) string {
	t.Helper()
	f, err := zr.Open(name)
	require.NoError(t, err, name)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

// TestWrite_MimetypeFirstAndStored verifies the container starts with an
// uncompressed mimetype entry
func TestWrite_MimetypeFirstAndStored(t *testing.T) {
	zr := writeArchive(t, sampleDocument())

	require.NotEmpty(t, zr.File)
	first := zr.File[0]
	assert.Equal(t, "mimetype", first.Name)
	assert.Equal(t, zip.Store, first.Method)
	assert.Equal(t, "application/epub+zip", readEntry(t, zr, "mimetype"))

	container := readEntry(t, zr, "META-INF/container.xml")
	assert.Contains(t, container, `full-path="EPUB/content.opf"`)
}

// TestWrite_PackageDocument verifies metadata, manifest and spine order
func TestWrite_PackageDocument(t *testing.T) {
	doc := sampleDocument()
	zr := writeArchive(t, doc)

	var pkg readPackage
	require.NoError(t, xml.Unmarshal([]byte(readEntry(t, zr, "EPUB/content.opf")), &pkg))

	assert.Equal(t, "3.0", pkg.Version)
	assert.Equal(t, "人民日报_2024-03-05", pkg.Metadata.Title)
	assert.Equal(t, "zh", pkg.Metadata.Language)
	assert.Equal(t, "2024-03-05", pkg.Metadata.Date)
	assert.Equal(t, Identifier(doc.Title), pkg.Metadata.Identifier)
	assert.True(t, strings.HasPrefix(pkg.Metadata.Identifier, "urn:uuid:"))
	require.Len(t, pkg.Metadata.Meta, 1)
	assert.Equal(t, "dcterms:modified", pkg.Metadata.Meta[0].Property)
	assert.Equal(t, "2024-03-05T08:30:00Z", pkg.Metadata.Meta[0].Value)

	var spine []string
	for _, ref := range pkg.Spine.ItemRefs {
		spine = append(spine, ref.IDRef)
	}
	assert.Equal(t, []string{"nav", "section_1", "article_1_1", "article_1_3", "section_4", "article_4_1"}, spine)
	assert.Equal(t, "ncx", pkg.Spine.Toc)

	manifest := map[string]string{}
	for _, item := range pkg.Manifest.Items {
		manifest[item.ID] = item.Href
		if item.ID == "nav" {
			assert.Equal(t, "nav", item.Properties)
		}
	}
	for _, id := range spine {
		href, ok := manifest[id]
		require.True(t, ok, "spine item %s missing from manifest", id)

		_, err := zr.Open("EPUB/" + href)
		assert.NoError(t, err, "manifest item %s missing from archive", href)
	}
	assert.Equal(t, "toc.ncx", manifest["ncx"])
	assert.Equal(t, "style/nav.css", manifest["style_nav"])
}

// TestWrite_Pages verifies section dividers and article pages
func TestWrite_Pages(t *testing.T) {
	zr := writeArchive(t, sampleDocument())

	divider := readEntry(t, zr, "EPUB/section_1.xhtml")
	assert.Contains(t, divider, "<h1>要闻</h1>")

	article := readEntry(t, zr, "EPUB/1_1.xhtml")
	assert.Contains(t, article, "<h2>头条 &amp; 快讯</h2><p>第一段</p><p>第二段</p>")
	assert.Contains(t, article, `xml:lang="zh"`)

	// Every page must be well-formed XML
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".xhtml") {
			continue
		}
		var node struct{}
		assert.NoError(t, xml.Unmarshal([]byte(readEntry(t, zr, f.Name)), &node), f.Name)
	}

	assert.Equal(t, DefaultStylesheet, readEntry(t, zr, "EPUB/style/nav.css"))
}

// TestWrite_Navigation verifies both the EPUB 3 nav and the NCX list every
// section with its article titles
func TestWrite_Navigation(t *testing.T) {
	zr := writeArchive(t, sampleDocument())

	nav := readEntry(t, zr, "EPUB/nav.xhtml")
	assert.Contains(t, nav, `<a href="section_1.xhtml">要闻</a>`)
	assert.Contains(t, nav, `<a href="1_3.xhtml">次条</a>`)
	assert.Contains(t, nav, `<a href="section_4.xhtml">评论</a>`)
	assert.Less(t, strings.Index(nav, "要闻"), strings.Index(nav, "评论"))

	var toc struct {
		Points []struct {
			PlayOrder string `xml:"playOrder,attr"`
			Label     string `xml:"navLabel>text"`
			Content   struct {
				Src string `xml:"src,attr"`
			} `xml:"content"`
			Children []struct {
				PlayOrder string `xml:"playOrder,attr"`
				Label     string `xml:"navLabel>text"`
			} `xml:"navPoint"`
		} `xml:"navMap>navPoint"`
	}
	require.NoError(t, xml.Unmarshal([]byte(readEntry(t, zr, "EPUB/toc.ncx")), &toc))

	require.Len(t, toc.Points, 2)
	assert.Equal(t, "要闻", toc.Points[0].Label)
	assert.Equal(t, "section_1.xhtml", toc.Points[0].Content.Src)
	require.Len(t, toc.Points[0].Children, 2)
	assert.Equal(t, "头条 & 快讯", toc.Points[0].Children[0].Label)
	assert.Equal(t, "2", toc.Points[0].Children[0].PlayOrder)
	assert.Equal(t, "4", toc.Points[1].PlayOrder)
}

// TestWrite_Deterministic verifies identical inputs give identical archives
func TestWrite_Deterministic(t *testing.T) {
	var first, second bytes.Buffer
	require.NoError(t, Write(&first, sampleDocument(), Options{Modified: modified}))
	require.NoError(t, Write(&second, sampleDocument(), Options{Modified: modified}))

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestWrite_NilDocument(t *testing.T) {
	assert.ErrorIs(t, Write(io.Discard, nil, Options{}), ErrNoDocument)
}

// TestWriteFile verifies the output name, directory creation and permissions
func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "books", "rmrb")
	doc := sampleDocument()

	path, err := WriteFile(dir, doc, Options{Modified: modified})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "人民日报_2024-03-05.epub"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	// Writing again replaces the book in place
	_, err = WriteFile(dir, doc, Options{Modified: modified})
	require.NoError(t, err)
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, Identifier("人民日报_2024-03-05"), Identifier("人民日报_2024-03-05"))
	assert.NotEqual(t, Identifier("人民日报_2024-03-05"), Identifier("人民日报_2024-03-06"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "a_b.epub", FileName(&edition.Document{Title: "a/b"}))
}
