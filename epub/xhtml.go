package epub

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/pevans/edition/edition"
)

const xhtmlHead = `<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html>
`

// contentPage wraps body, which must already be markup, in an XHTML document.
func contentPage(title, lang, body string) []byte {
	var b bytes.Buffer
	b.WriteString(xhtmlHead)
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops"`)
	writeLang(&b, lang)
	b.WriteString(">\n<head>\n  <title>")
	b.WriteString(escape(title))
	b.WriteString("</title>\n</head>\n<body>")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.Bytes()
}

// navPage renders the EPUB 3 table of contents as nested ordered lists.
func navPage(doc *edition.Document) []byte {
	var b bytes.Buffer
	b.WriteString(xhtmlHead)
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops"`)
	writeLang(&b, doc.Language)
	b.WriteString(">\n<head>\n  <title>")
	b.WriteString(escape(doc.Title))
	b.WriteString("</title>\n  <link href=\"" + styleHref + "\" rel=\"stylesheet\" type=\"text/css\"/>\n</head>\n<body>\n")
	b.WriteString(`<nav epub:type="toc" id="toc" role="doc-toc">` + "\n")
	b.WriteString("<h2>" + escape(doc.Title) + "</h2>\n<ol>\n")
	for _, section := range doc.Nav {
		b.WriteString(`  <li><a href="` + escape(section.Href) + `">` + escape(section.Label) + "</a>")
		if len(section.Children) > 0 {
			b.WriteString("\n    <ol>\n")
			for _, child := range section.Children {
				b.WriteString(`      <li><a href="` + escape(child.Href) + `">` + escape(child.Label) + "</a></li>\n")
			}
			b.WriteString("    </ol>\n  ")
		}
		b.WriteString("</li>\n")
	}
	b.WriteString("</ol>\n</nav>\n</body>\n</html>\n")
	return b.Bytes()
}

func writeLang(b *bytes.Buffer, lang string) {
	if lang == "" {
		return
	}
	b.WriteString(` lang="` + escape(lang) + `" xml:lang="` + escape(lang) + `"`)
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
