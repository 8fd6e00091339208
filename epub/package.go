package epub

import (
	"encoding/xml"
	"strconv"

	"github.com/pevans/edition/edition"
)

// Media types used in the manifest.
const (
	mediaXHTML = "application/xhtml+xml"
	mediaNCX   = "application/x-dtbncx+xml"
	mediaCSS   = "text/css"
	mediaOPF   = "application/oebps-package+xml"
)

// containerXML is META-INF/container.xml.
type containerXML struct {
	XMLName   xml.Name  `xml:"container"`
	Version   string    `xml:"version,attr"`
	Xmlns     string    `xml:"xmlns,attr"`
	Rootfiles rootfiles `xml:"rootfiles"`
}

type rootfiles struct {
	Rootfile []rootfile `xml:"rootfile"`
}

type rootfile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

func newContainer() containerXML {
	return containerXML{
		Version: "1.0",
		Xmlns:   "urn:oasis:names:tc:opendocument:xmlns:container",
		Rootfiles: rootfiles{Rootfile: []rootfile{
			{FullPath: contentDir + "/" + opfName, MediaType: mediaOPF},
		}},
	}
}

// opfPackage is the EPUB 3 package document.
type opfPackage struct {
	XMLName          xml.Name    `xml:"package"`
	Xmlns            string      `xml:"xmlns,attr"`
	Version          string      `xml:"version,attr"`
	UniqueIdentifier string      `xml:"unique-identifier,attr"`
	Lang             string      `xml:"xml:lang,attr,omitempty"`
	Metadata         opfMetadata `xml:"metadata"`
	Manifest         opfManifest `xml:"manifest"`
	Spine            opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	XmlnsDC    string     `xml:"xmlns:dc,attr"`
	Identifier dcElement  `xml:"dc:identifier"`
	Title      dcElement  `xml:"dc:title"`
	Language   dcElement  `xml:"dc:language"`
	Date       *dcElement `xml:"dc:date,omitempty"`
	Creator    *dcElement `xml:"dc:creator,omitempty"`
	Publisher  *dcElement `xml:"dc:publisher,omitempty"`
	Meta       []opfMeta  `xml:"meta"`
}

type dcElement struct {
	ID      string `xml:"id,attr,omitempty"`
	Content string `xml:",chardata"`
}

type opfMeta struct {
	Property string `xml:"property,attr,omitempty"`
	Name     string `xml:"name,attr,omitempty"`
	Content  string `xml:"content,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type opfManifest struct {
	Items []opfItem `xml:"item"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr,omitempty"`
}

type opfSpine struct {
	Toc      string       `xml:"toc,attr"`
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef string `xml:"idref,attr"`
}

// ncx is the EPUB 2 navigation document kept for older readers.
type ncx struct {
	XMLName xml.Name  `xml:"ncx"`
	Xmlns   string    `xml:"xmlns,attr"`
	Version string    `xml:"version,attr"`
	Head    ncxHead   `xml:"head"`
	Title   string    `xml:"docTitle>text"`
	NavMap  ncxNavMap `xml:"navMap"`
}

type ncxHead struct {
	Meta []ncxMeta `xml:"meta"`
}

type ncxMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type ncxNavMap struct {
	NavPoints []ncxNavPoint `xml:"navPoint"`
}

type ncxNavPoint struct {
	ID        string        `xml:"id,attr"`
	PlayOrder string        `xml:"playOrder,attr"`
	Label     string        `xml:"navLabel>text"`
	Content   ncxContent    `xml:"content"`
	Children  []ncxNavPoint `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// buildNCX mirrors doc.Nav. Play order counts every nav point depth first.
func buildNCX(doc *edition.Document, identifier string) ncx {
	order := 0
	next := func() string {
		order++
		return strconv.Itoa(order)
	}

	var points []ncxNavPoint
	for _, section := range doc.Nav {
		point := ncxNavPoint{
			ID:        "navpoint-" + strconv.Itoa(len(points)+1),
			PlayOrder: next(),
			Label:     section.Label,
			Content:   ncxContent{Src: section.Href},
		}
		for _, child := range section.Children {
			point.Children = append(point.Children, ncxNavPoint{
				ID:        "navpoint-" + strconv.Itoa(len(points)+1) + "-" + strconv.Itoa(len(point.Children)+1),
				PlayOrder: next(),
				Label:     child.Label,
				Content:   ncxContent{Src: child.Href},
			})
		}
		points = append(points, point)
	}

	return ncx{
		Xmlns:   "http://www.daisy.org/z3986/2005/ncx/",
		Version: "2005-1",
		Head: ncxHead{Meta: []ncxMeta{
			{Name: "dtb:uid", Content: identifier},
			{Name: "dtb:depth", Content: strconv.Itoa(ncxDepth(doc))},
			{Name: "dtb:totalPageCount", Content: "0"},
			{Name: "dtb:maxPageNumber", Content: "0"},
		}},
		Title:  doc.Title,
		NavMap: ncxNavMap{NavPoints: points},
	}
}

func ncxDepth(doc *edition.Document) int {
	for _, section := range doc.Nav {
		if len(section.Children) > 0 {
			return 2
		}
	}
	return 1
}
