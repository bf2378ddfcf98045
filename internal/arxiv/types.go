// Package arxiv fetches paper metadata from the arXiv Atom API.
package arxiv

import (
	"encoding/xml"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/indexer/index"
)

// feed is the root element of an arXiv API response.
type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	Entries      []entry  `xml:"entry"`
}

type entry struct {
	ID              string     `xml:"id"`
	Title           string     `xml:"title"`
	Summary         string     `xml:"summary"`
	Published       string     `xml:"published"`
	Updated         string     `xml:"updated"`
	Authors         []author   `xml:"author"`
	PrimaryCategory category   `xml:"primary_category"`
	Categories      []category `xml:"category"`
	Links           []link     `xml:"link"`
}

type author struct {
	Name string `xml:"name"`
}

type category struct {
	Term string `xml:"term,attr"`
}

type link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

// toDocument converts an Atom entry into a Document. Entry IDs arrive as
// full abs URLs ("http://arxiv.org/abs/2301.00001v1"); only the suffix is
// kept.
func toDocument(e entry) index.Document {
	doc := index.Document{
		ID:       entryID(e.ID),
		Title:    collapseWhitespace(e.Title),
		Abstract: collapseWhitespace(e.Summary),
	}

	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			doc.Authors = append(doc.Authors, name)
		}
	}

	doc.PrimaryCategory = e.PrimaryCategory.Term
	if doc.PrimaryCategory != "" {
		doc.Categories = append(doc.Categories, doc.PrimaryCategory)
	}
	for _, c := range e.Categories {
		if c.Term == "" || c.Term == doc.PrimaryCategory {
			continue
		}
		doc.Categories = append(doc.Categories, c.Term)
	}
	if doc.PrimaryCategory == "" && len(doc.Categories) > 0 {
		doc.PrimaryCategory = doc.Categories[0]
	}

	if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
		doc.Published = t.UTC()
		doc.Year = t.Year()
	}
	if t, err := time.Parse(time.RFC3339, e.Updated); err == nil {
		doc.Updated = t.UTC()
	}

	for _, l := range e.Links {
		switch {
		case l.Title == "pdf":
			doc.PDFURL = l.Href
		case l.Rel == "alternate":
			doc.URL = l.Href
		}
	}
	return doc
}

func entryID(raw string) string {
	id := strings.TrimSpace(raw)
	if i := strings.LastIndex(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	return id
}

// collapseWhitespace trims a field and folds newlines and runs of spaces,
// which arXiv uses freely inside titles and abstracts.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
