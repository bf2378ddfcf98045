package index

import (
	"strings"
	"time"
)

// Document is one paper as the index sees it: identity, the searchable text
// fields, and the metadata the filter and display layers need. Documents are
// immutable once indexed; a rebuild replaces the whole set.
type Document struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Abstract        string    `json:"abstract"`
	Authors         []string  `json:"authors"`
	PrimaryCategory string    `json:"primary_category"`
	Categories      []string  `json:"categories"`
	Year            int       `json:"year"`
	Published       time.Time `json:"published"`
	Updated         time.Time `json:"updated,omitzero"`
	URL             string    `json:"url,omitempty"`
	PDFURL          string    `json:"pdf_url,omitempty"`
}

// SearchText returns the one field the index tokenizes: title and abstract
// joined.
func (d *Document) SearchText() string {
	return d.Title + " " + d.Abstract
}

// AuthorLine returns the comma-joined author list used for substring
// filtering and display.
func (d *Document) AuthorLine() string {
	return strings.Join(d.Authors, ", ")
}
