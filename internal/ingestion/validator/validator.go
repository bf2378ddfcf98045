// Package validator checks fetched paper metadata before persistence. It
// enforces required fields and sanity bounds and returns per-field error
// details.
package validator

import (
	"fmt"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/indexer/index"
)

const (
	maxTitleLength    = 1024
	maxAbstractLength = 65536
	// arXiv started accepting submissions in 1991.
	minYear = 1991
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidatePaper checks that a fetched paper carries everything the index
// and the papers table need. Returns a ValidationError listing every
// failing field.
func ValidatePaper(p *index.Document) error {
	errs := make(map[string]string)

	if strings.TrimSpace(p.ID) == "" {
		errs["id"] = "id is required"
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	abstract := strings.TrimSpace(p.Abstract)
	if abstract == "" {
		errs["abstract"] = "abstract is required"
	} else if len(abstract) > maxAbstractLength {
		errs["abstract"] = fmt.Sprintf("abstract must be at most %d characters", maxAbstractLength)
	}
	if strings.TrimSpace(p.PrimaryCategory) == "" {
		errs["primary_category"] = "primary category is required"
	}
	if p.Year < minYear || p.Year > time.Now().Year()+1 {
		errs["year"] = fmt.Sprintf("year %d out of range", p.Year)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
