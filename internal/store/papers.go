// Package store persists paper metadata in PostgreSQL and loads the corpus
// for index builds.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/paperscope/paperscope/internal/indexer/index"
	apperrors "github.com/paperscope/paperscope/pkg/errors"
	"github.com/paperscope/paperscope/pkg/postgres"
)

// schema is applied on startup. Re-running it is a no-op.
const schema = `
CREATE TABLE IF NOT EXISTS papers (
    paper_id         TEXT PRIMARY KEY,
    title            TEXT NOT NULL,
    abstract         TEXT NOT NULL,
    authors          TEXT[] NOT NULL DEFAULT '{}',
    primary_category TEXT NOT NULL,
    categories       TEXT[] NOT NULL DEFAULT '{}',
    published        TIMESTAMPTZ,
    updated          TIMESTAMPTZ,
    url              TEXT NOT NULL DEFAULT '',
    pdf_url          TEXT NOT NULL DEFAULT '',
    fetched_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_papers_primary_category ON papers (primary_category);
CREATE INDEX IF NOT EXISTS idx_papers_published ON papers (published);
`

const upsertSQL = `
INSERT INTO papers (paper_id, title, abstract, authors, primary_category, categories, published, updated, url, pdf_url, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
ON CONFLICT (paper_id) DO UPDATE SET
    title = EXCLUDED.title,
    abstract = EXCLUDED.abstract,
    authors = EXCLUDED.authors,
    primary_category = EXCLUDED.primary_category,
    categories = EXCLUDED.categories,
    published = EXCLUDED.published,
    updated = EXCLUDED.updated,
    url = EXCLUDED.url,
    pdf_url = EXCLUDED.pdf_url,
    fetched_at = NOW()
`

const selectColumns = `paper_id, title, abstract, authors, primary_category, categories, published, updated, url, pdf_url`

// Store reads and writes the papers table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store on the given database client.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "paper-store"),
	}
}

// EnsureSchema creates the papers table and its indexes if they are
// missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying papers schema: %w", err)
	}
	return nil
}

// UpsertPapers writes a batch of papers in a single transaction, inserting
// new rows and refreshing existing ones by arXiv ID. Returns the number of
// rows written.
func (s *Store) UpsertPapers(ctx context.Context, papers []index.Document) (int, error) {
	if len(papers) == 0 {
		return 0, nil
	}

	written := 0
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range papers {
			_, err := stmt.ExecContext(ctx,
				p.ID, p.Title, p.Abstract, pq.Array(p.Authors),
				p.PrimaryCategory, pq.Array(p.Categories),
				nullableTime(p.Published), nullableTime(p.Updated), p.URL, p.PDFURL,
			)
			if err != nil {
				return fmt.Errorf("upserting paper %s: %w", p.ID, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("papers upserted", "count", written)
	return written, nil
}

// LoadAll returns the full corpus for an index build, ordered by ID.
func (s *Store) LoadAll(ctx context.Context) ([]index.Document, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM papers ORDER BY paper_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("loading papers: %w", err)
	}
	defer rows.Close()

	var papers []index.Document
	for rows.Next() {
		doc, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating papers: %w", err)
	}
	return papers, nil
}

// Get returns one paper by arXiv ID.
func (s *Store) Get(ctx context.Context, id string) (*index.Document, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM papers WHERE paper_id = $1`, id,
	)
	doc, err := scanPaper(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("paper %q: %w", id, apperrors.ErrPaperNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Count returns the number of stored papers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM papers`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting papers: %w", err)
	}
	return n, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(row scanner) (*index.Document, error) {
	var (
		doc       index.Document
		published sql.NullTime
		updated   sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Abstract, pq.Array(&doc.Authors),
		&doc.PrimaryCategory, pq.Array(&doc.Categories),
		&published, &updated, &doc.URL, &doc.PDFURL,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning paper row: %w", err)
	}
	if published.Valid {
		doc.Published = published.Time.UTC()
		doc.Year = doc.Published.Year()
	}
	if updated.Valid {
		doc.Updated = updated.Time.UTC()
	}
	return &doc, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
