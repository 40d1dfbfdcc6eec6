package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/podx/internal/models"
	"github.com/jmoiron/sqlx"
)

// SearchResultRepository caches directory search outcomes per normalized term.
type SearchResultRepository struct {
	db    sqlx.ExtContext
	touch func(table string)
}

// NewSearchResultRepository creates a SearchResultRepository over db without change notifications.
func NewSearchResultRepository(db sqlx.ExtContext) *SearchResultRepository {
	return &SearchResultRepository{db: db, touch: func(string) {}}
}

type searchResultRow struct {
	Term          string    `db:"term"`
	CollectionIDs string    `db:"collection_ids"`
	Count         int       `db:"count"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Upsert stores sr, replacing any cached result for the same term.
func (r *SearchResultRepository) Upsert(ctx context.Context, sr *models.SearchResult) error {
	if sr.Term == "" {
		return fmt.Errorf("validation failed: term is required")
	}
	if sr.UpdatedAt.IsZero() {
		sr.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO search_results (term, collection_ids, count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(term) DO UPDATE SET
			collection_ids = excluded.collection_ids,
			count = excluded.count,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, sr.Term, models.JoinIDs(sr.CollectionIDs), sr.Count, sr.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert search result: %w", err)
	}

	r.touch(TableSearchResults)
	return nil
}

// Get retrieves the cached result for term.
func (r *SearchResultRepository) Get(ctx context.Context, term string) (*models.SearchResult, error) {
	var row searchResultRow
	query := "SELECT term, collection_ids, count, updated_at FROM search_results WHERE term = ?"
	if err := sqlx.GetContext(ctx, r.db, &row, query, term); err != nil {
		return nil, notFound(err, "search result for %q", term)
	}

	return &models.SearchResult{
		Term:          row.Term,
		CollectionIDs: models.SplitIDs(row.CollectionIDs),
		Count:         row.Count,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}
