// Package store holds the Postgres repositories.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shelfmark/internal/classify"
)

// ClassificationPG implements classify.Cache on Postgres.
type ClassificationPG struct {
	db *pgxpool.Pool
}

func NewClassificationPG(db *pgxpool.Pool) *ClassificationPG {
	return &ClassificationPG{db: db}
}

func (r *ClassificationPG) GetByISBN(ctx context.Context, isbn string) (*classify.CacheEntry, error) {
	query := `
	SELECT isbn, title, authors, ddc, lcc, call_number, subjects, source, verified, created_at, updated_at
	FROM classification_cache
	WHERE isbn = $1
	`
	var e classify.CacheEntry
	err := r.db.QueryRow(ctx, query, isbn).Scan(
		&e.ISBN, &e.Title, &e.Authors, &e.DDC, &e.LCC, &e.CallNumber,
		&e.Subjects, &e.Source, &e.Verified, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get classification %s: %w", isbn, err)
	}
	return &e, nil
}

// InsertIfAbsent writes one cache row. An existing row for the ISBN wins:
// the insert becomes a no-op so a verified manual entry is never replaced
// by a later automatic one.
func (r *ClassificationPG) InsertIfAbsent(ctx context.Context, entry *classify.CacheEntry) error {
	query := `
	INSERT INTO classification_cache
		(isbn, title, authors, ddc, lcc, call_number, subjects, source, verified, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	ON CONFLICT (isbn) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		entry.ISBN, entry.Title, entry.Authors, entry.DDC, entry.LCC,
		entry.CallNumber, entry.Subjects, entry.Source, entry.Verified,
	)
	if err != nil {
		return fmt.Errorf("insert classification %s: %w", entry.ISBN, err)
	}
	return nil
}

func (r *ClassificationPG) FindSimilarByTitle(ctx context.Context, token string, limit int) ([]classify.CacheEntry, error) {
	query := `
	SELECT isbn, title, authors, ddc, lcc, call_number, subjects, source, verified, created_at, updated_at
	FROM classification_cache
	WHERE title ILIKE '%' || $1 || '%'
	ORDER BY verified DESC, updated_at DESC
	LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, token, limit)
	if err != nil {
		return nil, fmt.Errorf("find similar titles: %w", err)
	}
	defer rows.Close()

	var entries []classify.CacheEntry
	for rows.Next() {
		var e classify.CacheEntry
		if err := rows.Scan(
			&e.ISBN, &e.Title, &e.Authors, &e.DDC, &e.LCC, &e.CallNumber,
			&e.Subjects, &e.Source, &e.Verified, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
