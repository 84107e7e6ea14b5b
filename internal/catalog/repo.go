package catalog

import (
	"context"
	"database/sql"
	"errors"
)

// Repository keeps catalog documents in the documents table.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PutDocument inserts or replaces a document.
func (r *Repository) PutDocument(ctx context.Context, collection string, doc Raw) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, NOW())
		ON CONFLICT (collection, id) DO UPDATE SET
			body = EXCLUDED.body,
			updated_at = NOW()
	`, collection, doc.ID, string(doc.Body), doc.CreatedAt)
	return err
}

// GetDocument loads one document.
func (r *Repository) GetDocument(ctx context.Context, collection, id string) (Raw, error) {
	var doc Raw
	var body string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, body::text, created_at FROM documents WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&doc.ID, &body, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Raw{}, ErrNotFound
	}
	doc.Body = []byte(body)
	return doc, err
}

// ListDocuments returns the collection, newest first.
func (r *Repository) ListDocuments(ctx context.Context, collection string) ([]Raw, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, body::text, created_at FROM documents WHERE collection = $1 ORDER BY created_at DESC
	`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Raw
	for rows.Next() {
		var doc Raw
		var body string
		if err := rows.Scan(&doc.ID, &body, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doc.Body = []byte(body)
		res = append(res, doc)
	}
	return res, rows.Err()
}

// DeleteDocument removes a document.
func (r *Repository) DeleteDocument(ctx context.Context, collection, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
