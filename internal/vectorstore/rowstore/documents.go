package rowstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrDocumentNotFound indicates the document ID has no row.
var ErrDocumentNotFound = errors.New("document not found")

// Document is a source document row. Content is the full extracted
// text; the retriever falls back to it when chunk search finds nothing.
type Document struct {
	ID         string
	OwnerID    string
	Name       string
	SourceType string
	Content    string
	Indexed    bool
}

// Documents reads the documents table. It backs both the indexing path
// (fetching text to chunk) and the retriever's document-level fallback.
type Documents struct {
	db querier
}

// NewDocuments creates a Documents accessor over the same pool the
// Store uses.
func NewDocuments(db querier) *Documents {
	return &Documents{db: db}
}

const documentCols = `id, owner_id, name, source_type, content, indexed`

// Get returns one document by ID.
func (d *Documents) Get(ctx context.Context, id string) (Document, error) {
	var doc Document
	err := d.db.QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.OwnerID, &doc.Name, &doc.SourceType, &doc.Content, &doc.Indexed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("loading document %s: %w", id, err)
	}
	return doc, nil
}

// ListByOwner returns the owner's documents, newest first, up to limit.
// When documentIDs is non-empty the result is restricted to those IDs.
func (d *Documents) ListByOwner(ctx context.Context, ownerID string, documentIDs []string, limit int) ([]Document, error) {
	query := `SELECT ` + documentCols + ` FROM documents WHERE owner_id = $1`
	args := []any{ownerID}
	if len(documentIDs) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, documentIDs)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := d.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Name, &doc.SourceType, &doc.Content, &doc.Indexed); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Upsert writes a document row, overwriting any previous version.
func (d *Documents) Upsert(ctx context.Context, doc Document) error {
	_, err := d.db.Exec(ctx,
		`INSERT INTO documents (id, owner_id, name, source_type, content, indexed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			source_type = EXCLUDED.source_type,
			content = EXCLUDED.content,
			indexed = EXCLUDED.indexed`,
		doc.ID, doc.OwnerID, doc.Name, doc.SourceType, doc.Content, doc.Indexed)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

// MarkIndexed flips the indexed flag after a successful indexing run.
func (d *Documents) MarkIndexed(ctx context.Context, id string, indexed bool) error {
	tag, err := d.db.Exec(ctx,
		`UPDATE documents SET indexed = $2 WHERE id = $1`, id, indexed)
	if err != nil {
		return fmt.Errorf("marking document %s indexed=%v: %w", id, indexed, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return nil
}
