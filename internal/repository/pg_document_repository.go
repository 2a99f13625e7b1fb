package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scholarvault/scholarvault-service/internal/domain"
)

var _ DocumentRepository = (*PgDocumentRepository)(nil)

const documentColumns = `id, user_id, title, authors, year, publication_type, journal,
		volume, issue, pages, publisher, doi, url, abstract_text,
		keywords, pdf_url, created_at, updated_at`

// PgDocumentRepository is a PostgreSQL implementation of DocumentRepository.
type PgDocumentRepository struct {
	db DBTX
}

// NewPgDocumentRepository creates a new PostgreSQL document repository.
func NewPgDocumentRepository(db DBTX) *PgDocumentRepository {
	return &PgDocumentRepository{db: db}
}

// Create inserts a document.
func (r *PgDocumentRepository) Create(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if doc == nil {
		return nil, domain.NewValidationError("document", "document cannot be nil")
	}
	if doc.UserID == uuid.Nil {
		return nil, domain.NewValidationError("user_id", "owner is required")
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO documents (
			id, user_id, title, authors, year, publication_type, journal,
			volume, issue, pages, publisher, doi, url, abstract_text,
			keywords, pdf_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17
		)
		RETURNING ` + documentColumns

	row := r.db.QueryRow(ctx, query,
		doc.ID, doc.UserID, doc.Title, doc.Authors, doc.Year, doc.PublicationType, doc.Journal,
		doc.Volume, doc.Issue, doc.Pages, doc.Publisher, doc.DOI, doc.URL, doc.AbstractText,
		doc.Keywords, doc.PDFURL, now,
	)
	created, err := scanDocument(row)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return nil, domain.NewNotFoundError("user", doc.UserID.String())
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return created, nil
}

// Get retrieves one of the user's documents.
func (r *PgDocumentRepository) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND user_id = $2`

	doc, err := scanDocument(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("document", id.String())
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// List returns the user's documents, newest first.
func (r *PgDocumentRepository) List(ctx context.Context, userID uuid.UUID) ([]*domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC`

	return r.list(ctx, query, userID)
}

// ListByCollection returns the user's documents in a collection, newest first.
func (r *PgDocumentRepository) ListByCollection(ctx context.Context, userID, collectionID uuid.UUID) ([]*domain.Document, error) {
	query := `
		SELECT d.id, d.user_id, d.title, d.authors, d.year, d.publication_type, d.journal,
			d.volume, d.issue, d.pages, d.publisher, d.doi, d.url, d.abstract_text,
			d.keywords, d.pdf_url, d.created_at, d.updated_at
		FROM documents d
		INNER JOIN document_collections dc ON d.id = dc.document_id
		WHERE dc.collection_id = $1 AND d.user_id = $2
		ORDER BY d.created_at DESC`

	return r.list(ctx, query, collectionID, userID)
}

// Update applies a partial update. Nil fields keep their stored value.
func (r *PgDocumentRepository) Update(ctx context.Context, userID, id uuid.UUID, upd domain.DocumentUpdate) (*domain.Document, error) {
	query := `
		UPDATE documents
		SET
			title = COALESCE($1, title),
			authors = COALESCE($2, authors),
			year = COALESCE($3, year),
			publication_type = COALESCE($4, publication_type),
			journal = COALESCE($5, journal),
			volume = COALESCE($6, volume),
			issue = COALESCE($7, issue),
			pages = COALESCE($8, pages),
			publisher = COALESCE($9, publisher),
			doi = COALESCE($10, doi),
			url = COALESCE($11, url),
			abstract_text = COALESCE($12, abstract_text),
			keywords = COALESCE($13, keywords),
			pdf_url = COALESCE($14, pdf_url),
			updated_at = NOW()
		WHERE id = $15 AND user_id = $16
		RETURNING ` + documentColumns

	row := r.db.QueryRow(ctx, query,
		upd.Title, upd.Authors, upd.Year, upd.PublicationType, upd.Journal,
		upd.Volume, upd.Issue, upd.Pages, upd.Publisher, upd.DOI, upd.URL,
		upd.AbstractText, upd.Keywords, upd.PDFURL,
		id, userID,
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("document", id.String())
		}
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return doc, nil
}

// Delete removes one of the user's documents.
func (r *PgDocumentRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("document", id.String())
	}
	return nil
}

func (r *PgDocumentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// scanDocument scans a row in documentColumns order. pgx.Rows satisfies
// pgx.Row, so it serves both single-row and list queries.
func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	if err := row.Scan(
		&d.ID, &d.UserID, &d.Title, &d.Authors, &d.Year, &d.PublicationType, &d.Journal,
		&d.Volume, &d.Issue, &d.Pages, &d.Publisher, &d.DOI, &d.URL, &d.AbstractText,
		&d.Keywords, &d.PDFURL, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
