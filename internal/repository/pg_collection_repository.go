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

var _ CollectionRepository = (*PgCollectionRepository)(nil)

const collectionColumns = `id, user_id, name, parent_id, created_at, updated_at`

// PgCollectionRepository is a PostgreSQL implementation of CollectionRepository.
type PgCollectionRepository struct {
	db DBTX
}

// NewPgCollectionRepository creates a new PostgreSQL collection repository.
func NewPgCollectionRepository(db DBTX) *PgCollectionRepository {
	return &PgCollectionRepository{db: db}
}

// Create inserts a collection.
func (r *PgCollectionRepository) Create(ctx context.Context, c *domain.Collection) (*domain.Collection, error) {
	if c == nil {
		return nil, domain.NewValidationError("collection", "collection cannot be nil")
	}
	if c.Name == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO collections (id, user_id, name, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + collectionColumns

	created, err := scanCollection(r.db.QueryRow(ctx, query, c.ID, c.UserID, c.Name, c.ParentID, now))
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return nil, domain.NewNotFoundError("collection", "parent")
		}
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return created, nil
}

// Get retrieves one of the user's collections.
func (r *PgCollectionRepository) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE id = $1 AND user_id = $2`

	c, err := scanCollection(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("collection", id.String())
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return c, nil
}

// List returns the user's collections ordered by name.
func (r *PgCollectionRepository) List(ctx context.Context, userID uuid.UUID) ([]*domain.Collection, error) {
	query := `
		SELECT ` + collectionColumns + `
		FROM collections
		WHERE user_id = $1
		ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	collections := make([]*domain.Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collections: %w", err)
	}
	return collections, nil
}

// Update applies a partial update. Nil fields keep their stored value.
func (r *PgCollectionRepository) Update(ctx context.Context, userID, id uuid.UUID, upd domain.CollectionUpdate) (*domain.Collection, error) {
	if upd.ParentID != nil && *upd.ParentID == id {
		return nil, domain.NewValidationError("parent_id", "collection cannot be its own parent")
	}

	query := `
		UPDATE collections
		SET name = COALESCE($1, name),
			parent_id = COALESCE($2, parent_id),
			updated_at = NOW()
		WHERE id = $3 AND user_id = $4
		RETURNING ` + collectionColumns

	c, err := scanCollection(r.db.QueryRow(ctx, query, upd.Name, upd.ParentID, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("collection", id.String())
		}
		switch code, _ := pgErrorCode(err); code {
		case pgForeignKeyViolation:
			return nil, domain.NewNotFoundError("collection", "parent")
		case pgCheckViolation:
			return nil, domain.NewValidationError("parent_id", "collection cannot be its own parent")
		}
		return nil, fmt.Errorf("failed to update collection: %w", err)
	}
	return c, nil
}

// Delete removes one of the user's collections. Child collections cascade.
func (r *PgCollectionRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM collections WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("collection", id.String())
	}
	return nil
}

// AddDocument links a document to a collection. Adding an existing link is
// not an error. Callers check ownership of both sides first.
func (r *PgCollectionRepository) AddDocument(ctx context.Context, collectionID, documentID uuid.UUID) error {
	query := `
		INSERT INTO document_collections (document_id, collection_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := r.db.Exec(ctx, query, documentID, collectionID); err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return domain.NewNotFoundError("document", documentID.String())
		}
		return fmt.Errorf("failed to add document to collection: %w", err)
	}
	return nil
}

// RemoveDocument unlinks a document from a collection.
func (r *PgCollectionRepository) RemoveDocument(ctx context.Context, collectionID, documentID uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`DELETE FROM document_collections WHERE document_id = $1 AND collection_id = $2`,
		documentID, collectionID)
	if err != nil {
		return fmt.Errorf("failed to remove document from collection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("membership", documentID.String())
	}
	return nil
}

func scanCollection(row pgx.Row) (*domain.Collection, error) {
	var c domain.Collection
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.ParentID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
