// Package repository provides data access interfaces and their PostgreSQL
// implementations for ScholarVault.
//
// All document and collection operations are scoped by the owning user: a
// row that belongs to someone else is reported as not found.
//
// # Error Handling
//
// Methods return errors from the domain package:
//
//   - domain.ErrNotFound: the row does not exist or belongs to another user
//   - domain.ErrAlreadyExists: unique constraint violation
//   - domain.ErrInvalidInput: invalid parameters
//
// # Transactions
//
// Constructors accept DBTX, so a pgx.Tx from database.DB.WithTransaction can
// be passed in place of the pool.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scholarvault/scholarvault-service/internal/database"
	"github.com/scholarvault/scholarvault-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// PostgreSQL error codes the repositories translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// UserRepository persists user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUsername(ctx context.Context, id uuid.UUID, username *string) (*domain.User, error)
	SetProfileImage(ctx context.Context, id uuid.UUID, url *string) (*domain.User, error)
}

// DocumentRepository persists documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) (*domain.Document, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.Document, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Document, error)
	ListByCollection(ctx context.Context, userID, collectionID uuid.UUID) ([]*domain.Document, error)
	Update(ctx context.Context, userID, id uuid.UUID, upd domain.DocumentUpdate) (*domain.Document, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// CollectionRepository persists collections and their document membership.
type CollectionRepository interface {
	Create(ctx context.Context, c *domain.Collection) (*domain.Collection, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.Collection, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Collection, error)
	Update(ctx context.Context, userID, id uuid.UUID, upd domain.CollectionUpdate) (*domain.Collection, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	AddDocument(ctx context.Context, collectionID, documentID uuid.UUID) error
	RemoveDocument(ctx context.Context, collectionID, documentID uuid.UUID) error
}

// pgErrorCode returns the SQLSTATE and constraint name of err, or empty
// strings when err is not a PostgreSQL error.
func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}
