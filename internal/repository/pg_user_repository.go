package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scholarvault/scholarvault-service/internal/domain"
)

var _ UserRepository = (*PgUserRepository)(nil)

const userColumns = `id, email, password_hash, username, profile_image_url, created_at, updated_at`

// PgUserRepository is a PostgreSQL implementation of UserRepository.
type PgUserRepository struct {
	db DBTX
}

// NewPgUserRepository creates a new PostgreSQL user repository.
func NewPgUserRepository(db DBTX) *PgUserRepository {
	return &PgUserRepository{db: db}
}

// Create inserts a user. A duplicate email yields an AlreadyExistsError.
func (r *PgUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, domain.NewValidationError("user", "user cannot be nil")
	}
	if user.Email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO users (id, email, password_hash, username, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query, user.ID, user.Email, user.PasswordHash, user.Username, now)
	created, err := scanUser(row)
	if err != nil {
		if code, constraint := pgErrorCode(err); code == pgUniqueViolation && constraint == "users_email_key" {
			return nil, domain.NewAlreadyExistsError("user", user.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return created, nil
}

// GetByID retrieves a user by ID.
func (r *PgUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("user", id.String())
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email address.
func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}

	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("user", email)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// UpdateUsername sets the username. A nil username clears it.
func (r *PgUserRepository) UpdateUsername(ctx context.Context, id uuid.UUID, username *string) (*domain.User, error) {
	query := `
		UPDATE users SET username = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns
	return r.updateOne(ctx, id, query, username, id)
}

// SetProfileImage stores the profile image path. A nil url clears it.
func (r *PgUserRepository) SetProfileImage(ctx context.Context, id uuid.UUID, url *string) (*domain.User, error) {
	query := `
		UPDATE users SET profile_image_url = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns
	return r.updateOne(ctx, id, query, url, id)
}

func (r *PgUserRepository) updateOne(ctx context.Context, id uuid.UUID, query string, args ...any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("user", id.String())
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Username, &u.ProfileImageURL, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
