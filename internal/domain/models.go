// Package domain provides the domain models and errors for the ScholarVault service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. PasswordHash is never serialized.
type User struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Username        *string   `json:"username"`
	ProfileImageURL *string   `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Document is a stored reference owned by a user.
type Document struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Record
	PDFURL    *string   `json:"pdf_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument creates a document for the given owner from a bibliographic record.
func NewDocument(userID uuid.UUID, rec Record, pdfURL *string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        uuid.New(),
		UserID:    userID,
		Record:    rec,
		PDFURL:    pdfURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DocumentUpdate carries a partial document update. Nil fields are left unchanged.
type DocumentUpdate struct {
	Title           *string  `json:"title" validate:"omitnil,min=1"`
	Authors         []string `json:"authors"`
	Year            *int     `json:"year" validate:"omitempty,min=0,max=9999"`
	PublicationType *string  `json:"publication_type"`
	Journal         *string  `json:"journal"`
	Volume          *string  `json:"volume"`
	Issue           *string  `json:"issue"`
	Pages           *string  `json:"pages"`
	Publisher       *string  `json:"publisher"`
	DOI             *string  `json:"doi"`
	URL             *string  `json:"url"`
	AbstractText    *string  `json:"abstract_text"`
	Keywords        []string `json:"keywords"`
	PDFURL          *string  `json:"pdf_url"`
}

// Collection groups documents. Collections nest through ParentID.
type Collection struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Name      string     `json:"name"`
	ParentID  *uuid.UUID `json:"parent_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewCollection creates a collection for the given owner.
func NewCollection(userID uuid.UUID, name string, parentID *uuid.UUID) *Collection {
	now := time.Now().UTC()
	return &Collection{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CollectionUpdate carries a partial collection update. Nil fields are left unchanged.
type CollectionUpdate struct {
	Name     *string    `json:"name" validate:"omitnil,min=1,max=255"`
	ParentID *uuid.UUID `json:"parent_id"`
}
