package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for document lifecycle events.
const (
	EventTypeDocumentCreated  = "document.created"
	EventTypeDocumentEnriched = "document.enriched"
	EventTypeDocumentDeleted  = "document.deleted"
)

// Event is a document lifecycle notification published to the event bus.
type Event struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	UserID      string          `json:"user_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DocumentEventPayload is the payload of document.* events.
type DocumentEventPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	DOI        *string   `json:"doi,omitempty"`
	Outcome    string    `json:"enrichment_outcome,omitempty"`
}

// NewEvent creates a new event with the given parameters.
// The payload is JSON-serialized automatically.
func NewEvent(eventType string, aggregateID, userID uuid.UUID, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		AggregateID: aggregateID.String(),
		UserID:      userID.String(),
		Payload:     payloadBytes,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
