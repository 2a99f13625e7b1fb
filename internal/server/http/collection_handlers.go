package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/scholarvault/scholarvault-service/internal/domain"
	"github.com/scholarvault/scholarvault-service/internal/observability"
)

type createCollectionRequest struct {
	Name     string     `json:"name" validate:"required,max=255"`
	ParentID *uuid.UUID `json:"parent_id"`
}

// listCollections handles GET /api/collections.
func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.deps.Collections.List(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list collections")
		writeError(w, http.StatusInternalServerError, "Failed to fetch collections")
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

// createCollection handles POST /api/collections.
func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	userID := userIDFromContext(ctx)

	if req.ParentID != nil && !s.checkParent(ctx, w, userID, *req.ParentID) {
		return
	}

	col, err := s.deps.Collections.Create(ctx, domain.NewCollection(userID, req.Name, req.ParentID))
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			writeError(w, http.StatusBadRequest, "Parent collection not found")
			return
		}
		s.logger.Error().Err(err).Msg("failed to create collection")
		writeError(w, http.StatusInternalServerError, "Failed to create collection")
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

// updateCollection handles PUT /api/collections/{id}. A collection may not
// be moved under itself or any of its descendants.
func (s *Server) updateCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id", "collection ID")
	if !ok {
		return
	}

	var upd domain.CollectionUpdate
	if !s.decodeJSON(w, r, &upd) {
		return
	}

	ctx := r.Context()
	userID := userIDFromContext(ctx)

	if _, err := s.deps.Collections.Get(ctx, userID, id); err != nil {
		writeDomainError(w, err)
		return
	}

	if upd.ParentID != nil {
		if *upd.ParentID == id {
			writeError(w, http.StatusBadRequest, "Collection cannot be its own parent")
			return
		}
		if !s.checkParent(ctx, w, userID, *upd.ParentID) {
			return
		}
		cyclic, err := s.isDescendant(ctx, userID, *upd.ParentID, id)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to check collection ancestry")
			writeError(w, http.StatusInternalServerError, "Failed to update collection")
			return
		}
		if cyclic {
			writeError(w, http.StatusBadRequest, "Collection cannot be moved into its own descendant")
			return
		}
	}

	col, err := s.deps.Collections.Update(ctx, userID, id, upd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// deleteCollection handles DELETE /api/collections/{id}.
func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id", "collection ID")
	if !ok {
		return
	}

	if err := s.deps.Collections.Delete(r.Context(), userIDFromContext(r.Context()), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listCollectionDocuments handles GET /api/collections/{id}/documents.
func (s *Server) listCollectionDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id", "collection ID")
	if !ok {
		return
	}

	ctx := r.Context()
	userID := userIDFromContext(ctx)

	if _, err := s.deps.Collections.Get(ctx, userID, id); err != nil {
		writeDomainError(w, err)
		return
	}

	docs, err := s.deps.Documents.ListByCollection(ctx, userID, id)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list collection documents")
		writeError(w, http.StatusInternalServerError, "Failed to fetch documents")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// addDocumentToCollection handles POST /api/collections/{id}/documents/{documentID}.
// Adding a document twice is not an error.
func (s *Server) addDocumentToCollection(w http.ResponseWriter, r *http.Request) {
	collectionID, documentID, ok := s.membershipTarget(w, r)
	if !ok {
		return
	}

	if err := s.deps.Collections.AddDocument(r.Context(), collectionID, documentID); err != nil {
		logger := observability.LoggerFromContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("failed to add document to collection")
		writeError(w, http.StatusInternalServerError, "Failed to add document to collection")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// removeDocumentFromCollection handles DELETE /api/collections/{id}/documents/{documentID}.
func (s *Server) removeDocumentFromCollection(w http.ResponseWriter, r *http.Request) {
	collectionID, documentID, ok := s.membershipTarget(w, r)
	if !ok {
		return
	}

	err := s.deps.Collections.RemoveDocument(r.Context(), collectionID, documentID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Document not in collection")
	default:
		logger := observability.LoggerFromContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("failed to remove document from collection")
		writeError(w, http.StatusInternalServerError, "Failed to remove document from collection")
	}
}

// membershipTarget parses both path IDs and checks that the caller owns the
// collection and the document.
func (s *Server) membershipTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	collectionID, ok := parseUUIDParam(w, r, "id", "collection ID")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	documentID, ok := parseUUIDParam(w, r, "documentID", "document ID")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	ctx := r.Context()
	userID := userIDFromContext(ctx)

	if _, err := s.deps.Collections.Get(ctx, userID, collectionID); err != nil {
		writeDomainError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	if _, err := s.deps.Documents.Get(ctx, userID, documentID); err != nil {
		writeDomainError(w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return collectionID, documentID, true
}

func (s *Server) checkParent(ctx context.Context, w http.ResponseWriter, userID, parentID uuid.UUID) bool {
	_, err := s.deps.Collections.Get(ctx, userID, parentID)
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "Parent collection not found")
		return false
	}
	writeDomainError(w, err)
	return false
}

// isDescendant reports whether candidate sits below root in the user's
// collection tree.
func (s *Server) isDescendant(ctx context.Context, userID, candidate, root uuid.UUID) (bool, error) {
	cols, err := s.deps.Collections.List(ctx, userID)
	if err != nil {
		return false, err
	}

	parents := make(map[uuid.UUID]*uuid.UUID, len(cols))
	for _, c := range cols {
		parents[c.ID] = c.ParentID
	}

	seen := make(map[uuid.UUID]bool, len(cols))
	for cur := parents[candidate]; cur != nil; cur = parents[*cur] {
		if *cur == root {
			return true, nil
		}
		if seen[*cur] {
			break
		}
		seen[*cur] = true
	}
	return false, nil
}
