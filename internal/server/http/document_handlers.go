package httpserver

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/scholarvault/scholarvault-service/internal/domain"
	"github.com/scholarvault/scholarvault-service/internal/events"
	"github.com/scholarvault/scholarvault-service/internal/metadata"
	"github.com/scholarvault/scholarvault-service/internal/observability"
	"github.com/scholarvault/scholarvault-service/internal/pdf"
)

const fallbackPDFName = "unknown.pdf"

type createDocumentRequest struct {
	Title           string   `json:"title" validate:"required"`
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

func (req *createDocumentRequest) record() domain.Record {
	return domain.Record{
		Title:           req.Title,
		Authors:         req.Authors,
		Year:            req.Year,
		PublicationType: req.PublicationType,
		Journal:         req.Journal,
		Volume:          req.Volume,
		Issue:           req.Issue,
		Pages:           req.Pages,
		Publisher:       req.Publisher,
		DOI:             req.DOI,
		URL:             req.URL,
		AbstractText:    req.AbstractText,
		Keywords:        req.Keywords,
	}
}

type importDocumentRequest struct {
	URL string `json:"url" validate:"required,url,max=2048"`
}

type enrichmentResponse struct {
	Outcome string   `json:"outcome"`
	DOI     string   `json:"doi,omitempty"`
	Filled  []string `json:"filled"`
}

type enrichDocumentResponse struct {
	Document   *domain.Document   `json:"document"`
	Enrichment enrichmentResponse `json:"enrichment"`
}

// listDocuments handles GET /api/documents.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Documents.List(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list documents")
		writeError(w, http.StatusInternalServerError, "Failed to fetch documents")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// createDocument handles POST /api/documents.
func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	doc, err := s.deps.Documents.Create(ctx, domain.NewDocument(userIDFromContext(ctx), req.record(), req.PDFURL))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to create document")
		writeError(w, http.StatusInternalServerError, "Failed to create document")
		return
	}

	events.PublishDocumentEvent(ctx, s.deps.Publisher, s.logger, domain.EventTypeDocumentCreated, doc, "")
	writeJSON(w, http.StatusCreated, doc)
}

// getDocument handles GET /api/documents/{id}.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id", "document ID")
	if !ok {
		return
	}

	doc, err := s.deps.Documents.Get(r.Context(), userIDFromContext(r.Context()), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// updateDocument handles PUT /api/documents/{id}. Only provided fields change.
func (s *Server) updateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id", "document ID")
	if !ok {
		return
	}

	var upd domain.DocumentUpdate
	if !s.decodeJSON(w, r, &upd) {
		return
	}

	doc, err := s.deps.Documents.Update(r.Context(), userIDFromContext(r.Context()), id, upd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// deleteDocument handles DELETE /api/documents/{id}. The stored PDF is
// removed with the row.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id", "document ID")
	if !ok {
		return
	}

	ctx := r.Context()
	userID := userIDFromContext(ctx)
	logger := observability.LoggerFromContext(ctx, s.logger)

	doc, err := s.deps.Documents.Get(ctx, userID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.deps.Documents.Delete(ctx, userID, id); err != nil {
		writeDomainError(w, err)
		return
	}

	if doc.PDFURL != nil {
		s.removeFile(logger, *doc.PDFURL)
	}
	events.PublishDocumentEvent(ctx, s.deps.Publisher, logger, domain.EventTypeDocumentDeleted, doc, "")
	w.WriteHeader(http.StatusNoContent)
}

// uploadDocument handles POST /api/documents/upload. The PDF is stored,
// enriched and saved as a document. Enrichment failure never fails the
// upload; the document then carries only the file name as its title.
func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, ok := readMultipartFile(w, r, 0)
	if !ok {
		return
	}

	name := file.name
	if name == "" {
		name = fallbackPDFName
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		writeError(w, http.StatusBadRequest, "Only PDF files are allowed")
		return
	}

	s.ingestPDF(w, r, name, file.data, nil)
}

// importDocument handles POST /api/documents/import: the PDF at the given
// URL is fetched and then handled like an upload.
func (s *Server) importDocument(w http.ResponseWriter, r *http.Request) {
	var req importDocumentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if s.deps.Fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, "URL import is not enabled")
		return
	}

	fetched, err := s.deps.Fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		logger := observability.LoggerFromContext(r.Context(), s.logger)
		logger.Warn().Err(err).Str("url", req.URL).Msg("PDF import failed")
		switch {
		case errors.Is(err, pdf.ErrPrivateNetwork):
			writeError(w, http.StatusBadRequest, "URL is not allowed")
		case errors.Is(err, pdf.ErrNotPDF):
			writeError(w, http.StatusBadRequest, "URL does not point to a PDF")
		case errors.Is(err, pdf.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "PDF is too large")
		default:
			writeError(w, http.StatusBadGateway, "Failed to fetch PDF")
		}
		return
	}

	s.ingestPDF(w, r, fetched.FileName, fetched.Content, &req.URL)
}

// ingestPDF stores data, runs the enrichment pipeline and creates the
// document. sourceURL, when set, fills the record URL if enrichment left it
// empty.
func (s *Server) ingestPDF(w http.ResponseWriter, r *http.Request, name string, data []byte, sourceURL *string) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)
	logger := observability.LoggerFromContext(ctx, s.logger)

	stored, err := s.deps.Files.SavePDF(name, data)
	if err != nil {
		logger.Error().Err(err).Msg("failed to save PDF")
		writeError(w, http.StatusInternalServerError, "Failed to save file")
		return
	}

	rec, outcome := s.enrich(ctx, logger, name, data)
	if rec.URL == nil && sourceURL != nil {
		rec.URL = sourceURL
	}

	doc, err := s.deps.Documents.Create(ctx, domain.NewDocument(userID, *rec, &stored))
	if err != nil {
		s.removeFile(logger, stored)
		logger.Error().Err(err).Msg("failed to create document")
		writeError(w, http.StatusInternalServerError, "Failed to create document")
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordDocumentUploaded()
	}
	docLogger := observability.WithDocumentContext(logger, doc.ID.String(), userID.String())
	docLogger.Info().Str("outcome", string(outcome)).Msg("document uploaded")

	events.PublishDocumentEvent(ctx, s.deps.Publisher, docLogger, domain.EventTypeDocumentCreated, doc, string(outcome))
	writeJSON(w, http.StatusCreated, doc)
}

// enrich runs the pipeline and falls back to a title-only record named
// after the file.
func (s *Server) enrich(ctx context.Context, logger zerolog.Logger, name string, data []byte) (*domain.Record, metadata.Outcome) {
	if s.deps.Enricher == nil {
		return domain.TitleOnlyRecord(name), metadata.OutcomeFailed
	}

	res, err := s.deps.Enricher.Enrich(ctx, data)
	if err != nil || res == nil || res.Record == nil {
		logger.Warn().Err(err).Str("file", name).Msg("metadata extraction failed, using file name as title")
		return domain.TitleOnlyRecord(name), metadata.OutcomeFailed
	}
	return res.Record, res.Outcome
}

// enrichDocument handles POST /api/documents/{id}/enrich. The pipeline
// re-runs on the stored PDF and fills only the document's empty fields.
func (s *Server) enrichDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUIDParam(w, r, "id", "document ID")
	if !ok {
		return
	}

	ctx := r.Context()
	userID := userIDFromContext(ctx)
	logger := observability.WithDocumentContext(observability.LoggerFromContext(ctx, s.logger), id.String(), userID.String())

	doc, err := s.deps.Documents.Get(ctx, userID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if doc.PDFURL == nil || *doc.PDFURL == "" {
		writeError(w, http.StatusBadRequest, "Document has no PDF")
		return
	}
	if s.deps.Enricher == nil {
		writeError(w, http.StatusServiceUnavailable, "Metadata enrichment is not enabled")
		return
	}

	data, err := s.deps.Files.Read(*doc.PDFURL)
	if err != nil {
		logger.Warn().Err(err).Msg("stored PDF unavailable")
		writeError(w, http.StatusUnprocessableEntity, "Stored PDF is unavailable")
		return
	}

	res, err := s.deps.Enricher.Enrich(ctx, data)
	if err != nil {
		logger.Warn().Err(err).Msg("enrichment failed")
		if errors.Is(err, domain.ErrExtraction) {
			writeError(w, http.StatusUnprocessableEntity, "PDF could not be parsed")
			return
		}
		writeError(w, http.StatusBadGateway, "Metadata enrichment failed")
		return
	}

	before := metadata.MissingFields(&doc.Record)
	metadata.FillGaps(&doc.Record, res.Record)
	if doc.DOI == nil && res.Record.DOI != nil {
		doc.DOI = res.Record.DOI
		before = append(before, "doi")
	}
	after := metadata.MissingFields(&doc.Record)

	filled := make([]string, 0, len(before))
	for _, f := range before {
		if !slices.Contains(after, f) {
			filled = append(filled, f)
		}
	}

	if len(filled) > 0 {
		doc, err = s.deps.Documents.Update(ctx, userID, id, updateFromRecord(&doc.Record))
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}

	events.PublishDocumentEvent(ctx, s.deps.Publisher, logger, domain.EventTypeDocumentEnriched, doc, string(res.Outcome))
	writeJSON(w, http.StatusOK, enrichDocumentResponse{
		Document: doc,
		Enrichment: enrichmentResponse{
			Outcome: string(res.Outcome),
			DOI:     res.Identifier,
			Filled:  filled,
		},
	})
}

// updateFromRecord builds an update that writes every populated field of rec.
func updateFromRecord(rec *domain.Record) domain.DocumentUpdate {
	upd := domain.DocumentUpdate{
		Authors:         rec.Authors,
		Year:            rec.Year,
		PublicationType: rec.PublicationType,
		Journal:         rec.Journal,
		Volume:          rec.Volume,
		Issue:           rec.Issue,
		Pages:           rec.Pages,
		Publisher:       rec.Publisher,
		DOI:             rec.DOI,
		URL:             rec.URL,
		AbstractText:    rec.AbstractText,
		Keywords:        rec.Keywords,
	}
	if rec.Title != "" {
		upd.Title = &rec.Title
	}
	return upd
}

// removeFile deletes a stored file, logging failures.
func (s *Server) removeFile(logger zerolog.Logger, stored string) {
	if s.deps.Files == nil {
		return
	}
	if err := s.deps.Files.Remove(stored); err != nil {
		logger.Warn().Err(err).Str("path", stored).Msg("failed to remove stored file")
	}
}

