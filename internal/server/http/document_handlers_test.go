package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/scholarvault/scholarvault-service/internal/domain"
	"github.com/scholarvault/scholarvault-service/internal/metadata"
	"github.com/scholarvault/scholarvault-service/internal/pdf"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv(t)

	var gotUser uuid.UUID
	env.documents.listFn = func(_ context.Context, userID uuid.UUID) ([]*domain.Document, error) {
		gotUser = userID
		return []*domain.Document{testDocument(userID, "A"), testDocument(userID, "B")}, nil
	}

	rr := env.do(http.MethodGet, "/api/documents", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotUser != env.userID {
		t.Errorf("listed documents of %s, want %s", gotUser, env.userID)
	}

	var docs []domain.Document
	decodeBody(t, rr, &docs)
	if len(docs) != 2 || docs[0].Title != "A" {
		t.Errorf("unexpected documents: %+v", docs)
	}
}

func TestListDocuments_Empty(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/api/documents", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Body.String(); got != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", got)
	}
}

func TestListDocuments_RepoError(t *testing.T) {
	env := newTestEnv(t)
	env.documents.listFn = func(context.Context, uuid.UUID) ([]*domain.Document, error) {
		return nil, errors.New("boom")
	}

	expectError(t, env.do(http.MethodGet, "/api/documents", ""), http.StatusInternalServerError, "Failed to fetch documents")
}

func TestCreateDocument(t *testing.T) {
	env := newTestEnv(t)
	pub := &recordingPublisher{}
	env.srv.deps.Publisher = pub

	var created *domain.Document
	env.documents.createFn = func(_ context.Context, d *domain.Document) (*domain.Document, error) {
		created = d
		return d, nil
	}

	rr := env.do(http.MethodPost, "/api/documents", `{"title":"Attention Is All You Need","authors":["Vaswani, A."],"year":2017}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if created.UserID != env.userID || created.Title != "Attention Is All You Need" || *created.Year != 2017 {
		t.Errorf("unexpected created document: %+v", created)
	}
	if got := pub.types(); len(got) != 1 || got[0] != domain.EventTypeDocumentCreated {
		t.Errorf("unexpected events %v", got)
	}
}

func TestCreateDocument_MissingTitle(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(http.MethodPost, "/api/documents", `{"authors":["x"]}`), http.StatusBadRequest, "title is required")
}

func TestGetDocument(t *testing.T) {
	env := newTestEnv(t)
	doc := testDocument(env.userID, "Stored")
	env.documents.getFn = func(_ context.Context, userID, id uuid.UUID) (*domain.Document, error) {
		if userID != env.userID || id != doc.ID {
			return nil, domain.NewNotFoundError("document", id.String())
		}
		return doc, nil
	}

	rr := env.do(http.MethodGet, "/api/documents/"+doc.ID.String(), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	expectError(t, env.do(http.MethodGet, "/api/documents/"+uuid.NewString(), ""), http.StatusNotFound, "Document not found")
	expectError(t, env.do(http.MethodGet, "/api/documents/not-a-uuid", ""), http.StatusBadRequest, "Invalid document ID")
}

func TestUpdateDocument(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	var got domain.DocumentUpdate
	env.documents.updateFn = func(_ context.Context, _, _ uuid.UUID, upd domain.DocumentUpdate) (*domain.Document, error) {
		got = upd
		d := testDocument(env.userID, *upd.Title)
		d.ID = id
		return d, nil
	}

	rr := env.do(http.MethodPut, "/api/documents/"+id.String(), `{"title":"Renamed","journal":"Nature"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Title == nil || *got.Title != "Renamed" || got.Journal == nil || *got.Journal != "Nature" {
		t.Errorf("unexpected update: %+v", got)
	}
	if got.Authors != nil || got.Year != nil {
		t.Error("absent fields must stay unset")
	}

	expectError(t, env.do(http.MethodPut, "/api/documents/"+id.String(), `{"title":""}`), http.StatusBadRequest, "title must be at least 1 characters")
}

func TestDeleteDocument_RemovesFile(t *testing.T) {
	env := newTestEnv(t)
	pub := &recordingPublisher{}
	env.srv.deps.Publisher = pub

	stored, err := env.files.SavePDF("paper.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("SavePDF: %v", err)
	}
	doc := domain.NewDocument(env.userID, domain.Record{Title: "paper.pdf"}, &stored)
	env.documents.getFn = func(context.Context, uuid.UUID, uuid.UUID) (*domain.Document, error) { return doc, nil }

	deleted := false
	env.documents.deleteFn = func(_ context.Context, _, id uuid.UUID) error {
		deleted = id == doc.ID
		return nil
	}

	rr := env.do(http.MethodDelete, "/api/documents/"+doc.ID.String(), "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if !deleted {
		t.Error("expected repository delete")
	}
	if _, err := env.files.Read(stored); err == nil {
		t.Error("expected stored PDF to be removed")
	}
	if got := pub.types(); len(got) != 1 || got[0] != domain.EventTypeDocumentDeleted {
		t.Errorf("unexpected events %v", got)
	}
}

func TestDeleteDocument_NotFound(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(http.MethodDelete, "/api/documents/"+uuid.NewString(), ""), http.StatusNotFound, "Document not found")
}

func TestUploadDocument_Enriched(t *testing.T) {
	env := newTestEnv(t)
	pub := &recordingPublisher{}
	env.srv.deps.Publisher = pub

	env.enricher.enrichFn = func(_ context.Context, data []byte) (*metadata.Result, error) {
		if string(data) != "%PDF-1.7 content" {
			return nil, fmt.Errorf("unexpected bytes %q", data)
		}
		return &metadata.Result{
			Record: &domain.Record{
				Title:   "Deep Residual Learning",
				Authors: []string{"He, K."},
				DOI:     domain.StringPtr("10.1109/cvpr.2016.90"),
			},
			Outcome:    metadata.OutcomeRegistry,
			Identifier: "10.1109/cvpr.2016.90",
		}, nil
	}

	var created *domain.Document
	env.documents.createFn = func(_ context.Context, d *domain.Document) (*domain.Document, error) {
		created = d
		return d, nil
	}

	rr := env.upload(t, "/api/documents/upload", "resnet.PDF", []byte("%PDF-1.7 content"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if created.Title != "Deep Residual Learning" || created.DOI == nil {
		t.Errorf("expected enriched record, got %+v", created.Record)
	}
	if created.PDFURL == nil {
		t.Fatal("expected pdf_url to be set")
	}
	data, err := env.files.Read(*created.PDFURL)
	if err != nil || string(data) != "%PDF-1.7 content" {
		t.Errorf("stored PDF mismatch: %q, %v", data, err)
	}

	logs := env.logs.String()
	for _, want := range []string{
		`"document_id":"` + created.ID.String() + `"`,
		`"user_id":"` + env.userID.String() + `"`,
		`"outcome":"registry"`,
		"document uploaded",
	} {
		if !strings.Contains(logs, want) {
			t.Errorf("expected upload log to contain %s, got %s", want, logs)
		}
	}
	if got := pub.types(); len(got) != 1 || got[0] != domain.EventTypeDocumentCreated {
		t.Errorf("unexpected events %v", got)
	}
}

func TestUploadDocument_EnrichmentFailureFallsBackToFileName(t *testing.T) {
	env := newTestEnv(t)

	var created *domain.Document
	env.documents.createFn = func(_ context.Context, d *domain.Document) (*domain.Document, error) {
		created = d
		return d, nil
	}

	rr := env.upload(t, "/api/documents/upload", "scan.pdf", []byte("not really a pdf"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if created.Title != "scan.pdf" || created.Authors != nil || created.DOI != nil {
		t.Errorf("expected title-only record, got %+v", created.Record)
	}
}

func TestUploadDocument_Rejections(t *testing.T) {
	env := newTestEnv(t)

	expectError(t, env.upload(t, "/api/documents/upload", "notes.txt", []byte("text")),
		http.StatusBadRequest, "Only PDF files are allowed")
	expectError(t, env.upload(t, "/api/documents/upload", "", nil),
		http.StatusBadRequest, "No file provided")
}

func TestUploadDocument_CreateFailureRemovesFile(t *testing.T) {
	env := newTestEnv(t)

	var stored string
	env.enricher.enrichFn = func(context.Context, []byte) (*metadata.Result, error) {
		return &metadata.Result{Record: domain.TitleOnlyRecord("x"), Outcome: metadata.OutcomeCompletion}, nil
	}
	env.documents.createFn = func(_ context.Context, d *domain.Document) (*domain.Document, error) {
		stored = *d.PDFURL
		return nil, errors.New("insert failed")
	}

	expectError(t, env.upload(t, "/api/documents/upload", "a.pdf", []byte("%PDF")),
		http.StatusInternalServerError, "Failed to create document")
	if _, err := env.files.Read(stored); err == nil {
		t.Error("expected orphaned PDF to be removed")
	}
}

func TestImportDocument(t *testing.T) {
	env := newTestEnv(t)

	env.fetcher.fetchFn = func(_ context.Context, rawURL string) (*pdf.Fetched, error) {
		return &pdf.Fetched{Content: []byte("%PDF remote"), FileName: "remote.pdf"}, nil
	}
	var created *domain.Document
	env.documents.createFn = func(_ context.Context, d *domain.Document) (*domain.Document, error) {
		created = d
		return d, nil
	}

	rr := env.do(http.MethodPost, "/api/documents/import", `{"url":"https://arxiv.org/pdf/1706.03762"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if created.Title != "remote.pdf" {
		t.Errorf("expected file name title, got %q", created.Title)
	}
	if created.URL == nil || *created.URL != "https://arxiv.org/pdf/1706.03762" {
		t.Errorf("expected source URL to be recorded, got %v", created.URL)
	}
}

func TestImportDocument_FetchErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{pdf.ErrPrivateNetwork, http.StatusBadRequest, "URL is not allowed"},
		{pdf.ErrNotPDF, http.StatusBadRequest, "URL does not point to a PDF"},
		{pdf.ErrTooLarge, http.StatusRequestEntityTooLarge, "PDF is too large"},
		{fmt.Errorf("%w: status 500", pdf.ErrFetchFailed), http.StatusBadGateway, "Failed to fetch PDF"},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			env := newTestEnv(t)
			env.fetcher.fetchFn = func(context.Context, string) (*pdf.Fetched, error) { return nil, tt.err }
			expectError(t, env.do(http.MethodPost, "/api/documents/import", `{"url":"https://example.com/a.pdf"}`), tt.status, tt.msg)
		})
	}
}

func TestImportDocument_InvalidURL(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(http.MethodPost, "/api/documents/import", `{"url":"not a url"}`), http.StatusBadRequest, "url is invalid")
}

func TestEnrichDocument_FillsOnlyEmptyFields(t *testing.T) {
	env := newTestEnv(t)
	pub := &recordingPublisher{}
	env.srv.deps.Publisher = pub

	stored, err := env.files.SavePDF("paper.pdf", []byte("%PDF stored"))
	if err != nil {
		t.Fatalf("SavePDF: %v", err)
	}
	doc := domain.NewDocument(env.userID, domain.Record{Title: "My Title", Journal: domain.StringPtr("Kept")}, &stored)
	env.documents.getFn = func(context.Context, uuid.UUID, uuid.UUID) (*domain.Document, error) { return doc, nil }

	env.enricher.enrichFn = func(context.Context, []byte) (*metadata.Result, error) {
		return &metadata.Result{
			Record: &domain.Record{
				Title:   "Registry Title",
				Authors: []string{"Doe, J."},
				Journal: domain.StringPtr("Registry Journal"),
				Year:    domain.IntPtr(2020),
				DOI:     domain.StringPtr("10.1000/xyz"),
			},
			Outcome:    metadata.OutcomeRegistryGappy,
			Identifier: "10.1000/xyz",
		}, nil
	}

	var got domain.DocumentUpdate
	env.documents.updateFn = func(_ context.Context, _, _ uuid.UUID, upd domain.DocumentUpdate) (*domain.Document, error) {
		got = upd
		return doc, nil
	}

	rr := env.do(http.MethodPost, "/api/documents/"+doc.ID.String()+"/enrich", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if *got.Title != "My Title" || *got.Journal != "Kept" {
		t.Errorf("populated fields must not change: title=%q journal=%q", *got.Title, *got.Journal)
	}
	if len(got.Authors) != 1 || got.Year == nil || *got.Year != 2020 || got.DOI == nil {
		t.Errorf("expected gaps to be filled: %+v", got)
	}

	var resp enrichDocumentResponse
	decodeBody(t, rr, &resp)
	if resp.Enrichment.Outcome != "registry_gappy" || resp.Enrichment.DOI != "10.1000/xyz" {
		t.Errorf("unexpected enrichment summary: %+v", resp.Enrichment)
	}
	want := map[string]bool{"authors": true, "year": true, "doi": true}
	if len(resp.Enrichment.Filled) != len(want) {
		t.Fatalf("unexpected filled fields %v", resp.Enrichment.Filled)
	}
	for _, f := range resp.Enrichment.Filled {
		if !want[f] {
			t.Errorf("unexpected filled field %q", f)
		}
	}
	if got := pub.types(); len(got) != 1 || got[0] != domain.EventTypeDocumentEnriched {
		t.Errorf("unexpected events %v", got)
	}
}

func TestEnrichDocument_Errors(t *testing.T) {
	env := newTestEnv(t)

	noPDF := testDocument(env.userID, "manual entry")
	env.documents.getFn = func(context.Context, uuid.UUID, uuid.UUID) (*domain.Document, error) { return noPDF, nil }
	expectError(t, env.do(http.MethodPost, "/api/documents/"+noPDF.ID.String()+"/enrich", ""),
		http.StatusBadRequest, "Document has no PDF")

	missing := "gone.pdf"
	withPDF := domain.NewDocument(env.userID, domain.Record{Title: "x"}, &missing)
	env.documents.getFn = func(context.Context, uuid.UUID, uuid.UUID) (*domain.Document, error) { return withPDF, nil }
	expectError(t, env.do(http.MethodPost, "/api/documents/"+withPDF.ID.String()+"/enrich", ""),
		http.StatusUnprocessableEntity, "Stored PDF is unavailable")

	stored, err := env.files.SavePDF("bad.pdf", []byte("garbage"))
	if err != nil {
		t.Fatalf("SavePDF: %v", err)
	}
	withPDF.PDFURL = &stored
	env.enricher.enrichFn = func(context.Context, []byte) (*metadata.Result, error) {
		return nil, fmt.Errorf("%w: no text layer", domain.ErrExtraction)
	}
	expectError(t, env.do(http.MethodPost, "/api/documents/"+withPDF.ID.String()+"/enrich", ""),
		http.StatusUnprocessableEntity, "PDF could not be parsed")

	env.enricher.enrichFn = func(context.Context, []byte) (*metadata.Result, error) {
		return nil, fmt.Errorf("%w: 503", domain.ErrCompletion)
	}
	expectError(t, env.do(http.MethodPost, "/api/documents/"+withPDF.ID.String()+"/enrich", ""),
		http.StatusBadGateway, "Metadata enrichment failed")
}
