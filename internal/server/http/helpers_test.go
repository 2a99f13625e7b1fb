package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholarvault/scholarvault-service/internal/auth"
	"github.com/scholarvault/scholarvault-service/internal/database"
	"github.com/scholarvault/scholarvault-service/internal/domain"
	"github.com/scholarvault/scholarvault-service/internal/metadata"
	"github.com/scholarvault/scholarvault-service/internal/pdf"
	"github.com/scholarvault/scholarvault-service/internal/storage"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

type mockUserRepo struct {
	createFn          func(ctx context.Context, user *domain.User) (*domain.User, error)
	getByIDFn         func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	getByEmailFn      func(ctx context.Context, email string) (*domain.User, error)
	updateUsernameFn  func(ctx context.Context, id uuid.UUID, username *string) (*domain.User, error)
	setProfileImageFn func(ctx context.Context, id uuid.UUID, url *string) (*domain.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return user, nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.NewNotFoundError("user", id.String())
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return nil, domain.NewNotFoundError("user", email)
}

func (m *mockUserRepo) UpdateUsername(ctx context.Context, id uuid.UUID, username *string) (*domain.User, error) {
	if m.updateUsernameFn != nil {
		return m.updateUsernameFn(ctx, id, username)
	}
	return nil, domain.NewNotFoundError("user", id.String())
}

func (m *mockUserRepo) SetProfileImage(ctx context.Context, id uuid.UUID, url *string) (*domain.User, error) {
	if m.setProfileImageFn != nil {
		return m.setProfileImageFn(ctx, id, url)
	}
	return nil, domain.NewNotFoundError("user", id.String())
}

type mockDocumentRepo struct {
	createFn           func(ctx context.Context, doc *domain.Document) (*domain.Document, error)
	getFn              func(ctx context.Context, userID, id uuid.UUID) (*domain.Document, error)
	listFn             func(ctx context.Context, userID uuid.UUID) ([]*domain.Document, error)
	listByCollectionFn func(ctx context.Context, userID, collectionID uuid.UUID) ([]*domain.Document, error)
	updateFn           func(ctx context.Context, userID, id uuid.UUID, upd domain.DocumentUpdate) (*domain.Document, error)
	deleteFn           func(ctx context.Context, userID, id uuid.UUID) error
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc *domain.Document) (*domain.Document, error) {
	if m.createFn != nil {
		return m.createFn(ctx, doc)
	}
	return doc, nil
}

func (m *mockDocumentRepo) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Document, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return nil, domain.NewNotFoundError("document", id.String())
}

func (m *mockDocumentRepo) List(ctx context.Context, userID uuid.UUID) ([]*domain.Document, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []*domain.Document{}, nil
}

func (m *mockDocumentRepo) ListByCollection(ctx context.Context, userID, collectionID uuid.UUID) ([]*domain.Document, error) {
	if m.listByCollectionFn != nil {
		return m.listByCollectionFn(ctx, userID, collectionID)
	}
	return []*domain.Document{}, nil
}

func (m *mockDocumentRepo) Update(ctx context.Context, userID, id uuid.UUID, upd domain.DocumentUpdate) (*domain.Document, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, upd)
	}
	return nil, domain.NewNotFoundError("document", id.String())
}

func (m *mockDocumentRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

type mockCollectionRepo struct {
	createFn         func(ctx context.Context, c *domain.Collection) (*domain.Collection, error)
	getFn            func(ctx context.Context, userID, id uuid.UUID) (*domain.Collection, error)
	listFn           func(ctx context.Context, userID uuid.UUID) ([]*domain.Collection, error)
	updateFn         func(ctx context.Context, userID, id uuid.UUID, upd domain.CollectionUpdate) (*domain.Collection, error)
	deleteFn         func(ctx context.Context, userID, id uuid.UUID) error
	addDocumentFn    func(ctx context.Context, collectionID, documentID uuid.UUID) error
	removeDocumentFn func(ctx context.Context, collectionID, documentID uuid.UUID) error
}

func (m *mockCollectionRepo) Create(ctx context.Context, c *domain.Collection) (*domain.Collection, error) {
	if m.createFn != nil {
		return m.createFn(ctx, c)
	}
	return c, nil
}

func (m *mockCollectionRepo) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Collection, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return nil, domain.NewNotFoundError("collection", id.String())
}

func (m *mockCollectionRepo) List(ctx context.Context, userID uuid.UUID) ([]*domain.Collection, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []*domain.Collection{}, nil
}

func (m *mockCollectionRepo) Update(ctx context.Context, userID, id uuid.UUID, upd domain.CollectionUpdate) (*domain.Collection, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, upd)
	}
	return nil, domain.NewNotFoundError("collection", id.String())
}

func (m *mockCollectionRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

func (m *mockCollectionRepo) AddDocument(ctx context.Context, collectionID, documentID uuid.UUID) error {
	if m.addDocumentFn != nil {
		return m.addDocumentFn(ctx, collectionID, documentID)
	}
	return nil
}

func (m *mockCollectionRepo) RemoveDocument(ctx context.Context, collectionID, documentID uuid.UUID) error {
	if m.removeDocumentFn != nil {
		return m.removeDocumentFn(ctx, collectionID, documentID)
	}
	return nil
}

type mockEnricher struct {
	enrichFn func(ctx context.Context, data []byte) (*metadata.Result, error)
}

func (m *mockEnricher) Enrich(ctx context.Context, data []byte) (*metadata.Result, error) {
	if m.enrichFn != nil {
		return m.enrichFn(ctx, data)
	}
	return nil, domain.ErrExtraction
}

type mockFetcher struct {
	fetchFn func(ctx context.Context, rawURL string) (*pdf.Fetched, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) (*pdf.Fetched, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, rawURL)
	}
	return nil, pdf.ErrFetchFailed
}

type mockHealth struct {
	status database.HealthStatus
}

func (m *mockHealth) Health(context.Context) database.HealthStatus {
	return m.status
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const testSecret = "test-secret-with-enough-entropy"

// testEnv bundles a server with its mocks and a signed-in user.
type testEnv struct {
	srv         *Server
	users       *mockUserRepo
	documents   *mockDocumentRepo
	collections *mockCollectionRepo
	enricher    *mockEnricher
	fetcher     *mockFetcher
	files       *storage.FileStore
	tokens      *auth.TokenIssuer
	userID      uuid.UUID
	token       string
	logs        bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	files, err := storage.NewFileStore(filepath.Join(t.TempDir(), "data"), "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	env := &testEnv{
		users:       &mockUserRepo{},
		documents:   &mockDocumentRepo{},
		collections: &mockCollectionRepo{},
		enricher:    &mockEnricher{},
		fetcher:     &mockFetcher{},
		files:       files,
		tokens:      tokens,
		userID:      uuid.New(),
	}

	env.token, err = tokens.Issue(env.userID, "reader@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	env.srv = NewServer(Config{MaxBodyBytes: 10 << 20}, Deps{
		Users:       env.users,
		Documents:   env.documents,
		Collections: env.collections,
		Enricher:    env.enricher,
		Fetcher:     env.fetcher,
		Files:       files,
		Tokens:      tokens,
		Passwords:   auth.NewPasswordHasher(4),
	}, zerolog.New(&env.logs))
	return env
}

// do sends an authenticated request with an optional JSON body.
func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	return serveHTTP(e.srv, req)
}

// upload sends an authenticated multipart request with one "file" part.
func (e *testEnv) upload(t *testing.T, path, fileName string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := multipartRequest(t, path, fileName, data)
	req.Header.Set("Authorization", "Bearer "+e.token)
	return serveHTTP(e.srv, req)
}

func multipartRequest(t *testing.T, path, fileName string, data []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	} else if err := mw.WriteField("note", "no file here"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// serveHTTP dispatches a request through the server's router and returns the recorder.
func serveHTTP(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, r)
	return rr
}

// decodeBody decodes a JSON response body into the given target.
func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

// expectError checks the status code and error message of a response.
func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var body map[string]string
	decodeBody(t, rr, &body)
	if body["error"] != message {
		t.Errorf("expected error %q, got %q", message, body["error"])
	}
}

func testDocument(userID uuid.UUID, title string) *domain.Document {
	return domain.NewDocument(userID, domain.Record{Title: title}, nil)
}
