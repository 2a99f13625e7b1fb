// Package crossref resolves DOIs to bibliographic records through the
// CrossRef REST API.
package crossref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarvault/scholarvault-service/internal/domain"
	"github.com/scholarvault/scholarvault-service/internal/observability"
	"github.com/scholarvault/scholarvault-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default CrossRef API base URL.
	DefaultBaseURL = "https://api.crossref.org"

	// DefaultRateLimit keeps the client inside the CrossRef polite pool.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 8 * time.Second

	upstreamName = "crossref"
)

// Config holds configuration for the CrossRef client.
type Config struct {
	// BaseURL is the CrossRef API base URL.
	BaseURL string

	// Mailto is the contact address advertised in the User-Agent.
	Mailto string

	// Timeout bounds each attempt.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts on 429/5xx or network errors.
	MaxRetries int

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// UserAgent returns the identifying header value for cfg.
func (c Config) UserAgent() string {
	if c.Mailto == "" {
		return papersources.DefaultUserAgent
	}
	return papersources.DefaultUserAgent + " (mailto:" + c.Mailto + ")"
}

// Client looks DOIs up in CrossRef.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// New creates a new CrossRef client. metrics may be nil.
func New(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  cfg.UserAgent(),
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		metrics:    metrics,
		logger:     logger.With().Str("component", "crossref").Logger(),
	}
}

// LookupDOI fetches the work registered under doi.
//
// Every failure is a *domain.LookupError: transport errors, non-2xx
// statuses and bodies that do not decode to a work record. The returned
// record's DOI is always the identifier that was looked up.
func (c *Client) LookupDOI(ctx context.Context, doi string) (*domain.Record, error) {
	start := time.Now()
	rec, status, err := c.lookup(ctx, doi)
	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordUpstreamRequest(upstreamName, status, elapsed.Seconds())
	}

	logger := observability.WithUpstreamContext(observability.LoggerFromContext(ctx, c.logger), upstreamName, doi)
	if err != nil {
		logger.Debug().Err(err).Str("status", status).Dur("elapsed", elapsed).Msg("doi lookup failed")
	} else {
		logger.Debug().Dur("elapsed", elapsed).Msg("doi resolved")
	}
	return rec, err
}

func (c *Client) lookup(ctx context.Context, doi string) (*domain.Record, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/works/"+doi, nil)
	if err != nil {
		return nil, "error", &domain.LookupError{Identifier: doi, Cause: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, "error", &domain.LookupError{Identifier: doi, Cause: ctxErr}
		}
		return nil, "error", &domain.LookupError{Identifier: doi, Cause: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, status, &domain.LookupError{
			Identifier: doi,
			StatusCode: resp.StatusCode,
			Cause:      domain.NewExternalAPIError("CrossRef", resp.StatusCode, string(body), nil),
		}
	}

	var envelope workResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&envelope); err != nil {
		return nil, status, &domain.LookupError{Identifier: doi, Cause: fmt.Errorf("decoding response: %w", err)}
	}
	if envelope.Message == nil {
		return nil, status, &domain.LookupError{Identifier: doi, Cause: errors.New("decoding response: missing message")}
	}

	return workToRecord(envelope.Message, doi), status, nil
}

// workToRecord maps a CrossRef work onto a Record. Keywords are never set
// because CrossRef does not carry them.
func workToRecord(w *Work, doi string) *domain.Record {
	rec := &domain.Record{
		PublicationType: w.Type,
		Volume:          w.Volume,
		Issue:           w.Issue,
		Pages:           w.Page,
		Publisher:       w.Publisher,
		DOI:             domain.StringPtr(doi),
		URL:             w.URL,
		AbstractText:    w.Abstract,
	}

	if len(w.Title) > 0 {
		rec.Title = w.Title[0]
	}

	if w.Author != nil {
		rec.Authors = make([]string, 0, len(w.Author))
		for _, a := range w.Author {
			rec.Authors = append(rec.Authors, authorName(a))
		}
	}

	if w.Published != nil && len(w.Published.DateParts) > 0 && len(w.Published.DateParts[0]) > 0 {
		rec.Year = w.Published.DateParts[0][0]
	}

	if len(w.ContainerTitle) > 0 {
		rec.Journal = domain.StringPtr(w.ContainerTitle[0])
	}

	return rec
}

func authorName(a Author) string {
	var given, family string
	if a.Given != nil {
		given = *a.Given
	}
	if a.Family != nil {
		family = *a.Family
	}
	return strings.TrimSpace(given + " " + family)
}
