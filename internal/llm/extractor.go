package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarvault/scholarvault-service/internal/domain"
	"github.com/scholarvault/scholarvault-service/internal/observability"
)

const upstreamName = "openai"

// Completer sends a prompt to a completion service.
type Completer interface {
	Configured() bool
	Model() string
	Complete(ctx context.Context, prompt string) (*Completion, error)
}

// RecordExtractor reads a bibliographic record out of an excerpt by asking
// a completion service for a JSON object.
type RecordExtractor struct {
	client  Completer
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewRecordExtractor creates a RecordExtractor. metrics may be nil.
func NewRecordExtractor(client Completer, metrics *observability.Metrics, logger zerolog.Logger) *RecordExtractor {
	return &RecordExtractor{
		client:  client,
		metrics: metrics,
		logger:  logger.With().Str("component", "record_extractor").Logger(),
	}
}

// ExtractRecord returns the record described by the completion reply.
// The reply must be exactly one JSON object; surrounding prose or code fences
// are rejected with a *domain.ParseError.
func (x *RecordExtractor) ExtractRecord(ctx context.Context, excerpt string) (*domain.Record, error) {
	if x.client == nil || !x.client.Configured() {
		return nil, &domain.ConfigurationError{Setting: "OPENAI_API_KEY"}
	}

	logger := observability.WithUpstreamContext(observability.LoggerFromContext(ctx, x.logger), upstreamName, x.client.Model())

	start := time.Now()
	completion, err := x.client.Complete(ctx, BuildRecordPrompt(excerpt))
	x.recordRequest(err, time.Since(start))
	if err != nil {
		logger.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("completion request failed")
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, &domain.CompletionError{Cause: err}
	}

	if x.metrics != nil {
		x.metrics.RecordLLMTokens(completion.Model, completion.InputTokens, completion.OutputTokens)
	}

	rec, err := parseRecord(completion.Content)
	if err != nil {
		logger.Debug().Err(err).Int("content_len", len(completion.Content)).Msg("completion reply rejected")
		return nil, err
	}
	return rec, nil
}

func (x *RecordExtractor) recordRequest(err error, elapsed time.Duration) {
	if x.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			status = fmt.Sprintf("%d", apiErr.StatusCode)
		}
	}
	x.metrics.RecordUpstreamRequest(upstreamName, status, elapsed.Seconds())
}

func parseRecord(content string) (*domain.Record, error) {
	data := []byte(content)
	if err := validateRecordJSON(data); err != nil {
		return nil, &domain.ParseError{Content: content, Cause: err}
	}
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &domain.ParseError{Content: content, Cause: fmt.Errorf("decode record: %w", err)}
	}
	return &rec, nil
}
