// Package metadata reconciles bibliographic metadata for uploaded PDFs from
// a DOI registry and a completion-based extractor.
package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholarvault/scholarvault-service/internal/domain"
	"github.com/scholarvault/scholarvault-service/internal/observability"
	"github.com/scholarvault/scholarvault-service/internal/pdf"
)

// TextExtractor converts raw document bytes into a bounded excerpt.
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// RegistryClient looks a DOI up in a bibliographic registry.
type RegistryClient interface {
	LookupDOI(ctx context.Context, doi string) (*domain.Record, error)
}

// CompletionExtractor asks a completion service to read a record out of an excerpt.
type CompletionExtractor interface {
	ExtractRecord(ctx context.Context, excerpt string) (*domain.Record, error)
}

// Outcome names the path that produced a record.
type Outcome string

const (
	// OutcomeRegistry means the registry record had no gaps.
	OutcomeRegistry Outcome = "registry"
	// OutcomeRegistryGapFilled means registry gaps were filled from the completion result.
	OutcomeRegistryGapFilled Outcome = "registry_gap_filled"
	// OutcomeRegistryGappy means the completion call failed and the registry record kept its gaps.
	OutcomeRegistryGappy Outcome = "registry_gappy"
	// OutcomeCompletion means the record came from the completion extractor alone.
	OutcomeCompletion Outcome = "completion"
	// OutcomeFailed means no record could be produced.
	OutcomeFailed Outcome = "failed"
)

// Result is a reconciled record and how it was produced.
type Result struct {
	Record *domain.Record
	// Outcome is the path that produced Record.
	Outcome Outcome
	// Identifier is the DOI found in the excerpt, if any.
	Identifier string
	// Gaps lists the registry fields that were empty before gap-fill.
	Gaps []string
}

// Engine runs the enrichment pipeline. It holds no per-run state and is safe
// for concurrent use.
type Engine struct {
	extractor  TextExtractor
	registry   RegistryClient
	completion CompletionExtractor
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records run outcomes and gap counts.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine from its collaborators.
func NewEngine(extractor TextExtractor, registry RegistryClient, completion CompletionExtractor, opts ...Option) *Engine {
	e := &Engine{
		extractor:  extractor,
		registry:   registry,
		completion: completion,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich produces a record for the PDF in data.
//
// Extraction failures are returned as *domain.ExtractionError before any
// network call. Registry failures are never returned; they route the run to
// the completion extractor, whose error is returned only when no registry
// record exists.
func (e *Engine) Enrich(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()

	res, err := e.enrich(ctx, data)

	if e.metrics != nil {
		outcome := OutcomeFailed
		if err == nil {
			outcome = res.Outcome
		}
		e.metrics.RecordEnrichment(string(outcome), time.Since(start).Seconds())
	}
	return res, err
}

func (e *Engine) enrich(ctx context.Context, data []byte) (*Result, error) {
	excerpt, err := e.extractor.Extract(data)
	if err != nil {
		if !errors.Is(err, domain.ErrExtraction) {
			err = &domain.ExtractionError{Cause: err}
		}
		return nil, err
	}
	return e.Reconcile(ctx, excerpt)
}

// Reconcile runs the identifier, registry and completion steps on an
// already extracted excerpt.
func (e *Engine) Reconcile(ctx context.Context, excerpt string) (*Result, error) {
	log := observability.LoggerFromContext(ctx, e.logger)

	doi := pdf.FindDOI(excerpt)
	if doi == "" {
		log.Debug().Msg("no DOI in excerpt, using completion extractor")
		return e.completeOnly(ctx, excerpt, "")
	}

	log = log.With().Str("doi", doi).Logger()

	rec, err := e.registry.LookupDOI(ctx, doi)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn().Err(err).Msg("registry lookup failed, falling back to completion extractor")
		return e.completeOnly(ctx, excerpt, doi)
	}

	gaps := findGaps(rec)
	res := &Result{Record: rec, Outcome: OutcomeRegistry, Identifier: doi, Gaps: gapNames(gaps)}
	if len(gaps) == 0 {
		log.Debug().Msg("registry record complete")
		return res, nil
	}

	if e.metrics != nil {
		e.metrics.RecordEnrichmentGaps(res.Gaps)
	}
	log.Debug().Strs("gaps", res.Gaps).Msg("registry record has gaps, asking completion extractor")

	filled, err := e.completion.ExtractRecord(ctx, excerpt)
	if err != nil {
		log.Warn().Err(err).Strs("gaps", res.Gaps).Msg("completion extraction failed, keeping registry record with gaps")
		res.Outcome = OutcomeRegistryGappy
		return res, nil
	}

	fillGaps(rec, filled, gaps)
	res.Outcome = OutcomeRegistryGapFilled
	return res, nil
}

func (e *Engine) completeOnly(ctx context.Context, excerpt, doi string) (*Result, error) {
	rec, err := e.completion.ExtractRecord(ctx, excerpt)
	if err != nil {
		return nil, err
	}
	return &Result{Record: rec, Outcome: OutcomeCompletion, Identifier: doi}, nil
}
