package domain

import (
	"errors"
	"fmt"
)

// Sentinels for the metadata enrichment error taxonomy. Each typed error
// below matches its sentinel through errors.Is and unwraps to its cause.
var (
	// ErrExtraction indicates the input bytes could not be read as a document.
	ErrExtraction = errors.New("text extraction failed")

	// ErrLookup indicates the bibliographic registry could not produce a record.
	ErrLookup = errors.New("registry lookup failed")

	// ErrConfiguration indicates a required credential or setting is missing.
	ErrConfiguration = errors.New("configuration error")

	// ErrCompletion indicates the completion request itself failed.
	ErrCompletion = errors.New("completion request failed")

	// ErrParse indicates the completion reply did not match the record shape.
	ErrParse = errors.New("completion reply parse failed")
)

// ExtractionError is returned when raw bytes are not a parseable document.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract text: %v", e.Cause)
}

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }
func (e *ExtractionError) Unwrap() error        { return e.Cause }

// LookupError is returned when the registry is unreachable, answers with a
// non-success status, or returns an unexpected body.
type LookupError struct {
	Identifier string
	StatusCode int
	Cause      error
}

func (e *LookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("lookup %s: registry returned status %d", e.Identifier, e.StatusCode)
	}
	return fmt.Sprintf("lookup %s: %v", e.Identifier, e.Cause)
}

func (e *LookupError) Is(target error) bool { return target == ErrLookup }
func (e *LookupError) Unwrap() error        { return e.Cause }

// ConfigurationError is returned when a required setting is absent.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Setting)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// CompletionError is returned when the completion request fails.
type CompletionError struct {
	Cause error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion request: %v", e.Cause)
}

func (e *CompletionError) Is(target error) bool { return target == ErrCompletion }
func (e *CompletionError) Unwrap() error        { return e.Cause }

// ParseError is returned when the completion reply is not a valid record.
type ParseError struct {
	Content string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse completion reply: %v", e.Cause)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }
func (e *ParseError) Unwrap() error        { return e.Cause }
