package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/scholarvault/scholarvault-service/internal/domain"
)

// DefaultExcerptLength is the number of characters kept from extracted text.
const DefaultExcerptLength = 4000

// TextExtractor turns raw PDF bytes into a bounded plain-text excerpt.
type TextExtractor struct {
	maxChars int
}

// NewTextExtractor creates a TextExtractor that keeps at most maxChars
// characters. A non-positive maxChars selects DefaultExcerptLength.
func NewTextExtractor(maxChars int) *TextExtractor {
	if maxChars <= 0 {
		maxChars = DefaultExcerptLength
	}
	return &TextExtractor{maxChars: maxChars}
}

// Extract reads pages in order until the excerpt is full. Bytes that are
// not a readable PDF yield a *domain.ExtractionError.
func (e *TextExtractor) Extract(data []byte) (excerpt string, err error) {
	if len(data) == 0 {
		return "", &domain.ExtractionError{Cause: fmt.Errorf("empty document")}
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			excerpt = ""
			err = &domain.ExtractionError{Cause: fmt.Errorf("malformed pdf: %v", r)}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &domain.ExtractionError{Cause: err}
	}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")

		if utf8.RuneCountInString(text.String()) >= e.maxChars {
			break
		}
	}

	return Truncate(text.String(), e.maxChars), nil
}

// Truncate returns the first n characters of s without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
