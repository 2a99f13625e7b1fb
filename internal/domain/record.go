package domain

// Record is the canonical bibliographic record produced by every metadata
// extraction path. Title is never absent, only empty; every other field is
// absent when nil.
type Record struct {
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	Year            *int     `json:"year"`
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
}

// TitleOnlyRecord returns a record whose only populated field is the title.
func TitleOnlyRecord(title string) *Record {
	return &Record{Title: title}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
