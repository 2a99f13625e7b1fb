package metadata

import "github.com/scholarvault/scholarvault-service/internal/domain"

// recordField pairs a record field with its emptiness test and a copy
// operation. Title is missing when empty; every other field when nil.
type recordField struct {
	name    string
	missing func(r *domain.Record) bool
	take    func(dst, src *domain.Record)
}

// gapFields lists the fields checked for gaps after a registry hit. DOI is
// absent because it always comes from the identifier that produced the hit.
var gapFields = []recordField{
	{
		name:    "title",
		missing: func(r *domain.Record) bool { return r.Title == "" },
		take:    func(dst, src *domain.Record) { dst.Title = src.Title },
	},
	{
		name:    "authors",
		missing: func(r *domain.Record) bool { return r.Authors == nil },
		take:    func(dst, src *domain.Record) { dst.Authors = src.Authors },
	},
	{
		name:    "year",
		missing: func(r *domain.Record) bool { return r.Year == nil },
		take:    func(dst, src *domain.Record) { dst.Year = src.Year },
	},
	{
		name:    "journal",
		missing: func(r *domain.Record) bool { return r.Journal == nil },
		take:    func(dst, src *domain.Record) { dst.Journal = src.Journal },
	},
	{
		name:    "publication_type",
		missing: func(r *domain.Record) bool { return r.PublicationType == nil },
		take:    func(dst, src *domain.Record) { dst.PublicationType = src.PublicationType },
	},
	{
		name:    "volume",
		missing: func(r *domain.Record) bool { return r.Volume == nil },
		take:    func(dst, src *domain.Record) { dst.Volume = src.Volume },
	},
	{
		name:    "issue",
		missing: func(r *domain.Record) bool { return r.Issue == nil },
		take:    func(dst, src *domain.Record) { dst.Issue = src.Issue },
	},
	{
		name:    "pages",
		missing: func(r *domain.Record) bool { return r.Pages == nil },
		take:    func(dst, src *domain.Record) { dst.Pages = src.Pages },
	},
	{
		name:    "publisher",
		missing: func(r *domain.Record) bool { return r.Publisher == nil },
		take:    func(dst, src *domain.Record) { dst.Publisher = src.Publisher },
	},
	{
		name:    "url",
		missing: func(r *domain.Record) bool { return r.URL == nil },
		take:    func(dst, src *domain.Record) { dst.URL = src.URL },
	},
	{
		name:    "abstract_text",
		missing: func(r *domain.Record) bool { return r.AbstractText == nil },
		take:    func(dst, src *domain.Record) { dst.AbstractText = src.AbstractText },
	},
	{
		name:    "keywords",
		missing: func(r *domain.Record) bool { return r.Keywords == nil },
		take:    func(dst, src *domain.Record) { dst.Keywords = src.Keywords },
	},
}

// findGaps evaluates every checked field once.
func findGaps(r *domain.Record) []recordField {
	var gaps []recordField
	for _, f := range gapFields {
		if f.missing(r) {
			gaps = append(gaps, f)
		}
	}
	return gaps
}

// fillGaps copies src into dst for the given gap fields only.
func fillGaps(dst, src *domain.Record, gaps []recordField) {
	for _, f := range gaps {
		f.take(dst, src)
	}
}

func gapNames(gaps []recordField) []string {
	names := make([]string, len(gaps))
	for i, f := range gaps {
		names[i] = f.name
	}
	return names
}

// MissingFields returns the names of the checked fields r leaves empty.
func MissingFields(r *domain.Record) []string {
	return gapNames(findGaps(r))
}

// FillGaps copies from src every checked field that dst leaves empty and
// returns the names of the fields it considered. Populated fields of dst are
// never overwritten.
func FillGaps(dst, src *domain.Record) []string {
	gaps := findGaps(dst)
	fillGaps(dst, src, gaps)
	return gapNames(gaps)
}
