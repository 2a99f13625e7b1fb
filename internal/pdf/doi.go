package pdf

import "regexp"

// doiPattern matches a DOI: the 10. prefix, a 4 to 9 digit registrant code,
// a slash, and a suffix drawn from the characters publishers use in practice.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:A-Za-z0-9]+`)

// FindDOI returns the first DOI in text in scan order, or "" when there is none.
// Later matches are ignored even when the first one turns out to be unusable.
func FindDOI(text string) string {
	return doiPattern.FindString(text)
}
