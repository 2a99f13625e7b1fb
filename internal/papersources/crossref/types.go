package crossref

// workResponse is the envelope returned by GET /works/{doi}.
type workResponse struct {
	Status  string `json:"status"`
	Message *Work  `json:"message"`
}

// Work is the subset of a CrossRef work record the service maps.
type Work struct {
	Title          []string   `json:"title"`
	Author         []Author   `json:"author"`
	Published      *DateParts `json:"published"`
	ContainerTitle []string   `json:"container-title"`
	DOI            *string    `json:"DOI"`
	Abstract       *string    `json:"abstract"`
	Volume         *string    `json:"volume"`
	Issue          *string    `json:"issue"`
	Page           *string    `json:"page"`
	Publisher      *string    `json:"publisher"`
	Type           *string    `json:"type"`
	URL            *string    `json:"URL"`
}

// Author is a contributor name split into given and family parts.
type Author struct {
	Given  *string `json:"given"`
	Family *string `json:"family"`
}

// DateParts holds a partial date as [[year, month, day]].
// CrossRef occasionally sends [[null]] for unknown dates.
type DateParts struct {
	DateParts [][]*int `json:"date-parts"`
}
