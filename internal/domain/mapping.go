package domain

// Mapping is the outcome of URL→identifier resolution: the identifier set a
// platform adapter extracted from one URL, with the adapter's confidence.
type Mapping struct {
	DOI           string  `json:"doi,omitempty"`
	ArxivID       string  `json:"arxiv_id,omitempty"`
	SourcePageURL string  `json:"source_page_url,omitempty"`
	PDFURL        string  `json:"pdf_url,omitempty"`
	Venue         string  `json:"venue,omitempty"`
	Title         string  `json:"title,omitempty"`
	Year          int     `json:"year,omitempty"`
	Confidence    float64 `json:"confidence"`
	Adapter       string  `json:"adapter,omitempty"`
	Strategy      string  `json:"strategy,omitempty"`
}

// HasIdentifiers reports whether the mapping carries a primary identifier;
// mappings with only page/PDF URLs are useful but not authoritative.
func (m *Mapping) HasIdentifiers() bool {
	return m != nil && (m.DOI != "" || m.ArxivID != "")
}

func (m *Mapping) HasUsefulInfo() bool {
	return m != nil && (m.SourcePageURL != "" || m.PDFURL != "" || m.Title != "")
}
