package domain

// ProviderRecord is the normalized shape every external source client maps
// its payload to: ordered authors, trimmed title, integer year, explicit
// identifiers.
type ProviderRecord struct {
	Provider      string      `json:"provider"`
	Metadata      Metadata    `json:"metadata"`
	Identifiers   Identifiers `json:"identifiers"`
	PDFURL        string      `json:"pdf_url,omitempty"`
	SourcePageURL string      `json:"source_page_url,omitempty"`
	References    []Reference `json:"references,omitempty"`
}
