package domain

import (
	"strings"
	"time"
)

// AliasType classifies an external handle. (AliasType, value) is globally
// unique across the graph.
type AliasType string

const (
	AliasDOI         AliasType = "doi"
	AliasArxiv       AliasType = "arxiv"
	AliasPMID        AliasType = "pmid"
	AliasURL         AliasType = "url"
	AliasPDFURL      AliasType = "pdf_url"
	AliasTitleFP     AliasType = "title_fp"
	AliasFingerprint AliasType = "fingerprint" // md5 of the PDF bytes
)

type Alias struct {
	Type      AliasType `json:"alias_type"`
	Value     string    `json:"alias_value"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeDOI lowercases a DOI and strips resolver URL prefixes, so
// "https://doi.org/10.1/X" and "10.1/x" index the same alias.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(strings.ToLower(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return doi
}
