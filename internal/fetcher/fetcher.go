// Package fetcher implements the three acquisition waterfalls: metadata,
// content, and references. Each fetcher tries its sources in confidence
// order and stops at the first success; the losing attempts are recorded so
// task status can explain what was tried.
package fetcher

import (
	"context"

	"github.com/litgraph/backend/internal/domain"
)

// Request carries everything the waterfalls can draw on for one task.
type Request struct {
	Submission domain.Submission
	Mapping    *domain.Mapping
	// PDF holds the document bytes once the content fetcher has them;
	// the metadata and references fetchers use them for GROBID.
	PDF []byte
}

// DOI returns the strongest DOI known for the request.
func (r *Request) DOI() string {
	if r.Submission.DOI != "" {
		return domain.NormalizeDOI(r.Submission.DOI)
	}
	if r.Mapping != nil && r.Mapping.DOI != "" {
		return domain.NormalizeDOI(r.Mapping.DOI)
	}
	return ""
}

func (r *Request) ArxivID() string {
	if r.Submission.ArxivID != "" {
		return r.Submission.ArxivID
	}
	if r.Mapping != nil {
		return r.Mapping.ArxivID
	}
	return ""
}

func (r *Request) PageURL() string {
	if r.Mapping != nil && r.Mapping.SourcePageURL != "" {
		return r.Mapping.SourcePageURL
	}
	return r.Submission.URL
}

func (r *Request) PDFURL() string {
	if r.Submission.PDFURL != "" {
		return r.Submission.PDFURL
	}
	if r.Mapping != nil {
		return r.Mapping.PDFURL
	}
	return ""
}

// Source clients, satisfied by the pkg/ wrappers. Narrow interfaces keep the
// waterfalls testable without network fixtures.

type CrossrefClient interface {
	ByDOI(ctx context.Context, doi string) (*domain.ProviderRecord, error)
	Search(ctx context.Context, title string, year int) ([]*domain.ProviderRecord, error)
	ReferencesOf(ctx context.Context, doi string) ([]domain.Reference, error)
}

type ArxivClient interface {
	ByID(ctx context.Context, arxivID string) (*domain.ProviderRecord, error)
}

type SemanticScholarClient interface {
	ByDOI(ctx context.Context, doi string) (*domain.ProviderRecord, error)
	ByArxiv(ctx context.Context, arxivID string) (*domain.ProviderRecord, error)
	ByURL(ctx context.Context, pageURL string) (*domain.ProviderRecord, error)
	Search(ctx context.Context, query string, limit int) ([]*domain.ProviderRecord, error)
	ReferencesOf(ctx context.Context, id string) ([]domain.Reference, error)
}

type GrobidClient interface {
	ParseHeader(ctx context.Context, pdf []byte) (*domain.ProviderRecord, error)
	ParseReferences(ctx context.Context, pdf []byte) ([]domain.Reference, error)
}

type PageScraper interface {
	ScrapePage(ctx context.Context, pageURL string) (*domain.Mapping, error)
}

type OpenAccessClient interface {
	BestPDFURL(ctx context.Context, doi string) (string, error)
}
