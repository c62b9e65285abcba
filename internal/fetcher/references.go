package fetcher

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/match"
)

// ReferencesResult is the deduplicated bibliography plus provenance.
type ReferencesResult struct {
	References []domain.Reference
	Source     string
	Attempts   int
}

type ReferencesFetcher struct {
	crossref CrossrefClient
	s2       SemanticScholarClient
	grobid   GrobidClient
	log      *logrus.Entry
}

func NewReferencesFetcher(cr CrossrefClient, s2 SemanticScholarClient, gb GrobidClient, log *logrus.Logger) *ReferencesFetcher {
	return &ReferencesFetcher{
		crossref: cr,
		s2:       s2,
		grobid:   gb,
		log:      log.WithField("component", "fetcher.references"),
	}
}

// NeedsPDF reports whether only the GROBID path remains for this request,
// meaning the fetch has to wait for content acquisition.
func (f *ReferencesFetcher) NeedsPDF(req *Request) bool {
	return req.DOI() == "" && req.ArxivID() == ""
}

// Fetch walks the reference waterfall: structured provider APIs first, then
// GROBID extraction from the PDF.
func (f *ReferencesFetcher) Fetch(ctx context.Context, req *Request) (*ReferencesResult, error) {
	attempts := 0
	var lastErr error

	type step struct {
		name       string
		applicable bool
		run        func() ([]domain.Reference, error)
	}
	doi := req.DOI()
	steps := []step{
		{
			name:       "crossref",
			applicable: f.crossref != nil && doi != "",
			run:        func() ([]domain.Reference, error) { return f.crossref.ReferencesOf(ctx, doi) },
		},
		{
			name:       "semanticscholar",
			applicable: f.s2 != nil && (doi != "" || req.ArxivID() != ""),
			run: func() ([]domain.Reference, error) {
				id := "DOI:" + doi
				if doi == "" {
					id = "ARXIV:" + req.ArxivID()
				}
				return f.s2.ReferencesOf(ctx, id)
			},
		},
		{
			name:       "grobid",
			applicable: f.grobid != nil && len(req.PDF) > 0,
			run:        func() ([]domain.Reference, error) { return f.grobid.ParseReferences(ctx, req.PDF) },
		},
	}

	for _, s := range steps {
		if !s.applicable {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, domain.Ef(domain.KindCancelled, err, "references fetch interrupted")
		}
		attempts++
		refs, err := s.run()
		if err != nil {
			f.log.WithFields(logrus.Fields{"step": s.name}).WithError(err).Debug("references step failed")
			lastErr = err
			continue
		}
		refs = DedupReferences(refs)
		if len(refs) == 0 {
			continue
		}
		f.log.WithFields(logrus.Fields{"step": s.name, "count": len(refs)}).Info("references resolved")
		return &ReferencesResult{References: refs, Source: s.name, Attempts: attempts}, nil
	}

	if lastErr != nil {
		return nil, domain.Ef(domain.KindOf(lastErr), lastErr, "all reference sources failed after %d attempts", attempts)
	}
	return nil, domain.E(domain.KindNotFound, "no reference source applicable")
}

// DedupReferences collapses duplicate bibliography entries, by DOI when both
// sides have one and by normalized title plus year otherwise.
func DedupReferences(refs []domain.Reference) []domain.Reference {
	seen := make(map[string]bool, len(refs))
	out := make([]domain.Reference, 0, len(refs))
	for _, ref := range refs {
		key := ""
		if ref.Parsed != nil {
			if ref.Parsed.DOI != "" {
				key = "doi:" + domain.NormalizeDOI(ref.Parsed.DOI)
			} else if ref.Parsed.Title != "" {
				key = fmt.Sprintf("title:%s|%d", match.NormalizeTitle(ref.Parsed.Title), ref.Parsed.Year)
			}
		}
		if key == "" {
			key = "raw:" + match.NormalizeTitle(ref.RawText)
		}
		if key == "raw:" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ref)
	}
	return out
}
