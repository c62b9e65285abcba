package fetcher

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/match"
)

// MetadataResult is the winning record plus the trail of attempts.
type MetadataResult struct {
	Record     *domain.ProviderRecord
	Source     string
	Confidence float64
	Attempts   int
}

type metadataStep struct {
	name       string
	confidence float64
	applicable func(req *Request) bool
	run        func(ctx context.Context, req *Request) (*domain.ProviderRecord, error)
}

type MetadataFetcher struct {
	steps []metadataStep
	log   *logrus.Entry
}

// NewMetadataFetcher wires the waterfall: CrossRef for DOIs, arXiv for
// preprints, Semantic Scholar as the broad fallback, GROBID header parsing
// when only a PDF exists, and landing-page scraping last.
func NewMetadataFetcher(cr CrossrefClient, ax ArxivClient, s2 SemanticScholarClient,
	gb GrobidClient, scraper PageScraper, log *logrus.Logger) *MetadataFetcher {

	steps := []metadataStep{
		{
			name:       "crossref",
			confidence: 0.95,
			applicable: func(req *Request) bool { return cr != nil && req.DOI() != "" },
			run: func(ctx context.Context, req *Request) (*domain.ProviderRecord, error) {
				return cr.ByDOI(ctx, req.DOI())
			},
		},
		{
			name:       "arxiv",
			confidence: 0.9,
			applicable: func(req *Request) bool { return ax != nil && req.ArxivID() != "" },
			run: func(ctx context.Context, req *Request) (*domain.ProviderRecord, error) {
				return ax.ByID(ctx, req.ArxivID())
			},
		},
		{
			name:       "semanticscholar",
			confidence: 0.85,
			applicable: func(req *Request) bool {
				return s2 != nil && (req.DOI() != "" || req.ArxivID() != "" || req.PageURL() != "")
			},
			run: func(ctx context.Context, req *Request) (*domain.ProviderRecord, error) {
				switch {
				case req.DOI() != "":
					return s2.ByDOI(ctx, req.DOI())
				case req.ArxivID() != "":
					return s2.ByArxiv(ctx, req.ArxivID())
				default:
					return s2.ByURL(ctx, req.PageURL())
				}
			},
		},
		{
			name:       "grobid",
			confidence: 0.7,
			applicable: func(req *Request) bool { return gb != nil && len(req.PDF) > 0 },
			run: func(ctx context.Context, req *Request) (*domain.ProviderRecord, error) {
				return gb.ParseHeader(ctx, req.PDF)
			},
		},
		{
			name:       "crossref_search",
			confidence: 0.65,
			applicable: func(req *Request) bool { return cr != nil && req.Submission.Title != "" },
			run: func(ctx context.Context, req *Request) (*domain.ProviderRecord, error) {
				records, err := cr.Search(ctx, req.Submission.Title, yearHint(req))
				if err != nil {
					return nil, err
				}
				return bestTitleMatch(req.Submission.Title, records)
			},
		},
		{
			name:       "semanticscholar_search",
			confidence: 0.6,
			applicable: func(req *Request) bool { return s2 != nil && req.Submission.Title != "" },
			run: func(ctx context.Context, req *Request) (*domain.ProviderRecord, error) {
				records, err := s2.Search(ctx, req.Submission.Title, 5)
				if err != nil {
					return nil, err
				}
				return bestTitleMatch(req.Submission.Title, records)
			},
		},
		{
			name:       "scrape",
			confidence: 0.5,
			applicable: func(req *Request) bool { return scraper != nil && req.PageURL() != "" },
			run: func(ctx context.Context, req *Request) (*domain.ProviderRecord, error) {
				mapping, err := scraper.ScrapePage(ctx, req.PageURL())
				if err != nil {
					return nil, err
				}
				if mapping == nil || mapping.Title == "" {
					return nil, domain.E(domain.KindNotFound, "scrape: no title on page")
				}
				return &domain.ProviderRecord{
					Provider: "scrape",
					Metadata: domain.Metadata{Title: mapping.Title, Year: mapping.Year, Journal: mapping.Venue},
					Identifiers: domain.Identifiers{
						DOI:     domain.NormalizeDOI(mapping.DOI),
						ArxivID: mapping.ArxivID,
					},
					PDFURL:        mapping.PDFURL,
					SourcePageURL: req.PageURL(),
				}, nil
			},
		},
	}
	return &MetadataFetcher{steps: steps, log: log.WithField("component", "fetcher.metadata")}
}

// Fetch walks the waterfall and returns the first usable record.
func (f *MetadataFetcher) Fetch(ctx context.Context, req *Request) (*MetadataResult, error) {
	attempts := 0
	var lastErr error
	for _, step := range f.steps {
		if !step.applicable(req) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, domain.Ef(domain.KindCancelled, err, "metadata fetch interrupted")
		}
		attempts++
		rec, err := step.run(ctx, req)
		if err != nil {
			f.log.WithFields(logrus.Fields{"step": step.name}).WithError(err).Debug("metadata step failed")
			lastErr = err
			continue
		}
		if rec == nil || rec.Metadata.Title == "" {
			continue
		}
		f.log.WithFields(logrus.Fields{"step": step.name, "title": rec.Metadata.Title}).
			Info("metadata resolved")
		return &MetadataResult{Record: rec, Source: step.name, Confidence: step.confidence, Attempts: attempts}, nil
	}
	if lastErr != nil {
		return nil, domain.Ef(domain.KindOf(lastErr), lastErr, "all metadata sources failed after %d attempts", attempts)
	}
	err := domain.E(domain.KindNotFound, "no metadata source applicable to submission")
	err.NextAction = "provide a DOI, arXiv ID, or upload the PDF"
	return nil, err
}

// MergeRecords folds provider records into one metadata block, earlier
// records winning per field. SourcePriority lists contributors in order.
func MergeRecords(records ...*domain.ProviderRecord) domain.Metadata {
	var merged domain.Metadata
	for _, rec := range records {
		if rec == nil {
			continue
		}
		contributed := false
		md := rec.Metadata
		if merged.Title == "" && md.Title != "" {
			merged.Title = md.Title
			contributed = true
		}
		if len(merged.Authors) == 0 && len(md.Authors) > 0 {
			merged.Authors = md.Authors
			contributed = true
		}
		if merged.Year == 0 && md.Year != 0 {
			merged.Year = md.Year
			contributed = true
		}
		if merged.Journal == "" && md.Journal != "" {
			merged.Journal = md.Journal
			contributed = true
		}
		if merged.Abstract == "" && md.Abstract != "" {
			merged.Abstract = md.Abstract
			contributed = true
		}
		if len(merged.Keywords) == 0 && len(md.Keywords) > 0 {
			merged.Keywords = md.Keywords
			contributed = true
		}
		if contributed {
			merged.SourcePriority = append(merged.SourcePriority, rec.Provider)
		}
	}
	return merged
}

// bestTitleMatch filters search hits against the requested title; fuzzy hits
// are only trusted when clearly the same work.
func bestTitleMatch(title string, records []*domain.ProviderRecord) (*domain.ProviderRecord, error) {
	var best *domain.ProviderRecord
	bestScore := 0.0
	for _, rec := range records {
		if rec == nil || rec.Metadata.Title == "" {
			continue
		}
		if match.ExactMatch(title, rec.Metadata.Title) {
			return rec, nil
		}
		if score := match.TitleSimilarity(title, rec.Metadata.Title); score > bestScore {
			best, bestScore = rec, score
		}
	}
	if best == nil || bestScore < 0.8 {
		return nil, domain.E(domain.KindNotFound, "no search hit matched the title")
	}
	return best, nil
}

func yearHint(req *Request) int {
	if req.Mapping != nil && req.Mapping.Year != 0 {
		return req.Mapping.Year
	}
	return 0
}
