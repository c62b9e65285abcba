package urlmap

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/litgraph/backend/internal/domain"
)

var (
	arxivNewRe = regexp.MustCompile(`(?i)arxiv\.org/(?:abs|pdf|html)/(\d{4}\.\d{4,5})(?:v\d+)?(?:\.pdf)?`)
	arxivOldRe = regexp.MustCompile(`(?i)arxiv\.org/(?:abs|pdf|html)/([a-z-]+/\d{7})(?:v\d+)?(?:\.pdf)?`)

	doiOrgRe = regexp.MustCompile(`(?i)(?:dx\.)?doi\.org/(10\.\d{4,}/[^\s"'<>?#]+)`)

	ieeeDocRe = regexp.MustCompile(`(?i)ieeexplore\.ieee\.org/(?:document|abstract/document)/(\d+)`)

	natureArticleRe = regexp.MustCompile(`(?i)nature\.com/articles/([^/?#]+)`)

	acmDOIRe      = regexp.MustCompile(`(?i)dl\.acm\.org/doi/(?:abs/|full/)?(10\.\d{4}/[^?\s#]+)`)
	acmCitationRe = regexp.MustCompile(`(?i)dl\.acm\.org/citation\.cfm\?id=(\d+)`)

	cvfPaperRe = regexp.MustCompile(`(?i)openaccess\.thecvf\.com/content[^/]*/[^/]*/papers/([^/]+)\.html`)
	yearRe     = regexp.MustCompile(`(19|20)\d{2}`)

	doiInPathRe = regexp.MustCompile(`(10\.\d{4,}/[^\s"'<>?#]+)`)
)

func regexStrategy(name string, run func(rawURL string) *domain.Mapping) Strategy {
	return Strategy{
		Name:     name,
		Kind:     StrategyRegex,
		Priority: 1,
		Run: func(_ context.Context, rawURL string) (*domain.Mapping, error) {
			return run(rawURL), nil
		},
	}
}

func scrapeStrategy(name string, scraper *Scraper, priority int) Strategy {
	return Strategy{
		Name:     name,
		Kind:     StrategyScrape,
		Priority: priority,
		Run: func(ctx context.Context, rawURL string) (*domain.Mapping, error) {
			return scraper.ScrapePage(ctx, rawURL)
		},
	}
}

func databaseStrategy(name string, lookup DatabaseLookup, priority int) Strategy {
	return Strategy{
		Name:     name,
		Kind:     StrategyDatabase,
		Priority: priority,
		Run: func(ctx context.Context, rawURL string) (*domain.Mapping, error) {
			rec, err := lookup.ByURL(ctx, rawURL)
			if err != nil {
				return nil, err
			}
			return &domain.Mapping{
				DOI:           rec.Identifiers.DOI,
				ArxivID:       rec.Identifiers.ArxivID,
				SourcePageURL: rawURL,
				PDFURL:        rec.PDFURL,
				Title:         rec.Metadata.Title,
				Venue:         rec.Metadata.Journal,
				Year:          rec.Metadata.Year,
				Confidence:    0.8,
				Strategy:      "db",
			}, nil
		},
	}
}

func arxivAdapter() Adapter {
	extract := func(rawURL string) *domain.Mapping {
		var arxivID string
		if m := arxivNewRe.FindStringSubmatch(rawURL); m != nil {
			arxivID = m[1]
		} else if m := arxivOldRe.FindStringSubmatch(rawURL); m != nil {
			arxivID = m[1]
		}
		if arxivID == "" {
			return nil
		}
		mapping := &domain.Mapping{
			ArxivID:       arxivID,
			SourcePageURL: fmt.Sprintf("https://arxiv.org/abs/%s", arxivID),
			PDFURL:        fmt.Sprintf("https://arxiv.org/pdf/%s.pdf", arxivID),
			Venue:         "arXiv",
			Confidence:    0.95,
			Strategy:      "regex",
		}
		mapping.Year = arxivYear(arxivID)
		return mapping
	}
	return Adapter{
		Name:      "arxiv",
		CanHandle: hostContains("arxiv.org"),
		Strategies: []Strategy{
			regexStrategy("arxiv_regex", extract),
		},
	}
}

// arxivYear infers the submission year from the id prefix. New-format ids
// encode YYMM; the old scheme ran 1991 through 2007.
func arxivYear(arxivID string) int {
	digits := arxivID
	if idx := strings.LastIndex(arxivID, "/"); idx >= 0 {
		digits = arxivID[idx+1:]
	}
	if len(digits) < 2 {
		return 0
	}
	yy, err := strconv.Atoi(digits[:2])
	if err != nil {
		return 0
	}
	if yy >= 91 {
		return 1900 + yy
	}
	return 2000 + yy
}

func doiOrgAdapter() Adapter {
	extract := func(rawURL string) *domain.Mapping {
		m := doiOrgRe.FindStringSubmatch(rawURL)
		if m == nil {
			return nil
		}
		return &domain.Mapping{
			DOI:        strings.ToLower(m[1]),
			Confidence: 0.95,
			Strategy:   "regex",
		}
	}
	return Adapter{
		Name:      "doi.org",
		CanHandle: hostContains("doi.org"),
		Strategies: []Strategy{
			regexStrategy("doi_regex", extract),
		},
	}
}

func ieeeAdapter(scraper *Scraper, lookup DatabaseLookup) Adapter {
	extract := func(rawURL string) *domain.Mapping {
		if ieeeDocRe.FindStringSubmatch(rawURL) == nil {
			return nil
		}
		// The document id alone cannot give a DOI; the scrape strategy
		// upgrades this result when the page is reachable.
		return &domain.Mapping{
			SourcePageURL: rawURL,
			Venue:         "IEEE",
			Confidence:    0.5,
			Strategy:      "regex",
		}
	}
	return Adapter{
		Name:      "ieee",
		CanHandle: hostContains("ieeexplore.ieee.org"),
		Strategies: []Strategy{
			regexStrategy("ieee_regex", extract),
			scrapeStrategy("ieee_scrape", scraper, 2),
			databaseStrategy("ieee_db", lookup, 3),
		},
	}
}

func natureAdapter(scraper *Scraper) Adapter {
	extract := func(rawURL string) *domain.Mapping {
		m := natureArticleRe.FindStringSubmatch(rawURL)
		if m == nil {
			return nil
		}
		articleID := m[1]
		mapping := &domain.Mapping{
			SourcePageURL: rawURL,
			Venue:         "Nature",
			Confidence:    0.6,
			Strategy:      "regex",
		}
		// Modern article ids are the DOI suffix under the Nature prefix.
		if strings.HasPrefix(articleID, "s") || strings.HasPrefix(articleID, "nature") {
			mapping.DOI = "10.1038/" + strings.ToLower(articleID)
			mapping.Confidence = 0.85
		}
		return mapping
	}
	return Adapter{
		Name:      "nature",
		CanHandle: hostContains("nature.com"),
		Strategies: []Strategy{
			regexStrategy("nature_regex", extract),
			scrapeStrategy("nature_scrape", scraper, 2),
		},
	}
}

func acmAdapter(scraper *Scraper) Adapter {
	extract := func(rawURL string) *domain.Mapping {
		if m := acmDOIRe.FindStringSubmatch(rawURL); m != nil {
			return &domain.Mapping{
				DOI:           strings.ToLower(m[1]),
				SourcePageURL: rawURL,
				Venue:         "ACM",
				Confidence:    0.95,
				Strategy:      "regex",
			}
		}
		if acmCitationRe.MatchString(rawURL) {
			return &domain.Mapping{
				SourcePageURL: rawURL,
				Venue:         "ACM",
				Confidence:    0.5,
				Strategy:      "regex",
			}
		}
		return nil
	}
	return Adapter{
		Name:      "acm",
		CanHandle: hostContains("dl.acm.org"),
		Strategies: []Strategy{
			regexStrategy("acm_regex", extract),
			scrapeStrategy("acm_scrape", scraper, 2),
		},
	}
}

func cvfAdapter(scraper *Scraper) Adapter {
	extract := func(rawURL string) *domain.Mapping {
		if cvfPaperRe.FindStringSubmatch(rawURL) == nil {
			return nil
		}
		mapping := &domain.Mapping{
			SourcePageURL: rawURL,
			PDFURL:        strings.TrimSuffix(rawURL, ".html") + ".pdf",
			Confidence:    0.7,
			Strategy:      "regex",
		}
		lower := strings.ToLower(rawURL)
		switch {
		case strings.Contains(lower, "cvpr"):
			mapping.Venue = "CVPR"
		case strings.Contains(lower, "iccv"):
			mapping.Venue = "ICCV"
		case strings.Contains(lower, "wacv"):
			mapping.Venue = "WACV"
		default:
			mapping.Venue = "CVF"
		}
		if y := yearRe.FindString(rawURL); y != "" {
			mapping.Year, _ = strconv.Atoi(y)
		}
		return mapping
	}
	return Adapter{
		Name:      "cvf",
		CanHandle: hostContains("openaccess.thecvf.com"),
		Strategies: []Strategy{
			regexStrategy("cvf_regex", extract),
			scrapeStrategy("cvf_scrape", scraper, 2),
		},
	}
}

// genericAdapter is the fallback for any URL no platform adapter claims. A
// DOI embedded in the path is extracted even from direct PDF links.
func genericAdapter(scraper *Scraper, lookup DatabaseLookup) Adapter {
	extract := func(rawURL string) *domain.Mapping {
		m := doiInPathRe.FindStringSubmatch(rawURL)
		if m == nil {
			return nil
		}
		doi := strings.ToLower(strings.TrimSuffix(m[1], ".pdf"))
		return &domain.Mapping{
			DOI:        doi,
			Confidence: 0.75,
			Strategy:   "regex",
		}
	}
	return Adapter{
		Name:      "generic",
		CanHandle: func(string) bool { return true },
		Strategies: []Strategy{
			regexStrategy("generic_doi_regex", extract),
			scrapeStrategy("generic_scrape", scraper, 2),
			databaseStrategy("generic_db", lookup, 3),
		},
	}
}

func hostContains(fragment string) func(string) bool {
	return func(rawURL string) bool {
		return strings.Contains(strings.ToLower(rawURL), fragment)
	}
}
