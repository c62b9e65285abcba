package urlmap

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/pkg/httpclient"
)

// Scraper extracts Highwire citation meta tags from publisher landing pages.
// Most academic publishers emit citation_doi / citation_pdf_url for indexers.
type Scraper struct {
	http *httpclient.Client
}

func NewScraper(broker *httpclient.Client) *Scraper {
	return &Scraper{http: broker}
}

const maxPageBytes = 2 << 20

var doiInTextRe = regexp.MustCompile(`10\.\d{4,}/[A-Za-z0-9.\-_/()]+`)

// ScrapePage fetches the page and reads its citation meta tags. A scraper
// built without a broker reports unavailable instead of fetching.
func (s *Scraper) ScrapePage(ctx context.Context, pageURL string) (*domain.Mapping, error) {
	if s.http == nil {
		return nil, domain.E(domain.KindProviderUnavailable, "scrape: no outbound client configured")
	}
	resp, err := s.http.Get(ctx, httpclient.External, pageURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.E(domain.KindNotFound, "scrape: page returned status "+strconv.Itoa(resp.StatusCode))
	}

	meta, err := citationMeta(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, domain.Ef(domain.KindParseFailure, err, "scrape: parse %s", pageURL)
	}

	mapping := &domain.Mapping{
		SourcePageURL: pageURL,
		DOI:           strings.ToLower(strings.TrimSpace(meta["citation_doi"])),
		ArxivID:       strings.TrimSpace(meta["citation_arxiv_id"]),
		PDFURL:        strings.TrimSpace(meta["citation_pdf_url"]),
		Title:         strings.TrimSpace(meta["citation_title"]),
		Strategy:      "scrape",
	}
	if v := meta["citation_journal_title"]; v != "" {
		mapping.Venue = v
	} else if v := meta["citation_conference_title"]; v != "" {
		mapping.Venue = v
	}
	for _, key := range []string{"citation_publication_date", "citation_date", "citation_year"} {
		if v := meta[key]; len(v) >= 4 {
			if y, err := strconv.Atoi(v[:4]); err == nil && y > 1000 {
				mapping.Year = y
				break
			}
		}
	}

	switch {
	case mapping.DOI != "" || mapping.ArxivID != "":
		mapping.Confidence = 0.8
	case mapping.PDFURL != "" || mapping.Title != "":
		mapping.Confidence = 0.5
	default:
		return nil, domain.E(domain.KindNotFound, "scrape: no citation meta tags on "+pageURL)
	}
	return mapping, nil
}

// citationMeta collects the content of every <meta name="citation_*"> tag in
// the document head.
func citationMeta(r io.Reader) (map[string]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]string)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name", "property":
					name = strings.ToLower(attr.Val)
				case "content":
					content = attr.Val
				}
			}
			if strings.HasPrefix(name, "citation_") && content != "" {
				if _, seen := meta[name]; !seen {
					meta[name] = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta, nil
}
