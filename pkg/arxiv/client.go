// Package arxiv wraps the arXiv Atom query API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/pkg/httpclient"
)

const provider = "arxiv"

type Client struct {
	http    *httpclient.Client
	baseURL string
}

func NewClient(broker *httpclient.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://export.arxiv.org/api/query"
	}
	return &Client{http: broker, baseURL: baseURL}
}

// Feed represents the arXiv Atom feed response.
type Feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	Entries      []Entry  `xml:"entry"`
}

type Entry struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	DOI       string     `xml:"doi"`
	JournalRef string    `xml:"journal_ref"`
	Authors   []Author   `xml:"author"`
	Links     []Link     `xml:"link"`
	Category  []Category `xml:"category"`
}

type Author struct {
	Name        string `xml:"name"`
	Affiliation string `xml:"affiliation"`
}

type Link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

type Category struct {
	Term string `xml:"term,attr"`
}

// ByID fetches one paper by arXiv identifier (either format, with or without
// a version suffix).
func (c *Client) ByID(ctx context.Context, arxivID string) (*domain.ProviderRecord, error) {
	params := url.Values{}
	params.Set("id_list", arxivID)

	feed, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(feed.Entries) == 0 {
		return nil, domain.E(domain.KindNotFound, provider+": no entry for "+arxivID)
	}
	return entryToRecord(&feed.Entries[0]), nil
}

// Search queries papers by free text, relevance-ordered.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]*domain.ProviderRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("search_query", fmt.Sprintf("all:%s", query))
	params.Set("max_results", fmt.Sprintf("%d", limit))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	feed, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}
	records := make([]*domain.ProviderRecord, 0, len(feed.Entries))
	for i := range feed.Entries {
		if rec := entryToRecord(&feed.Entries[i]); rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (c *Client) query(ctx context.Context, params url.Values) (*Feed, error) {
	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	resp, err := c.http.Get(ctx, httpclient.External, reqURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.E(domain.KindProviderUnavailable,
			fmt.Sprintf("%s returned status %d", provider, resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Ef(domain.KindNetwork, err, "%s: read response", provider)
	}

	var feed Feed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, domain.Ef(domain.KindParseFailure, err, "%s: parse atom feed", provider)
	}
	return &feed, nil
}

func entryToRecord(entry *Entry) *domain.ProviderRecord {
	arxivID := ExtractID(entry.ID)
	if arxivID == "" {
		return nil
	}

	authors := make([]domain.Author, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		authors = append(authors, domain.Author{
			Name:        strings.TrimSpace(a.Name),
			Affiliation: strings.TrimSpace(a.Affiliation),
		})
	}

	year := 0
	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			year = t.Year()
		}
	}

	pdfURL := fmt.Sprintf("https://arxiv.org/pdf/%s", arxivID)
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}

	keywords := make([]string, 0, len(entry.Category))
	for _, cat := range entry.Category {
		keywords = append(keywords, cat.Term)
	}

	return &domain.ProviderRecord{
		Provider: provider,
		Metadata: domain.Metadata{
			Title:    strings.Join(strings.Fields(entry.Title), " "),
			Authors:  authors,
			Year:     year,
			Journal:  strings.TrimSpace(entry.JournalRef),
			Abstract: strings.TrimSpace(entry.Summary),
			Keywords: keywords,
		},
		Identifiers: domain.Identifiers{
			ArxivID: arxivID,
			DOI:     strings.ToLower(strings.TrimSpace(entry.DOI)),
		},
		PDFURL:        pdfURL,
		SourcePageURL: fmt.Sprintf("https://arxiv.org/abs/%s", arxivID),
	}
}

// ExtractID pulls the bare arXiv ID out of an abs/pdf URL, stripping any
// version suffix. Both "2301.00001v1" and "hep-th/9901001v1" forms are
// handled.
func ExtractID(fullURL string) string {
	parts := strings.Split(fullURL, "/abs/")
	if len(parts) != 2 {
		return ""
	}
	return StripVersion(parts[1])
}

// StripVersion removes a trailing "vN" revision marker from an arXiv ID.
func StripVersion(id string) string {
	idx := strings.LastIndex(id, "v")
	if idx <= 0 {
		return id
	}
	versionPart := id[idx+1:]
	if len(versionPart) == 0 {
		return id
	}
	for _, c := range versionPart {
		if c < '0' || c > '9' {
			return id
		}
	}
	return id[:idx]
}
