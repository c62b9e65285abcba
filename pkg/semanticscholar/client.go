// Package semanticscholar wraps the Semantic Scholar graph API.
package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/pkg/httpclient"
)

const (
	provider    = "semanticscholar"
	paperFields = "title,abstract,year,venue,url,authors,externalIds,openAccessPdf,publicationDate"
	refFields   = "title,authors,year,externalIds"
)

type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string
}

func NewClient(broker *httpclient.Client, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.semanticscholar.org"
	}
	return &Client{http: broker, baseURL: baseURL, apiKey: apiKey}
}

type paperResult struct {
	PaperID         string         `json:"paperId"`
	Title           string         `json:"title"`
	Abstract        string         `json:"abstract"`
	Year            int            `json:"year"`
	Venue           string         `json:"venue"`
	URL             string         `json:"url"`
	Authors         []authorInfo   `json:"authors"`
	ExternalIDs     externalIDs    `json:"externalIds"`
	OpenAccessPDF   *openAccessPDF `json:"openAccessPdf"`
	PublicationDate string         `json:"publicationDate"`
}

type authorInfo struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type externalIDs struct {
	ArXiv  string `json:"ArXiv"`
	DOI    string `json:"DOI"`
	PubMed string `json:"PubMed"`
}

type openAccessPDF struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

type searchResponse struct {
	Total int           `json:"total"`
	Data  []paperResult `json:"data"`
}

type referencesResponse struct {
	Data []struct {
		CitedPaper paperResult `json:"citedPaper"`
	} `json:"data"`
}

// ByID fetches one paper. id accepts the API's prefixed forms: "DOI:10...",
// "ARXIV:1706.03762", "PMID:...", "URL:https://...", or a bare S2 paper id.
func (c *Client) ByID(ctx context.Context, id string) (*domain.ProviderRecord, error) {
	reqURL := fmt.Sprintf("%s/graph/v1/paper/%s?fields=%s", c.baseURL, url.PathEscape(id), paperFields)
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	var paper paperResult
	if err := json.Unmarshal(body, &paper); err != nil {
		return nil, domain.Ef(domain.KindParseFailure, err, "%s: decode paper", provider)
	}
	rec := resultToRecord(&paper)
	if rec == nil {
		return nil, domain.E(domain.KindNotFound, provider+": empty record for "+id)
	}
	return rec, nil
}

func (c *Client) ByDOI(ctx context.Context, doi string) (*domain.ProviderRecord, error) {
	return c.ByID(ctx, "DOI:"+doi)
}

func (c *Client) ByArxiv(ctx context.Context, arxivID string) (*domain.ProviderRecord, error) {
	return c.ByID(ctx, "ARXIV:"+arxivID)
}

// ByURL resolves a publisher landing page to a paper when S2 recognizes it.
func (c *Client) ByURL(ctx context.Context, pageURL string) (*domain.ProviderRecord, error) {
	return c.ByID(ctx, "URL:"+pageURL)
}

// Search queries papers by title text.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]*domain.ProviderRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("fields", paperFields)
	reqURL := fmt.Sprintf("%s/graph/v1/paper/search?%s", c.baseURL, params.Encode())

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.Ef(domain.KindParseFailure, err, "%s: decode search response", provider)
	}

	records := make([]*domain.ProviderRecord, 0, len(resp.Data))
	for i := range resp.Data {
		if rec := resultToRecord(&resp.Data[i]); rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// ReferencesOf returns the normalized references of a paper.
func (c *Client) ReferencesOf(ctx context.Context, id string) ([]domain.Reference, error) {
	reqURL := fmt.Sprintf("%s/graph/v1/paper/%s/references?fields=%s&limit=1000",
		c.baseURL, url.PathEscape(id), refFields)
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	var resp referencesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.Ef(domain.KindParseFailure, err, "%s: decode references", provider)
	}

	refs := make([]domain.Reference, 0, len(resp.Data))
	for _, item := range resp.Data {
		p := item.CitedPaper
		if p.Title == "" {
			continue
		}
		parsed := &domain.ParsedReference{
			Title:   strings.TrimSpace(p.Title),
			Year:    p.Year,
			DOI:     strings.ToLower(p.ExternalIDs.DOI),
			ArxivID: p.ExternalIDs.ArXiv,
		}
		for _, a := range p.Authors {
			if a.Name != "" {
				parsed.Authors = append(parsed.Authors, strings.TrimSpace(a.Name))
			}
		}
		refs = append(refs, domain.Reference{
			RawText: referenceText(parsed),
			Parsed:  parsed,
			Source:  provider,
		})
	}
	return refs, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	headers := http.Header{}
	headers.Set("User-Agent", "litgraph/1.0 (academic-resolver)")
	if c.apiKey != "" {
		headers.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Get(ctx, httpclient.External, reqURL, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.E(domain.KindNotFound, provider+": paper not found")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, domain.E(domain.KindProviderUnavailable,
			fmt.Sprintf("%s returned status %d: %s", provider, resp.StatusCode, string(body)))
	}
	return io.ReadAll(resp.Body)
}

func resultToRecord(r *paperResult) *domain.ProviderRecord {
	if r.Title == "" {
		return nil
	}

	authors := make([]domain.Author, 0, len(r.Authors))
	for _, a := range r.Authors {
		if a.Name != "" {
			authors = append(authors, domain.Author{Name: strings.TrimSpace(a.Name)})
		}
	}

	pdfURL := ""
	if r.OpenAccessPDF != nil {
		pdfURL = r.OpenAccessPDF.URL
	}
	if pdfURL == "" && r.ExternalIDs.ArXiv != "" {
		pdfURL = fmt.Sprintf("https://arxiv.org/pdf/%s", r.ExternalIDs.ArXiv)
	}

	return &domain.ProviderRecord{
		Provider: provider,
		Metadata: domain.Metadata{
			Title:    strings.TrimSpace(r.Title),
			Authors:  authors,
			Year:     r.Year,
			Journal:  r.Venue,
			Abstract: strings.TrimSpace(r.Abstract),
		},
		Identifiers: domain.Identifiers{
			DOI:     strings.ToLower(r.ExternalIDs.DOI),
			ArxivID: r.ExternalIDs.ArXiv,
			PMID:    r.ExternalIDs.PubMed,
		},
		PDFURL:        pdfURL,
		SourcePageURL: r.URL,
	}
}

func referenceText(p *domain.ParsedReference) string {
	parts := []string{}
	if len(p.Authors) > 0 {
		parts = append(parts, strings.Join(p.Authors, ", "))
	}
	if p.Year != 0 {
		parts = append(parts, fmt.Sprintf("(%d)", p.Year))
	}
	parts = append(parts, p.Title)
	return strings.Join(parts, " ")
}
