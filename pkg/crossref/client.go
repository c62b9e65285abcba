// Package crossref wraps the CrossRef works API. Requests join the polite
// pool when a mailto address is configured.
package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/pkg/httpclient"
)

const provider = "crossref"

type Client struct {
	http    *httpclient.Client
	baseURL string
	mailto  string
}

func NewClient(broker *httpclient.Client, baseURL, mailto string) *Client {
	if baseURL == "" {
		baseURL = "https://api.crossref.org"
	}
	return &Client{http: broker, baseURL: baseURL, mailto: mailto}
}

type worksResponse struct {
	Message work `json:"message"`
}

type searchResponse struct {
	Message struct {
		Items []work `json:"items"`
	} `json:"message"`
}

type work struct {
	DOI            string      `json:"DOI"`
	Title          []string    `json:"title"`
	Author         []author    `json:"author"`
	Issued         dateParts   `json:"issued"`
	ContainerTitle []string    `json:"container-title"`
	Abstract       string      `json:"abstract"`
	Subject        []string    `json:"subject"`
	URL            string      `json:"URL"`
	Reference      []reference `json:"reference"`
}

type author struct {
	Given       string `json:"given"`
	Family      string `json:"family"`
	Sequence    string `json:"sequence"`
	Affiliation []struct {
		Name string `json:"name"`
	} `json:"affiliation"`
}

type dateParts struct {
	DateParts [][]int `json:"date-parts"`
}

func (d dateParts) year() int {
	if len(d.DateParts) > 0 && len(d.DateParts[0]) > 0 {
		return d.DateParts[0][0]
	}
	return 0
}

type reference struct {
	Key          string `json:"key"`
	DOI          string `json:"DOI"`
	ArticleTitle string `json:"article-title"`
	Author       string `json:"author"`
	Year         string `json:"year"`
	Unstructured string `json:"unstructured"`
}

// ByDOI fetches the work record for one DOI.
func (c *Client) ByDOI(ctx context.Context, doi string) (*domain.ProviderRecord, error) {
	reqURL := fmt.Sprintf("%s/works/%s%s", c.baseURL, url.PathEscape(doi), c.politeSuffix("?"))
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp worksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.Ef(domain.KindParseFailure, err, "%s: decode works response", provider)
	}
	return workToRecord(&resp.Message), nil
}

// Search looks up works by bibliographic query; year, when non-zero, filters
// the results client-side.
func (c *Client) Search(ctx context.Context, title string, year int) ([]*domain.ProviderRecord, error) {
	params := url.Values{}
	params.Set("query.bibliographic", title)
	params.Set("rows", "5")
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}
	reqURL := fmt.Sprintf("%s/works?%s", c.baseURL, params.Encode())

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.Ef(domain.KindParseFailure, err, "%s: decode search response", provider)
	}

	records := make([]*domain.ProviderRecord, 0, len(resp.Message.Items))
	for i := range resp.Message.Items {
		rec := workToRecord(&resp.Message.Items[i])
		if year != 0 && rec.Metadata.Year != 0 && abs(rec.Metadata.Year-year) > 1 {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReferencesOf returns the normalized reference list of a work.
func (c *Client) ReferencesOf(ctx context.Context, doi string) ([]domain.Reference, error) {
	rec, err := c.ByDOI(ctx, doi)
	if err != nil {
		return nil, err
	}
	return rec.References, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	headers := http.Header{}
	headers.Set("User-Agent", userAgent(c.mailto))

	resp, err := c.http.Get(ctx, httpclient.External, reqURL, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.E(domain.KindNotFound, provider+": work not found")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.E(domain.KindProviderUnavailable,
			fmt.Sprintf("%s returned status %d", provider, resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Ef(domain.KindNetwork, err, "%s: read response", provider)
	}
	return body, nil
}

func (c *Client) politeSuffix(sep string) string {
	if c.mailto == "" {
		return ""
	}
	return sep + "mailto=" + url.QueryEscape(c.mailto)
}

func userAgent(mailto string) string {
	if mailto != "" {
		return fmt.Sprintf("litgraph/1.0 (mailto:%s)", mailto)
	}
	return "litgraph/1.0"
}

var jatsTagRe = regexp.MustCompile(`</?jats:[^>]+>`)

func workToRecord(w *work) *domain.ProviderRecord {
	title := ""
	if len(w.Title) > 0 {
		title = strings.TrimSpace(w.Title[0])
	}

	authors := make([]domain.Author, 0, len(w.Author))
	for _, a := range w.Author {
		name := strings.TrimSpace(strings.TrimSpace(a.Given) + " " + strings.TrimSpace(a.Family))
		if name == "" {
			continue
		}
		da := domain.Author{Name: name, Sequence: a.Sequence}
		if len(a.Affiliation) > 0 {
			da.Affiliation = a.Affiliation[0].Name
		}
		authors = append(authors, da)
	}

	journal := ""
	if len(w.ContainerTitle) > 0 {
		journal = w.ContainerTitle[0]
	}

	refs := make([]domain.Reference, 0, len(w.Reference))
	for _, r := range w.Reference {
		raw := r.Unstructured
		if raw == "" {
			raw = strings.TrimSpace(strings.Join([]string{r.Author, r.Year, r.ArticleTitle}, " "))
		}
		parsed := &domain.ParsedReference{Title: r.ArticleTitle, DOI: r.DOI}
		if r.Author != "" {
			parsed.Authors = []string{r.Author}
		}
		fmt.Sscanf(r.Year, "%d", &parsed.Year)
		refs = append(refs, domain.Reference{RawText: raw, Parsed: parsed, Source: provider})
	}

	return &domain.ProviderRecord{
		Provider: provider,
		Metadata: domain.Metadata{
			Title:    title,
			Authors:  authors,
			Year:     w.Issued.year(),
			Journal:  journal,
			Abstract: strings.TrimSpace(jatsTagRe.ReplaceAllString(w.Abstract, "")),
			Keywords: w.Subject,
		},
		Identifiers:   domain.Identifiers{DOI: strings.ToLower(w.DOI)},
		SourcePageURL: w.URL,
		References:    refs,
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
