// Package unpaywall wraps the Unpaywall open-access lookup API.
package unpaywall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/pkg/httpclient"
)

const provider = "unpaywall"

type Client struct {
	http    *httpclient.Client
	baseURL string
	email   string
}

func NewClient(broker *httpclient.Client, baseURL, email string) *Client {
	if baseURL == "" {
		baseURL = "https://api.unpaywall.org/v2"
	}
	return &Client{http: broker, baseURL: baseURL, email: email}
}

type oaResponse struct {
	DOI            string      `json:"doi"`
	IsOA           bool        `json:"is_oa"`
	BestOALocation *oaLocation `json:"best_oa_location"`
	OALocations    []oaLocation `json:"oa_locations"`
}

type oaLocation struct {
	URLForPDF  string `json:"url_for_pdf"`
	URL        string `json:"url"`
	HostType   string `json:"host_type"`
	Version    string `json:"version"`
	RepositoryInstitution string `json:"repository_institution"`
}

// BestPDFURL returns the best open-access PDF URL known for a DOI, or a
// not_found error when the work has no OA copy.
func (c *Client) BestPDFURL(ctx context.Context, doi string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s?email=%s", c.baseURL, url.PathEscape(doi), url.QueryEscape(c.email))

	resp, err := c.http.Get(ctx, httpclient.External, reqURL, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", domain.E(domain.KindNotFound, provider+": doi not indexed")
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.E(domain.KindProviderUnavailable,
			fmt.Sprintf("%s returned status %d", provider, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.Ef(domain.KindNetwork, err, "%s: read response", provider)
	}
	var oa oaResponse
	if err := json.Unmarshal(body, &oa); err != nil {
		return "", domain.Ef(domain.KindParseFailure, err, "%s: decode response", provider)
	}

	if oa.BestOALocation != nil && oa.BestOALocation.URLForPDF != "" {
		return oa.BestOALocation.URLForPDF, nil
	}
	for _, loc := range oa.OALocations {
		if loc.URLForPDF != "" {
			return loc.URLForPDF, nil
		}
	}
	return "", domain.E(domain.KindNotFound, provider+": no open-access pdf for "+doi)
}
