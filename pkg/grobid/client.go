// Package grobid wraps a GROBID PDF parsing service. GROBID is an internal
// destination: it receives raw PDF bytes and answers TEI XML, with the
// bibliographic header under <teiHeader> and the bibliography under
// <back>/<listBibl>.
package grobid

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/pkg/httpclient"
)

const provider = "grobid"

type Client struct {
	http    *httpclient.Client
	baseURL string
}

func NewClient(broker *httpclient.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8070"
	}
	return &Client{http: broker, baseURL: strings.TrimRight(baseURL, "/")}
}

// IsAlive checks service availability.
func (c *Client) IsAlive(ctx context.Context) error {
	resp, err := c.http.Get(ctx, httpclient.Internal, c.baseURL+"/api/isalive", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.E(domain.KindProviderUnavailable,
			fmt.Sprintf("%s isalive returned status %d", provider, resp.StatusCode))
	}
	return nil
}

// ParseHeader extracts bibliographic metadata from the PDF header region.
// Header consolidation is enabled; citation consolidation is not.
func (c *Client) ParseHeader(ctx context.Context, pdf []byte) (*domain.ProviderRecord, error) {
	tei, err := c.process(ctx, "/api/processHeaderDocument", pdf, map[string]string{
		"consolidateHeader": "1",
	})
	if err != nil {
		return nil, err
	}
	rec := headerToRecord(tei)
	if rec.Metadata.Title == "" {
		return nil, domain.E(domain.KindParseFailure, provider+": no title in TEI header")
	}
	return rec, nil
}

// ParseReferences extracts and normalizes the bibliography section.
func (c *Client) ParseReferences(ctx context.Context, pdf []byte) ([]domain.Reference, error) {
	tei, err := c.process(ctx, "/api/processFulltextDocument", pdf, map[string]string{
		"consolidateHeader":    "0",
		"consolidateCitations": "0",
		"includeRawCitations":  "1",
	})
	if err != nil {
		return nil, err
	}
	return referencesOf(tei), nil
}

// ParseFulltext extracts header metadata, body text, and references in one
// pass.
func (c *Client) ParseFulltext(ctx context.Context, pdf []byte) (*domain.ProviderRecord, string, error) {
	tei, err := c.process(ctx, "/api/processFulltextDocument", pdf, map[string]string{
		"consolidateHeader":   "1",
		"includeRawCitations": "1",
	})
	if err != nil {
		return nil, "", err
	}
	rec := headerToRecord(tei)
	rec.References = referencesOf(tei)
	return rec, bodyText(tei), nil
}

func (c *Client) process(ctx context.Context, path string, pdf []byte, fields map[string]string) (*teiDocument, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("input", "document.pdf")
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "%s: build multipart body", provider)
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "%s: write pdf part", provider)
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	headers := http.Header{}
	headers.Set("Content-Type", writer.FormDataContentType())
	headers.Set("Accept", "application/xml")

	resp, err := c.http.Do(ctx, httpclient.Internal, http.MethodPost, c.baseURL+path, headers, buf.Bytes())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, domain.E(domain.KindParseFailure, provider+": document produced no TEI")
	case http.StatusServiceUnavailable:
		return nil, domain.E(domain.KindProviderUnavailable, provider+": all parser threads busy")
	default:
		return nil, domain.E(domain.KindProviderUnavailable,
			fmt.Sprintf("%s returned status %d", provider, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Ef(domain.KindNetwork, err, "%s: read response", provider)
	}
	var tei teiDocument
	if err := xml.Unmarshal(body, &tei); err != nil {
		return nil, domain.Ef(domain.KindParseFailure, err, "%s: parse TEI", provider)
	}
	return &tei, nil
}

// TEI document model, limited to the elements this backend consumes.

type teiDocument struct {
	XMLName xml.Name  `xml:"TEI"`
	Header  teiHeader `xml:"teiHeader"`
	Text    teiText   `xml:"text"`
}

type teiHeader struct {
	FileDesc    fileDesc    `xml:"fileDesc"`
	ProfileDesc profileDesc `xml:"profileDesc"`
}

type fileDesc struct {
	TitleStmt struct {
		Title string `xml:"title"`
	} `xml:"titleStmt"`
	SourceDesc struct {
		BiblStruct biblStruct `xml:"biblStruct"`
	} `xml:"sourceDesc"`
}

type profileDesc struct {
	Abstract struct {
		Paragraphs []string `xml:"div>p"`
	} `xml:"abstract"`
	Keywords struct {
		Terms []string `xml:"term"`
	} `xml:"textClass>keywords"`
}

type teiText struct {
	Body struct {
		Divs []bodyDiv `xml:"div"`
	} `xml:"body"`
	Back struct {
		Divs []backDiv `xml:"div"`
	} `xml:"back"`
}

type bodyDiv struct {
	Head       string   `xml:"head"`
	Paragraphs []string `xml:"p"`
}

type backDiv struct {
	Type     string `xml:"type,attr"`
	ListBibl struct {
		Entries []biblStruct `xml:"biblStruct"`
	} `xml:"listBibl"`
}

type biblStruct struct {
	Analytic struct {
		Title   teiTitle    `xml:"title"`
		Authors []teiAuthor `xml:"author"`
	} `xml:"analytic"`
	Monogr struct {
		Title   teiTitle    `xml:"title"`
		Authors []teiAuthor `xml:"author"`
		Imprint struct {
			Date teiDate `xml:"date"`
		} `xml:"imprint"`
	} `xml:"monogr"`
	IDNos []idno    `xml:"idno"`
	Notes []teiNote `xml:"note"`
}

type teiTitle struct {
	Value string `xml:",chardata"`
	Type  string `xml:"type,attr"`
}

type teiAuthor struct {
	PersName struct {
		Forenames []string `xml:"forename"`
		Surname   string   `xml:"surname"`
	} `xml:"persName"`
	Affiliation struct {
		OrgNames []string `xml:"orgName"`
	} `xml:"affiliation"`
}

type teiDate struct {
	When  string `xml:"when,attr"`
	Value string `xml:",chardata"`
}

type idno struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type teiNote struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

func headerToRecord(tei *teiDocument) *domain.ProviderRecord {
	src := tei.Header.FileDesc.SourceDesc.BiblStruct

	title := strings.TrimSpace(tei.Header.FileDesc.TitleStmt.Title)
	if title == "" {
		title = strings.TrimSpace(src.Analytic.Title.Value)
	}

	authors := make([]domain.Author, 0, len(src.Analytic.Authors))
	for _, a := range src.Analytic.Authors {
		name := authorName(a)
		if name == "" {
			continue
		}
		da := domain.Author{Name: name}
		if len(a.Affiliation.OrgNames) > 0 {
			da.Affiliation = a.Affiliation.OrgNames[0]
		}
		authors = append(authors, da)
	}

	ids := domain.Identifiers{}
	for _, id := range src.IDNos {
		switch strings.ToUpper(id.Type) {
		case "DOI":
			ids.DOI = strings.ToLower(strings.TrimSpace(id.Value))
		case "ARXIV":
			ids.ArxivID = strings.TrimSpace(id.Value)
		case "PMID":
			ids.PMID = strings.TrimSpace(id.Value)
		}
	}

	return &domain.ProviderRecord{
		Provider: provider,
		Metadata: domain.Metadata{
			Title:    title,
			Authors:  authors,
			Year:     yearOf(src.Monogr.Imprint.Date),
			Journal:  strings.TrimSpace(src.Monogr.Title.Value),
			Abstract: strings.TrimSpace(strings.Join(tei.Header.ProfileDesc.Abstract.Paragraphs, "\n")),
			Keywords: tei.Header.ProfileDesc.Keywords.Terms,
		},
		Identifiers: ids,
	}
}

func referencesOf(tei *teiDocument) []domain.Reference {
	var refs []domain.Reference
	for _, div := range tei.Text.Back.Divs {
		if div.Type != "references" && div.Type != "" {
			continue
		}
		for _, bibl := range div.ListBibl.Entries {
			parsed := &domain.ParsedReference{
				Title: strings.TrimSpace(bibl.Analytic.Title.Value),
				Year:  yearOf(bibl.Monogr.Imprint.Date),
			}
			if parsed.Title == "" {
				parsed.Title = strings.TrimSpace(bibl.Monogr.Title.Value)
			}
			for _, id := range bibl.IDNos {
				switch strings.ToUpper(id.Type) {
				case "DOI":
					parsed.DOI = strings.ToLower(strings.TrimSpace(id.Value))
				case "ARXIV":
					parsed.ArxivID = strings.TrimSpace(id.Value)
				}
			}
			names := bibl.Analytic.Authors
			if len(names) == 0 {
				names = bibl.Monogr.Authors
			}
			for _, a := range names {
				if name := authorName(a); name != "" {
					parsed.Authors = append(parsed.Authors, name)
				}
			}

			raw := ""
			for _, note := range bibl.Notes {
				if note.Type == "raw_reference" {
					raw = strings.TrimSpace(note.Value)
					break
				}
			}
			if raw == "" {
				raw = rawFromParsed(parsed)
			}
			if parsed.Title == "" && raw == "" {
				continue
			}
			refs = append(refs, domain.Reference{RawText: raw, Parsed: parsed, Source: provider})
		}
	}
	return refs
}

func bodyText(tei *teiDocument) string {
	var b strings.Builder
	for _, div := range tei.Text.Body.Divs {
		if div.Head != "" {
			b.WriteString(div.Head)
			b.WriteString("\n")
		}
		for _, p := range div.Paragraphs {
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

func authorName(a teiAuthor) string {
	parts := append([]string{}, a.PersName.Forenames...)
	if a.PersName.Surname != "" {
		parts = append(parts, a.PersName.Surname)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func yearOf(d teiDate) int {
	for _, candidate := range []string{d.When, d.Value} {
		candidate = strings.TrimSpace(candidate)
		if len(candidate) >= 4 {
			if y, err := strconv.Atoi(candidate[:4]); err == nil && y > 1000 {
				return y
			}
		}
	}
	return 0
}

func rawFromParsed(p *domain.ParsedReference) string {
	parts := []string{}
	if len(p.Authors) > 0 {
		parts = append(parts, strings.Join(p.Authors, ", "))
	}
	if p.Year != 0 {
		parts = append(parts, fmt.Sprintf("(%d)", p.Year))
	}
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	return strings.Join(parts, " ")
}
