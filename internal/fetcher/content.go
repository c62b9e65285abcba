package fetcher

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/pkg/httpclient"
)

// ObjectStore is the bucket holding user-uploaded PDFs.
type ObjectStore interface {
	KeyFromURL(rawURL string) (string, bool)
	Exists(ctx context.Context, key string) (bool, error)
	GetBytes(ctx context.Context, key string, maxBytes int64) ([]byte, error)
}

// ContentResult is the acquired document.
type ContentResult struct {
	PDF      []byte
	PDFURL   string
	Source   string
	MD5      string
	Attempts int
}

type ContentFetcher struct {
	store    ObjectStore
	broker   *httpclient.Client
	scraper  PageScraper
	oa       OpenAccessClient
	maxBytes int64
	log      *logrus.Entry
}

func NewContentFetcher(store ObjectStore, broker *httpclient.Client, scraper PageScraper,
	oa OpenAccessClient, maxBytes int64, log *logrus.Logger) *ContentFetcher {
	return &ContentFetcher{
		store:    store,
		broker:   broker,
		scraper:  scraper,
		oa:       oa,
		maxBytes: maxBytes,
		log:      log.WithField("component", "fetcher.content"),
	}
}

// Fetch acquires the PDF, trying sources in trust order: a user upload in
// the object store, a direct PDF URL from the submission or mapping, the
// landing page's citation_pdf_url, and finally an open-access copy by DOI.
func (f *ContentFetcher) Fetch(ctx context.Context, req *Request) (*ContentResult, error) {
	attempts := 0
	var lastErr error

	try := func(source string, get func() ([]byte, string, error)) (*ContentResult, bool) {
		attempts++
		pdf, pdfURL, err := get()
		if err != nil {
			f.log.WithFields(logrus.Fields{"source": source}).WithError(err).Debug("content source failed")
			lastErr = err
			return nil, false
		}
		if err := ValidatePDF(pdf, f.maxBytes); err != nil {
			f.log.WithFields(logrus.Fields{"source": source}).WithError(err).Warn("fetched document rejected")
			lastErr = err
			return nil, false
		}
		f.log.WithFields(logrus.Fields{"source": source, "bytes": len(pdf)}).Info("content acquired")
		return &ContentResult{
			PDF:      pdf,
			PDFURL:   pdfURL,
			Source:   source,
			MD5:      fmt.Sprintf("%x", md5.Sum(pdf)),
			Attempts: attempts,
		}, true
	}

	// User-uploaded object.
	if f.store != nil && req.Submission.PDFURL != "" {
		if key, ok := f.store.KeyFromURL(req.Submission.PDFURL); ok {
			if result, ok := try("upload", func() ([]byte, string, error) {
				exists, err := f.store.Exists(ctx, key)
				if err != nil {
					return nil, "", err
				}
				if !exists {
					err := domain.E(domain.KindNotFound, "uploaded object missing: "+key)
					err.NextAction = "upload the PDF again"
					return nil, "", err
				}
				pdf, err := f.store.GetBytes(ctx, key, f.maxBytes)
				return pdf, req.Submission.PDFURL, err
			}); ok {
				return result, nil
			}
		}
	}

	// Direct PDF URL.
	if pdfURL := req.PDFURL(); pdfURL != "" && f.broker != nil {
		if result, ok := try("direct", func() ([]byte, string, error) {
			pdf, err := f.download(ctx, pdfURL)
			return pdf, pdfURL, err
		}); ok {
			return result, nil
		}
	}

	// Landing page scrape.
	if pageURL := req.PageURL(); pageURL != "" && f.scraper != nil && f.broker != nil {
		if result, ok := try("scrape", func() ([]byte, string, error) {
			mapping, err := f.scraper.ScrapePage(ctx, pageURL)
			if err != nil {
				return nil, "", err
			}
			if mapping == nil || mapping.PDFURL == "" {
				return nil, "", domain.E(domain.KindNotFound, "no pdf link on landing page")
			}
			pdf, err := f.download(ctx, mapping.PDFURL)
			return pdf, mapping.PDFURL, err
		}); ok {
			return result, nil
		}
	}

	// Open-access lookup by DOI.
	if doi := req.DOI(); doi != "" && f.oa != nil && f.broker != nil {
		if result, ok := try("open_access", func() ([]byte, string, error) {
			oaURL, err := f.oa.BestPDFURL(ctx, doi)
			if err != nil {
				return nil, "", err
			}
			pdf, err := f.download(ctx, oaURL)
			return pdf, oaURL, err
		}); ok {
			return result, nil
		}
	}

	if lastErr != nil {
		return nil, domain.Ef(domain.KindOf(lastErr), lastErr, "all content sources failed after %d attempts", attempts)
	}
	err := domain.E(domain.KindNotFound, "no content source available")
	err.NextAction = "upload the PDF or provide a direct pdf_url"
	return nil, err
}

func (f *ContentFetcher) download(ctx context.Context, pdfURL string) ([]byte, error) {
	resp, err := f.broker.Get(ctx, httpclient.External, pdfURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.E(domain.KindNotFound, fmt.Sprintf("pdf download returned status %d", resp.StatusCode))
	}
	if resp.ContentLength > f.maxBytes {
		return nil, domain.E(domain.KindTooLarge,
			fmt.Sprintf("document is %d bytes, limit %d", resp.ContentLength, f.maxBytes))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, domain.Ef(domain.KindNetwork, err, "read pdf body")
	}
	return data, nil
}

// ValidatePDF enforces the magic-prefix and size checks every acquired
// document passes before storage.
func ValidatePDF(data []byte, maxBytes int64) error {
	if int64(len(data)) > maxBytes {
		e := domain.E(domain.KindTooLarge, fmt.Sprintf("document is %d bytes, limit %d", len(data), maxBytes))
		e.NextAction = "provide a smaller document"
		return e
	}
	if !strings.HasPrefix(string(data[:min(len(data), 5)]), "%PDF-") {
		e := domain.E(domain.KindInvalidPDF, "document does not start with %PDF-")
		e.NextAction = "verify the url points at a PDF, not an HTML page"
		return e
	}
	return nil
}
