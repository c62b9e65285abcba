package urlmap

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/domain"
)

// DatabaseLookup resolves a URL through an external paper database.
// *semanticscholar.Client satisfies it.
type DatabaseLookup interface {
	ByURL(ctx context.Context, pageURL string) (*domain.ProviderRecord, error)
}

type Mapper struct {
	adapters  []Adapter
	threshold float64
	log       *logrus.Entry
}

// NewMapper registers the platform adapters in match order. The generic
// adapter is registered last and claims everything.
func NewMapper(scraper *Scraper, lookup DatabaseLookup, threshold float64, log *logrus.Logger) *Mapper {
	return &Mapper{
		adapters: []Adapter{
			arxivAdapter(),
			doiOrgAdapter(),
			ieeeAdapter(scraper, lookup),
			natureAdapter(scraper),
			acmAdapter(scraper),
			cvfAdapter(scraper),
			genericAdapter(scraper, lookup),
		},
		threshold: threshold,
		log:       log.WithField("component", "urlmap"),
	}
}

// Threshold is the confidence at which a mapping counts as resolved.
func (m *Mapper) Threshold() float64 { return m.threshold }

// Map resolves one URL. Strategies run cheapest-first; the first mapping at
// or above the threshold wins, otherwise the best sub-threshold mapping with
// any useful information is returned. A nil mapping with nil error means no
// strategy produced anything.
func (m *Mapper) Map(ctx context.Context, rawURL string) (*domain.Mapping, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, domain.Ef(domain.KindInvalidInput, err, "urlmap: not a url: %s", rawURL)
	}

	adapter := m.adapterFor(rawURL)
	strategies := append([]Strategy(nil), adapter.Strategies...)
	sort.SliceStable(strategies, func(i, j int) bool {
		return strategies[i].Priority < strategies[j].Priority
	})

	var best *domain.Mapping
	var lastErr error
	for _, strategy := range strategies {
		mapping, err := strategy.Run(ctx, rawURL)
		if err != nil {
			if domain.KindOf(err) == domain.KindCancelled {
				return nil, err
			}
			m.log.WithFields(logrus.Fields{
				"adapter":  adapter.Name,
				"strategy": strategy.Name,
				"url":      rawURL,
			}).WithError(err).Debug("strategy failed")
			lastErr = err
			continue
		}
		if mapping == nil {
			continue
		}
		mapping.Adapter = adapter.Name
		if mapping.Strategy == "" {
			mapping.Strategy = string(strategy.Kind)
		}
		if best == nil || mapping.Confidence > best.Confidence {
			best = mapping
		}
		if best.Confidence >= m.threshold && best.HasIdentifiers() {
			break
		}
	}

	if best == nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, nil
	}
	if !best.HasIdentifiers() && !best.HasUsefulInfo() {
		return nil, nil
	}
	return best, nil
}

func (m *Mapper) adapterFor(rawURL string) Adapter {
	for _, a := range m.adapters {
		if a.CanHandle(rawURL) {
			return a
		}
	}
	return m.adapters[len(m.adapters)-1]
}

// NormalizeURL canonicalizes a URL for alias lookups: lowercase scheme and
// host, fragment and tracking parameters dropped, arXiv variants collapsed
// to the abs page without version suffix.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if id := arxivIDFromURL(rawURL); id != "" {
		return "https://arxiv.org/abs/" + id
	}

	q := u.Query()
	for param := range q {
		if strings.HasPrefix(param, "utm_") || param == "ref" || param == "fbclid" || param == "gclid" {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

func arxivIDFromURL(rawURL string) string {
	if m := arxivNewRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if m := arxivOldRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}
