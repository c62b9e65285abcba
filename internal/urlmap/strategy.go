// Package urlmap resolves submitted URLs to paper identifiers. Each
// supported platform registers an adapter holding an ordered list of
// strategies; cheap regex extraction runs before page scraping and external
// database lookups.
package urlmap

import (
	"context"

	"github.com/litgraph/backend/internal/domain"
)

type StrategyKind string

const (
	StrategyRegex    StrategyKind = "regex"
	StrategyAPI      StrategyKind = "api"
	StrategyScrape   StrategyKind = "scrape"
	StrategyDatabase StrategyKind = "db"
)

// Strategy is one way of extracting identifiers from a URL. Run returns nil
// when the strategy produced nothing usable.
type Strategy struct {
	Name     string
	Kind     StrategyKind
	Priority int
	Run      func(ctx context.Context, rawURL string) (*domain.Mapping, error)
}

// Adapter handles the URLs of one platform.
type Adapter struct {
	Name       string
	CanHandle  func(rawURL string) bool
	Strategies []Strategy
}
