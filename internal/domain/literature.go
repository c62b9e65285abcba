package domain

import (
	"context"
	"time"
)

// Literature is the canonical, deduplicated record for one work. The LID is
// derived deterministically from normalized metadata and never changes after
// creation; identifiers only grow.
type Literature struct {
	LID         string      `json:"lid"`
	Identifiers Identifiers `json:"identifiers"`
	Metadata    Metadata    `json:"metadata"`
	Content     Content     `json:"content"`
	References  []Reference `json:"references,omitempty"`
	TaskInfo    *TaskInfo   `json:"task_info,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Identifiers holds every external handle known for a literature. SourceURLs
// keeps the original submitted forms, version suffixes included.
type Identifiers struct {
	DOI         string   `json:"doi,omitempty"`
	ArxivID     string   `json:"arxiv_id,omitempty"`
	PMID        string   `json:"pmid,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	SourceURLs  []string `json:"source_urls,omitempty"`
}

type Author struct {
	Name        string `json:"name"`
	Sequence    string `json:"sequence,omitempty"`
	Affiliation string `json:"affiliation,omitempty"`
}

// Metadata is the normalized bibliographic record. SourcePriority lists the
// providers that contributed fields, highest priority first.
type Metadata struct {
	Title          string   `json:"title"`
	Authors        []Author `json:"authors,omitempty"`
	Year           int      `json:"year,omitempty"`
	Journal        string   `json:"journal,omitempty"`
	Abstract       string   `json:"abstract,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	SourcePriority []string `json:"source_priority,omitempty"`
}

type Content struct {
	PDFURL        string  `json:"pdf_url,omitempty"`
	SourcePageURL string  `json:"source_page_url,omitempty"`
	Fulltext      string  `json:"fulltext,omitempty"`
	ParsingMethod string  `json:"parsing_method,omitempty"`
	QualityScore  float64 `json:"quality_score,omitempty"`
}

// Reference is one entry of a literature's bibliography, as normalized by the
// references fetcher.
type Reference struct {
	RawText string           `json:"raw_text"`
	Parsed  *ParsedReference `json:"parsed,omitempty"`
	Source  string           `json:"source,omitempty"`
}

type ParsedReference struct {
	Title   string   `json:"title,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Year    int      `json:"year,omitempty"`
	DOI     string   `json:"doi,omitempty"`
	ArxivID string   `json:"arxiv_id,omitempty"`
}

// TaskInfo is the snapshot of the last or ongoing ingestion task embedded on
// the literature node.
type TaskInfo struct {
	TaskID string          `json:"task_id"`
	Status ExecutionStatus `json:"status"`
}

// Summary strips the heavy fields (fulltext, raw reference text) for list
// and read endpoints.
func (l *Literature) Summary() *Literature {
	s := *l
	s.Content.Fulltext = ""
	if len(l.References) > 0 {
		refs := make([]Reference, len(l.References))
		for i, r := range l.References {
			refs[i] = Reference{Parsed: r.Parsed, Source: r.Source}
		}
		s.References = refs
	}
	return &s
}

// GraphView is a depth-bounded neighborhood of the citation graph: the nodes
// reachable from the seed set plus the induced edges among them. Adjacency
// only, never recursive object graphs; citation networks contain cycles.
type GraphView struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	Meta  GraphMeta   `json:"metadata"`
}

type GraphNode struct {
	ID      string   `json:"id"`
	Title   string   `json:"title,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Year    int      `json:"year,omitempty"`
	Type    string   `json:"type"` // "literature" or "unresolved"
}

type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight,omitempty"`
}

type GraphMeta struct {
	NodeCount int  `json:"node_count"`
	EdgeCount int  `json:"edge_count"`
	Depth     int  `json:"depth"`
	Truncated bool `json:"truncated,omitempty"`
}

// LiteratureRepository is the alias-indexed graph DAO. Implementations keep
// two uniqueness guarantees the rest of the system depends on: Literature.lid
// and (alias_type, alias_value).
type LiteratureRepository interface {
	// UpsertLiterature creates or updates the node keyed by lit.LID.
	// Idempotent: re-running with identical input returns created=false.
	UpsertLiterature(ctx context.Context, lit *Literature) (created bool, err error)
	GetByLID(ctx context.Context, lid string) (*Literature, error)
	BatchGet(ctx context.Context, lids []string) ([]*Literature, error)
	SetTaskInfo(ctx context.Context, lid string, info TaskInfo) error

	// AddAlias creates the Alias node and IDENTIFIES edge; no-op when the
	// pair already points at lid.
	AddAlias(ctx context.Context, lid string, typ AliasType, value string) error
	// ResolveAlias returns the LID identified by (typ, value), or "" when
	// the alias is unknown.
	ResolveAlias(ctx context.Context, typ AliasType, value string) (string, error)
	// ClaimAlias atomically binds (typ, value) to lid. When another
	// literature already holds the alias, the existing LID is returned and
	// created is false. This conditional insert is the phase-4 dedup race
	// arbiter.
	ClaimAlias(ctx context.Context, typ AliasType, value, lid string) (winner string, created bool, err error)

	LinkCites(ctx context.Context, srcLID, dstID string, confidence float64, source string) error
	CreateUnresolved(ctx context.Context, raw string, parsed *ParsedReference) (string, error)
	// PromoteUnresolved relabels the placeholder as the given literature,
	// preserving every incident edge.
	PromoteUnresolved(ctx context.Context, unresolvedID, lid string) error
	FindUnresolvedByFingerprint(ctx context.Context, fingerprint string) ([]string, error)

	// DeleteLiterature detach-deletes the node, cascading aliases and
	// citation edges. Used only for failed-document cleanup.
	DeleteLiterature(ctx context.Context, lid string) error
	HasResolvedIncomingCites(ctx context.Context, lid string) (bool, error)

	// FindByTitleCandidates returns fuzzy-match candidates sharing indexed
	// title terms, capped at limit.
	FindByTitleCandidates(ctx context.Context, title string, limit int) ([]*Literature, error)
	Neighborhood(ctx context.Context, seeds []string, depth int) (*GraphView, error)

	Ping(ctx context.Context) error
}
