// Package linker connects a literature's references to graph nodes. Exact
// identifier matches link directly; fuzzy title matches pass a cheap gate
// before the full similarity check; everything else becomes an unresolved
// placeholder so no citation is ever dropped.
package linker

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/match"
)

const (
	authorSimThreshold = 0.8
	authorMatchRate    = 0.5
	candidateLimit     = 10
)

// Stats summarizes one linking pass.
type Stats struct {
	Total      int `json:"total"`
	Linked     int `json:"linked"`
	Unresolved int `json:"unresolved"`
	Skipped    int `json:"skipped"`
}

type Linker struct {
	lits    domain.LiteratureRepository
	gate    float64
	accept  float64
	yearTol int
	log     *logrus.Entry
}

func New(lits domain.LiteratureRepository, gate, accept float64, yearTol int, log *logrus.Logger) *Linker {
	return &Linker{
		lits:    lits,
		gate:    gate,
		accept:  accept,
		yearTol: yearTol,
		log:     log.WithField("component", "linker"),
	}
}

// LinkReferences creates one CITES edge per reference of srcLID.
func (l *Linker) LinkReferences(ctx context.Context, srcLID string, refs []domain.Reference) (*Stats, error) {
	stats := &Stats{}
	for _, ref := range refs {
		stats.Total++
		if err := ctx.Err(); err != nil {
			return stats, domain.Ef(domain.KindCancelled, err, "linking interrupted")
		}

		dstLID, confidence, err := l.resolve(ctx, ref)
		if err != nil {
			return stats, err
		}

		if dstLID == srcLID {
			// Truncated reference strings occasionally point a paper at
			// itself; a self-loop is never a real citation.
			stats.Skipped++
			continue
		}

		if dstLID != "" {
			if err := l.lits.LinkCites(ctx, srcLID, dstLID, confidence, ref.Source); err != nil {
				return stats, err
			}
			stats.Linked++
			continue
		}

		if ref.RawText == "" && (ref.Parsed == nil || ref.Parsed.Title == "") {
			stats.Skipped++
			continue
		}
		unresolvedID, err := l.lits.CreateUnresolved(ctx, ref.RawText, ref.Parsed)
		if err != nil {
			return stats, err
		}
		if err := l.lits.LinkCites(ctx, srcLID, unresolvedID, 0, ref.Source); err != nil {
			return stats, err
		}
		stats.Unresolved++
	}
	l.log.WithFields(logrus.Fields{
		"lid":        srcLID,
		"linked":     stats.Linked,
		"unresolved": stats.Unresolved,
	}).Info("references linked")
	return stats, nil
}

// resolve maps one reference to an existing LID, or "" when nothing matches.
func (l *Linker) resolve(ctx context.Context, ref domain.Reference) (string, float64, error) {
	if ref.Parsed == nil {
		return "", 0, nil
	}
	if ref.Parsed.DOI != "" {
		lid, err := l.lits.ResolveAlias(ctx, domain.AliasDOI, domain.NormalizeDOI(ref.Parsed.DOI))
		if err != nil {
			return "", 0, err
		}
		if lid != "" {
			return lid, 1.0, nil
		}
	}
	if ref.Parsed.ArxivID != "" {
		lid, err := l.lits.ResolveAlias(ctx, domain.AliasArxiv, ref.Parsed.ArxivID)
		if err != nil {
			return "", 0, err
		}
		if lid != "" {
			return lid, 1.0, nil
		}
	}
	if ref.Parsed.Title == "" {
		return "", 0, nil
	}
	return l.fuzzyResolve(ctx, ref.Parsed)
}

func (l *Linker) fuzzyResolve(ctx context.Context, parsed *domain.ParsedReference) (string, float64, error) {
	candidates, err := l.lits.FindByTitleCandidates(ctx, parsed.Title, candidateLimit)
	if err != nil {
		return "", 0, err
	}

	bestLID := ""
	bestScore := 0.0
	for _, candidate := range candidates {
		if candidate == nil || candidate.Metadata.Title == "" {
			continue
		}
		// Cheap gate before the composite score.
		if match.TokenOverlap(parsed.Title, candidate.Metadata.Title) < l.gate {
			continue
		}
		score := match.TitleSimilarity(parsed.Title, candidate.Metadata.Title)
		if score < l.accept {
			continue
		}
		if !l.yearCompatible(parsed.Year, candidate.Metadata.Year) {
			continue
		}
		names := make([]string, 0, len(candidate.Metadata.Authors))
		for _, a := range candidate.Metadata.Authors {
			names = append(names, a.Name)
		}
		if !match.AuthorsMatch(parsed.Authors, names, authorSimThreshold, authorMatchRate) {
			continue
		}
		if score > bestScore {
			bestLID, bestScore = candidate.LID, score
		}
	}
	return bestLID, bestScore, nil
}

func (l *Linker) yearCompatible(a, b int) bool {
	if a == 0 || b == 0 {
		return true
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= l.yearTol
}

// PromoteMatching upgrades unresolved placeholders that fingerprint-match a
// newly created literature, keeping their citation edges.
func (l *Linker) PromoteMatching(ctx context.Context, lit *domain.Literature) (int, error) {
	names := make([]string, 0, len(lit.Metadata.Authors))
	for _, a := range lit.Metadata.Authors {
		names = append(names, a.Name)
	}
	fingerprint := match.TitleFingerprint(lit.Metadata.Title, names, lit.Metadata.Year)

	ids, err := l.lits.FindUnresolvedByFingerprint(ctx, fingerprint)
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		if err := l.lits.PromoteUnresolved(ctx, id, lit.LID); err != nil {
			l.log.WithFields(logrus.Fields{"unresolved": id, "lid": lit.LID}).
				WithError(err).Warn("promotion failed")
			continue
		}
		promoted++
	}
	if promoted > 0 {
		l.log.WithFields(logrus.Fields{"lid": lit.LID, "count": promoted}).
			Info("unresolved placeholders promoted")
	}
	return promoted, nil
}
