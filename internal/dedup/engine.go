// Package dedup decides whether a submission is already known, currently
// being processed, or genuinely new. Checks run cheapest-first: explicit
// identifiers, then source URLs, then the in-flight claim, and finally the
// content fingerprints computed after fetching.
package dedup

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/urlmap"
)

type Kind string

const (
	Existing   Kind = "existing"    // canonical record already in the graph
	InProgress Kind = "in_progress" // another active task owns this source
	New        Kind = "new"         // nothing known, proceed with ingestion
)

// Outcome is the verdict for one submission.
type Outcome struct {
	Kind   Kind
	LID    string // set for Existing
	TaskID string // set for InProgress
	Phase  string // which check decided
}

type Engine struct {
	lits  domain.LiteratureRepository
	tasks domain.TaskRepository
	log   *logrus.Entry
}

func NewEngine(lits domain.LiteratureRepository, tasks domain.TaskRepository, log *logrus.Logger) *Engine {
	return &Engine{lits: lits, tasks: tasks, log: log.WithField("component", "dedup")}
}

// Check runs the pre-fetch phases for a submission. taskID is the claimant
// for the in-flight phase; pass "" to skip claiming (read-only probe).
func (e *Engine) Check(ctx context.Context, sub domain.Submission, taskID string) (*Outcome, error) {
	// Phase 1: explicit identifiers.
	ids := []struct {
		typ   domain.AliasType
		value string
	}{
		{domain.AliasDOI, domain.NormalizeDOI(sub.DOI)},
		{domain.AliasArxiv, sub.ArxivID},
		{domain.AliasPMID, sub.PMID},
	}
	for _, id := range ids {
		if id.value == "" {
			continue
		}
		outcome, err := e.resolveAlias(ctx, id.typ, id.value, "identifier")
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			return outcome, nil
		}
	}

	// Phase 2: normalized source URLs.
	if sub.URL != "" {
		outcome, err := e.resolveAlias(ctx, domain.AliasURL, urlmap.NormalizeURL(sub.URL), "url")
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			return outcome, nil
		}
	}
	if sub.PDFURL != "" {
		outcome, err := e.resolveAlias(ctx, domain.AliasPDFURL, urlmap.NormalizeURL(sub.PDFURL), "url")
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			return outcome, nil
		}
	}

	// Phase 3: in-flight claim on the canonical source key.
	if taskID != "" {
		if key := sub.Key(); key != "" {
			holder, claimed, err := e.tasks.ClaimSource(ctx, key, taskID)
			if err != nil {
				return nil, err
			}
			if !claimed {
				e.log.WithFields(logrus.Fields{"task_id": taskID, "holder": holder}).
					Info("submission already in flight")
				return &Outcome{Kind: InProgress, TaskID: holder, Phase: "in_flight"}, nil
			}
		}
	}

	return &Outcome{Kind: New}, nil
}

// resolveAlias maps an alias hit to an outcome, cleaning up abandoned failed
// records so the submission can be retried.
func (e *Engine) resolveAlias(ctx context.Context, typ domain.AliasType, value, phase string) (*Outcome, error) {
	lid, err := e.lits.ResolveAlias(ctx, typ, value)
	if err != nil || lid == "" {
		return nil, err
	}
	retryable, err := e.cleanupIfAbandoned(ctx, lid)
	if err != nil {
		return nil, err
	}
	if retryable {
		return nil, nil
	}
	return &Outcome{Kind: Existing, LID: lid, Phase: phase}, nil
}

// cleanupIfAbandoned deletes a literature whose last ingestion terminally
// failed and which nothing resolved cites, freeing its aliases for a retry.
// Records cited by resolved literatures are kept even when failed.
func (e *Engine) cleanupIfAbandoned(ctx context.Context, lid string) (bool, error) {
	lit, err := e.lits.GetByLID(ctx, lid)
	if err != nil {
		return false, err
	}
	if lit == nil {
		// Dangling alias; let the caller treat the submission as new.
		return true, nil
	}
	if lit.TaskInfo == nil || lit.TaskInfo.Status != domain.TaskFailed {
		return false, nil
	}
	cited, err := e.lits.HasResolvedIncomingCites(ctx, lid)
	if err != nil {
		return false, err
	}
	if cited {
		return false, nil
	}
	e.log.WithField("lid", lid).Info("removing failed literature for retry")
	if err := e.lits.DeleteLiterature(ctx, lid); err != nil {
		return false, err
	}
	return true, nil
}

// ClaimIdentity runs phase 4: after metadata and content are fetched, the
// task claims the content fingerprints. When another literature already owns
// one, that LID wins and the caller merges instead of creating.
func (e *Engine) ClaimIdentity(ctx context.Context, lid, pdfMD5, titleFP string) (winner string, created bool, err error) {
	if pdfMD5 != "" {
		winner, created, err = e.lits.ClaimAlias(ctx, domain.AliasFingerprint, pdfMD5, lid)
		if err != nil {
			return "", false, err
		}
		if !created && winner != lid {
			e.log.WithFields(logrus.Fields{"lid": lid, "winner": winner}).
				Info("pdf fingerprint already claimed")
			return winner, false, nil
		}
	}
	if titleFP != "" {
		winner, created, err = e.lits.ClaimAlias(ctx, domain.AliasTitleFP, titleFP, lid)
		if err != nil {
			return "", false, err
		}
		if !created && winner != lid {
			e.log.WithFields(logrus.Fields{"lid": lid, "winner": winner}).
				Info("title fingerprint already claimed")
			return winner, false, nil
		}
	}
	return lid, true, nil
}

// RegisterAliases records every handle of a finished literature so future
// submissions resolve in phase 1 or 2.
func (e *Engine) RegisterAliases(ctx context.Context, lit *domain.Literature) error {
	type pair struct {
		typ   domain.AliasType
		value string
	}
	pairs := []pair{
		{domain.AliasDOI, domain.NormalizeDOI(lit.Identifiers.DOI)},
		{domain.AliasArxiv, lit.Identifiers.ArxivID},
		{domain.AliasPMID, lit.Identifiers.PMID},
	}
	for _, u := range lit.Identifiers.SourceURLs {
		pairs = append(pairs, pair{domain.AliasURL, urlmap.NormalizeURL(u)})
	}
	if lit.Content.PDFURL != "" {
		pairs = append(pairs, pair{domain.AliasPDFURL, urlmap.NormalizeURL(lit.Content.PDFURL)})
	}
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		if err := e.lits.AddAlias(ctx, lit.LID, p.typ, p.value); err != nil {
			return err
		}
	}
	return nil
}

// Release frees the in-flight claim once the task reaches a terminal state.
func (e *Engine) Release(ctx context.Context, sub domain.Submission, taskID string) {
	key := sub.Key()
	if key == "" {
		return
	}
	if err := e.tasks.ReleaseSource(ctx, key, taskID); err != nil {
		e.log.WithField("task_id", taskID).WithError(err).Warn("release source claim")
	}
}
