// Package usecase holds the API-facing application services: submission,
// task inspection, literature reads, and citation graph queries.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/dedup"
	"github.com/litgraph/backend/internal/domain"
)

// SubmitStatus tells the caller what happened to their submission.
type SubmitStatus string

const (
	SubmitQueued     SubmitStatus = "queued"
	SubmitExisting   SubmitStatus = "existing"
	SubmitInProgress SubmitStatus = "in_progress"
)

type SubmitResult struct {
	Status SubmitStatus `json:"status"`
	TaskID string       `json:"task_id,omitempty"`
	LID    string       `json:"literature_id,omitempty"`
}

// GraphLimits bound neighborhood queries.
type GraphLimits struct {
	DepthDefault int
	DepthMax     int
	SeedsMax     int
}

type LiteratureService struct {
	lits   domain.LiteratureRepository
	tasks  domain.TaskRepository
	dedup  *dedup.Engine
	limits GraphLimits
	log    *logrus.Entry
}

func NewLiteratureService(lits domain.LiteratureRepository, tasks domain.TaskRepository,
	engine *dedup.Engine, limits GraphLimits, log *logrus.Logger) *LiteratureService {
	return &LiteratureService{
		lits:   lits,
		tasks:  tasks,
		dedup:  engine,
		limits: limits,
		log:    log.WithField("component", "usecase"),
	}
}

// Submit accepts one source for ingestion. Known sources short-circuit to the
// existing record or the task already processing them; everything else is
// queued.
func (s *LiteratureService) Submit(ctx context.Context, sub domain.Submission) (*SubmitResult, error) {
	if sub.Empty() {
		err := domain.E(domain.KindInvalidInput, "submission carries no usable source")
		err.NextAction = "provide a doi, arxiv_id, pmid, url, or pdf_url"
		return nil, err
	}

	// Read-only probe; the worker makes the authoritative claim later.
	outcome, err := s.dedup.Check(ctx, sub, "")
	if err != nil {
		return nil, err
	}
	switch outcome.Kind {
	case dedup.Existing:
		return &SubmitResult{Status: SubmitExisting, LID: outcome.LID}, nil
	case dedup.InProgress:
		return &SubmitResult{Status: SubmitInProgress, TaskID: outcome.TaskID}, nil
	}

	task := domain.NewTask(uuid.NewString(), sub)
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	if err := s.tasks.Enqueue(ctx, task.TaskID); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"task_id": task.TaskID, "source": sub.String()}).
		Info("submission queued")
	return &SubmitResult{Status: SubmitQueued, TaskID: task.TaskID}, nil
}

func (s *LiteratureService) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, domain.E(domain.KindNotFound, "task not found or expired: "+taskID)
	}
	return task, nil
}

// CancelTask flags a running task for cooperative cancellation.
func (s *LiteratureService) CancelTask(ctx context.Context, taskID string) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.ExecutionStatus.Terminal() {
		return domain.E(domain.KindConflict, "task already finished: "+taskID)
	}
	return s.tasks.RequestCancel(ctx, taskID)
}

// GetLiterature returns the summary view, fulltext stripped.
func (s *LiteratureService) GetLiterature(ctx context.Context, lid string) (*domain.Literature, error) {
	lit, err := s.lits.GetByLID(ctx, lid)
	if err != nil {
		return nil, err
	}
	if lit == nil {
		return nil, domain.E(domain.KindNotFound, "literature not found: "+lid)
	}
	return lit.Summary(), nil
}

func (s *LiteratureService) GetFulltext(ctx context.Context, lid string) (string, error) {
	lit, err := s.lits.GetByLID(ctx, lid)
	if err != nil {
		return "", err
	}
	if lit == nil {
		return "", domain.E(domain.KindNotFound, "literature not found: "+lid)
	}
	if lit.Content.Fulltext == "" {
		return "", domain.E(domain.KindNotFound, "no fulltext stored for "+lid)
	}
	return lit.Content.Fulltext, nil
}

// BatchGet returns summaries in request order; unknown ids come back nil.
func (s *LiteratureService) BatchGet(ctx context.Context, lids []string) ([]*domain.Literature, error) {
	if len(lids) == 0 {
		return nil, domain.E(domain.KindInvalidInput, "empty id list")
	}
	lits, err := s.lits.BatchGet(ctx, lids)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Literature, len(lits))
	for i, lit := range lits {
		if lit != nil {
			out[i] = lit.Summary()
		}
	}
	return out, nil
}

// Graph returns the depth-bounded citation neighborhood of the seed set.
func (s *LiteratureService) Graph(ctx context.Context, seeds []string, depth int) (*domain.GraphView, error) {
	if len(seeds) == 0 {
		return nil, domain.E(domain.KindInvalidInput, "at least one seed id required")
	}
	truncated := false
	if s.limits.SeedsMax > 0 && len(seeds) > s.limits.SeedsMax {
		seeds = seeds[:s.limits.SeedsMax]
		truncated = true
	}
	if depth <= 0 {
		depth = s.limits.DepthDefault
	}
	if s.limits.DepthMax > 0 && depth > s.limits.DepthMax {
		depth = s.limits.DepthMax
		truncated = true
	}
	view, err := s.lits.Neighborhood(ctx, seeds, depth)
	if err != nil {
		return nil, err
	}
	if truncated {
		view.Meta.Truncated = true
	}
	return view, nil
}

// Resolve maps an identifier to its record, submitting for ingestion when
// unknown. With a positive wait it blocks until the spawned task finishes or
// the window closes, then returns whatever state exists.
func (s *LiteratureService) Resolve(ctx context.Context, sub domain.Submission, wait time.Duration) (*domain.Literature, *SubmitResult, error) {
	result, err := s.Submit(ctx, sub)
	if err != nil {
		return nil, nil, err
	}
	if result.Status == SubmitExisting {
		lit, err := s.GetLiterature(ctx, result.LID)
		if err != nil {
			return nil, result, err
		}
		return lit, result, nil
	}
	if wait <= 0 || result.TaskID == "" {
		return nil, result, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	events, unsubscribe, err := s.tasks.SubscribeEvents(waitCtx, result.TaskID)
	if err != nil {
		return nil, result, nil
	}
	defer unsubscribe()

	for {
		select {
		case <-waitCtx.Done():
			return nil, result, nil
		case ev, ok := <-events:
			if !ok {
				return nil, result, nil
			}
			if ev.Payload == nil || !ev.Payload.ExecutionStatus.Terminal() {
				continue
			}
			if ev.Payload.LiteratureID == "" {
				return nil, result, nil
			}
			lit, err := s.GetLiterature(ctx, ev.Payload.LiteratureID)
			if err != nil {
				return nil, result, err
			}
			result.LID = ev.Payload.LiteratureID
			return lit, result, nil
		}
	}
}
