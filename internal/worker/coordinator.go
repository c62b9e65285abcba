// Package worker runs the ingestion pipeline: URL mapping, deduplication,
// the three fetch components, identity claiming, and citation linking. The
// coordinator owns one task at a time; the pool fans tasks out over worker
// goroutines.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/litgraph/backend/internal/dedup"
	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/fetcher"
	"github.com/litgraph/backend/internal/lid"
	"github.com/litgraph/backend/internal/linker"
	"github.com/litgraph/backend/internal/match"
	"github.com/litgraph/backend/internal/metrics"
)

// Component progress weights; they sum to 100.
const (
	weightMetadata   = 40
	weightContent    = 30
	weightReferences = 30
)

// Narrow views over the pipeline stages so tests can substitute fakes.

type URLMapper interface {
	Map(ctx context.Context, rawURL string) (*domain.Mapping, error)
}

type Deduper interface {
	Check(ctx context.Context, sub domain.Submission, taskID string) (*dedup.Outcome, error)
	ClaimIdentity(ctx context.Context, lid, pdfMD5, titleFP string) (string, bool, error)
	RegisterAliases(ctx context.Context, lit *domain.Literature) error
	Release(ctx context.Context, sub domain.Submission, taskID string)
}

type MetadataSource interface {
	Fetch(ctx context.Context, req *fetcher.Request) (*fetcher.MetadataResult, error)
}

type ContentSource interface {
	Fetch(ctx context.Context, req *fetcher.Request) (*fetcher.ContentResult, error)
}

type ReferencesSource interface {
	NeedsPDF(req *fetcher.Request) bool
	Fetch(ctx context.Context, req *fetcher.Request) (*fetcher.ReferencesResult, error)
}

// FulltextParser extracts body text from an acquired PDF.
type FulltextParser interface {
	ParseFulltext(ctx context.Context, pdf []byte) (*domain.ProviderRecord, string, error)
}

type ReferenceLinker interface {
	LinkReferences(ctx context.Context, srcLID string, refs []domain.Reference) (*linker.Stats, error)
	PromoteMatching(ctx context.Context, lit *domain.Literature) (int, error)
}

type Coordinator struct {
	tasks      domain.TaskRepository
	lits       domain.LiteratureRepository
	mapper     URLMapper
	dedup      Deduper
	metadata   MetadataSource
	content    ContentSource
	references ReferencesSource
	fulltext   FulltextParser
	linker     ReferenceLinker
	metrics    *metrics.Metrics

	softTimeout time.Duration
	hardTimeout time.Duration
	log         *logrus.Entry
}

type CoordinatorOptions struct {
	Tasks      domain.TaskRepository
	Literature domain.LiteratureRepository
	Mapper     URLMapper
	Dedup      Deduper
	Metadata   MetadataSource
	Content    ContentSource
	References ReferencesSource
	Fulltext   FulltextParser
	Linker     ReferenceLinker
	Metrics    *metrics.Metrics

	SoftTimeout time.Duration
	HardTimeout time.Duration
	Logger      *logrus.Logger
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	return &Coordinator{
		tasks:       opts.Tasks,
		lits:        opts.Literature,
		mapper:      opts.Mapper,
		dedup:       opts.Dedup,
		metadata:    opts.Metadata,
		content:     opts.Content,
		references:  opts.References,
		fulltext:    opts.Fulltext,
		linker:      opts.Linker,
		metrics:     opts.Metrics,
		softTimeout: opts.SoftTimeout,
		hardTimeout: opts.HardTimeout,
		log:         opts.Logger.WithField("component", "coordinator"),
	}
}

// Process runs one task end to end. It always leaves the task in a terminal
// state unless the snapshot has already expired.
func (c *Coordinator) Process(ctx context.Context, taskID string) error {
	task, err := c.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		c.log.WithField("task_id", taskID).Warn("dequeued task has no snapshot, skipping")
		return nil
	}
	if task.ExecutionStatus.Terminal() {
		return nil
	}

	if c.hardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.hardTimeout)
		defer cancel()
	}
	if c.softTimeout > 0 {
		timer := time.AfterFunc(c.softTimeout, func() {
			c.log.WithField("task_id", taskID).Warn("task exceeded soft timeout")
		})
		defer timer.Stop()
	}

	started := time.Now()
	log := c.log.WithField("task_id", taskID)
	defer c.dedup.Release(context.WithoutCancel(ctx), task.SubmittedSource, taskID)

	outcome := c.run(ctx, task, log)
	if c.metrics != nil {
		c.metrics.TasksTotal.WithLabelValues(outcome).Inc()
		c.metrics.TaskDuration.Observe(time.Since(started).Seconds())
	}
	log.WithFields(logrus.Fields{"outcome": outcome, "elapsed": time.Since(started)}).
		Info("task finished")
	return nil
}

// run returns the metrics outcome label.
func (c *Coordinator) run(ctx context.Context, task *domain.Task, log *logrus.Entry) string {
	task.ExecutionStatus = domain.TaskProcessing
	c.update(ctx, task, "starting")

	if cancelled := c.checkCancel(ctx, task); cancelled {
		return "cancelled"
	}

	// URL mapping.
	req := &fetcher.Request{Submission: task.SubmittedSource}
	if task.SubmittedSource.URL != "" && c.mapper != nil {
		c.update(ctx, task, "url_mapping")
		mapping, err := c.mapper.Map(ctx, task.SubmittedSource.URL)
		if err != nil && domain.KindOf(err) == domain.KindCancelled {
			return c.fail(ctx, task, err)
		}
		if err != nil {
			log.WithError(err).Warn("url mapping failed, continuing with raw submission")
		}
		req.Mapping = mapping
	}

	// Pre-fetch dedup.
	c.update(ctx, task, "deduplication")
	outcome, err := c.dedup.Check(ctx, task.SubmittedSource, task.TaskID)
	if err != nil {
		return c.fail(ctx, task, err)
	}
	switch outcome.Kind {
	case dedup.Existing:
		c.observeDedup(outcome.Phase)
		// The submission may carry handles the canonical record lacks.
		known := &domain.Literature{
			LID:         outcome.LID,
			Identifiers: c.mergeIdentifiers(req, nil),
		}
		if task.SubmittedSource.URL != "" {
			known.Identifiers.SourceURLs = append(known.Identifiers.SourceURLs, task.SubmittedSource.URL)
		}
		known.Content.PDFURL = task.SubmittedSource.PDFURL
		return c.duplicate(ctx, task, outcome.LID, known)
	case dedup.InProgress:
		c.observeDedup(outcome.Phase)
		task.CurrentStage = "already processing as task " + outcome.TaskID
		task.ResultType = domain.ResultDuplicate
		task.ExecutionStatus = domain.TaskCompleted
		task.OverallProgress = 100
		c.finish(ctx, task, domain.EventCompleted)
		return "duplicate"
	}

	if cancelled := c.checkCancel(ctx, task); cancelled {
		return "cancelled"
	}

	// Metadata and content run concurrently; references may need the PDF.
	c.setComponent(&task.Components.Metadata, domain.ComponentProcessing, "fetching", 10)
	c.setComponent(&task.Components.Content, domain.ComponentProcessing, "fetching", 10)
	if c.references.NeedsPDF(req) {
		c.setComponent(&task.Components.References, domain.ComponentWaiting, "waiting for content", 0)
	}
	c.update(ctx, task, "fetching")

	var (
		wg         sync.WaitGroup
		metaResult *fetcher.MetadataResult
		metaErr    error
		contResult *fetcher.ContentResult
		contErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		metaResult, metaErr = c.metadata.Fetch(ctx, req)
	}()
	go func() {
		defer wg.Done()
		contResult, contErr = c.content.Fetch(ctx, req)
	}()
	wg.Wait()

	if metaErr != nil && contErr == nil && len(contResult.PDF) > 0 {
		// No provider resolved the submission, but content fetch produced a
		// document; retry the waterfall so the header parse can run.
		req.PDF = contResult.PDF
		metaResult, metaErr = c.metadata.Fetch(ctx, req)
	}
	if metaErr != nil {
		// No metadata means no record; the task fails.
		c.failComponent(&task.Components.Metadata, metaErr)
		return c.fail(ctx, task, metaErr)
	}
	task.Components.Metadata.Source = metaResult.Source
	task.Components.Metadata.Attempts = metaResult.Attempts
	c.setComponent(&task.Components.Metadata, domain.ComponentSuccess, "done", 100)

	if contErr != nil {
		// Content is best-effort; record the failure and move on.
		c.failComponent(&task.Components.Content, contErr)
		c.publish(ctx, task, domain.EventError)
	} else {
		req.PDF = contResult.PDF
		task.Components.Content.Source = contResult.Source
		task.Components.Content.Attempts = contResult.Attempts
		c.setComponent(&task.Components.Content, domain.ComponentSuccess, "done", 100)
	}
	c.update(ctx, task, "fetched")

	if cancelled := c.checkCancel(ctx, task); cancelled {
		return "cancelled"
	}

	// A submission that yields neither identifiers nor a document cannot
	// become a literature.
	md := fetcher.MergeRecords(metaResult.Record)
	identifiers := c.mergeIdentifiers(req, metaResult.Record)
	if identifiers.DOI == "" && identifiers.ArxivID == "" && identifiers.PMID == "" && len(req.PDF) == 0 {
		err := domain.E(domain.KindUnsupportedSource, "source yields no identifier and no document")
		err.NextAction = "provide a DOI or arXiv ID, or upload the PDF"
		return c.fail(ctx, task, err)
	}

	literatureID := lid.Generate(&md)
	lit := &domain.Literature{
		LID:         literatureID,
		Identifiers: identifiers,
		Metadata:    md,
		TaskInfo:    &domain.TaskInfo{TaskID: task.TaskID, Status: domain.TaskProcessing},
	}
	if contErr == nil {
		lit.Identifiers.Fingerprint = contResult.MD5
		lit.Content.PDFURL = contResult.PDFURL
		lit.Content.ParsingMethod = contResult.Source
	}
	lit.Content.SourcePageURL = req.PageURL()
	if task.SubmittedSource.URL != "" {
		lit.Identifiers.SourceURLs = append(lit.Identifiers.SourceURLs, task.SubmittedSource.URL)
	}
	if task.SubmittedSource.PDFURL != "" {
		lit.Identifiers.SourceURLs = append(lit.Identifiers.SourceURLs, task.SubmittedSource.PDFURL)
	}
	if _, err := c.lits.UpsertLiterature(ctx, lit); err != nil {
		return c.fail(ctx, task, err)
	}

	// Post-fetch dedup: claim the content fingerprints. Losing the claim
	// means another task built the same work first; merge into the winner.
	names := make([]string, 0, len(md.Authors))
	for _, a := range md.Authors {
		names = append(names, a.Name)
	}
	titleFP := match.TitleFingerprint(md.Title, names, md.Year)
	pdfMD5 := ""
	if contErr == nil {
		pdfMD5 = contResult.MD5
	}
	winner, created, err := c.dedup.ClaimIdentity(ctx, literatureID, pdfMD5, titleFP)
	if err != nil {
		return c.fail(ctx, task, err)
	}
	if !created && winner != literatureID {
		c.observeDedup("fingerprint")
		if err := c.lits.DeleteLiterature(ctx, literatureID); err != nil {
			c.log.WithField("lid", literatureID).WithError(err).Warn("removing losing placeholder")
		}
		return c.duplicate(ctx, task, winner, lit)
	}

	// References, now that the PDF (if any) is available.
	c.setComponent(&task.Components.References, domain.ComponentProcessing, "fetching", 10)
	c.update(ctx, task, "references")
	refResult, refErr := c.references.Fetch(ctx, req)
	if refErr != nil {
		c.failComponent(&task.Components.References, refErr)
		c.publish(ctx, task, domain.EventError)
	} else {
		lit.References = refResult.References
		task.Components.References.Source = refResult.Source
		task.Components.References.Attempts = refResult.Attempts
		c.setComponent(&task.Components.References, domain.ComponentSuccess, "done", 100)
	}

	// Body text extraction is best-effort; the record stands without it.
	if c.fulltext != nil && len(req.PDF) > 0 {
		if _, body, err := c.fulltext.ParseFulltext(ctx, req.PDF); err != nil {
			log.WithError(err).Warn("fulltext extraction failed")
		} else if body != "" {
			lit.Content.Fulltext = body
			lit.Content.ParsingMethod = "grobid"
		}
	}

	lit.TaskInfo.Status = domain.TaskCompleted
	if _, err := c.lits.UpsertLiterature(ctx, lit); err != nil {
		return c.fail(ctx, task, err)
	}

	// Citation linking and alias registration never fail the task; the
	// record is already durable.
	if refErr == nil && len(lit.References) > 0 {
		if _, err := c.linker.LinkReferences(ctx, lit.LID, lit.References); err != nil {
			log.WithError(err).Warn("citation linking incomplete")
		}
	}
	if _, err := c.linker.PromoteMatching(ctx, lit); err != nil {
		log.WithError(err).Warn("placeholder promotion failed")
	}
	if err := c.dedup.RegisterAliases(ctx, lit); err != nil {
		log.WithError(err).Warn("alias registration incomplete")
	}

	task.ResultType = domain.ResultCreated
	task.LiteratureID = lit.LID
	task.ExecutionStatus = domain.TaskCompleted
	task.OverallProgress = 100
	task.CurrentStage = "completed"
	c.finish(ctx, task, domain.EventCompleted)
	return "created"
}

// mergeIdentifiers folds submission, mapping, and provider identifiers,
// strongest source first.
func (c *Coordinator) mergeIdentifiers(req *fetcher.Request, rec *domain.ProviderRecord) domain.Identifiers {
	ids := domain.Identifiers{
		DOI:     req.DOI(),
		ArxivID: req.ArxivID(),
		PMID:    req.Submission.PMID,
	}
	if rec != nil {
		if ids.DOI == "" {
			ids.DOI = domain.NormalizeDOI(rec.Identifiers.DOI)
		}
		if ids.ArxivID == "" {
			ids.ArxivID = rec.Identifiers.ArxivID
		}
		if ids.PMID == "" {
			ids.PMID = rec.Identifiers.PMID
		}
	}
	return ids
}

// duplicate completes the task against an existing record. Aliases carried by
// the losing submission are merged into the winning LID first.
func (c *Coordinator) duplicate(ctx context.Context, task *domain.Task, lid string, lit *domain.Literature) string {
	if lit != nil {
		merged := *lit
		merged.LID = lid
		if err := c.dedup.RegisterAliases(ctx, &merged); err != nil {
			c.log.WithField("lid", lid).WithError(err).Warn("alias merge into existing record incomplete")
		}
	}
	task.ResultType = domain.ResultDuplicate
	task.LiteratureID = lid
	task.ExecutionStatus = domain.TaskCompleted
	task.OverallProgress = 100
	task.CurrentStage = "completed"
	c.finish(ctx, task, domain.EventCompleted)
	return "duplicate"
}

func (c *Coordinator) fail(ctx context.Context, task *domain.Task, err error) string {
	if domain.KindOf(err) == domain.KindCancelled {
		task.ExecutionStatus = domain.TaskCancelled
		task.CurrentStage = "cancelled"
		c.finish(ctx, task, domain.EventStatus)
		return "cancelled"
	}
	task.ExecutionStatus = domain.TaskFailed
	task.ErrorInfo = domain.InfoFrom(err)
	task.CurrentStage = "failed"
	c.finish(ctx, task, domain.EventFailed)
	return "failed"
}

// checkCancel consumes a pending cancel request, if any.
func (c *Coordinator) checkCancel(ctx context.Context, task *domain.Task) bool {
	requested, err := c.tasks.CancelRequested(ctx, task.TaskID)
	if err != nil {
		c.log.WithField("task_id", task.TaskID).WithError(err).Warn("cancel flag check failed")
		return false
	}
	if !requested {
		return false
	}
	task.ExecutionStatus = domain.TaskCancelled
	task.CurrentStage = "cancelled"
	c.finish(ctx, task, domain.EventStatus)
	return true
}

func (c *Coordinator) setComponent(cs *domain.ComponentStatus, state domain.ComponentState, stage string, progress int) {
	cs.Status = state
	cs.Stage = stage
	// Progress never moves backwards within a component.
	if progress > cs.Progress {
		cs.Progress = progress
	}
}

func (c *Coordinator) failComponent(cs *domain.ComponentStatus, err error) {
	cs.Status = domain.ComponentFailed
	cs.Stage = "failed"
	info := domain.InfoFrom(err)
	cs.ErrorInfo = info
	cs.NextAction = info.NextAction
}

// update recomputes the weighted progress, saves the snapshot, and publishes
// a status event.
func (c *Coordinator) update(ctx context.Context, task *domain.Task, stage string) {
	task.CurrentStage = stage
	c.recomputeProgress(task)
	c.publish(ctx, task, domain.EventStatus)
}

func (c *Coordinator) finish(ctx context.Context, task *domain.Task, kind domain.TaskEventKind) {
	c.recomputeProgress(task)
	c.publish(ctx, task, kind)
}

func (c *Coordinator) recomputeProgress(task *domain.Task) {
	progress := (task.Components.Metadata.Progress*weightMetadata +
		task.Components.Content.Progress*weightContent +
		task.Components.References.Progress*weightReferences) / 100
	if task.ExecutionStatus.Terminal() {
		progress = 100
	}
	if progress > task.OverallProgress {
		task.OverallProgress = progress
	}
}

func (c *Coordinator) publish(ctx context.Context, task *domain.Task, kind domain.TaskEventKind) {
	// Snapshot first so subscribers who miss the event can still poll.
	if err := c.tasks.Save(ctx, task); err != nil {
		c.log.WithField("task_id", task.TaskID).WithError(err).Warn("task snapshot save failed")
	}
	ev := &domain.TaskEvent{
		Kind:      kind,
		TaskID:    task.TaskID,
		Timestamp: time.Now().UTC(),
		Payload:   task,
	}
	if err := c.tasks.PublishEvent(ctx, ev); err != nil {
		c.log.WithField("task_id", task.TaskID).WithError(err).Warn("event publish failed")
	}
}

func (c *Coordinator) observeDedup(phase string) {
	if c.metrics != nil {
		c.metrics.DedupHitsTotal.WithLabelValues(phase).Inc()
	}
}
