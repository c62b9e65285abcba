package worker

import (
	"context"
	"crypto/md5"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/backend/internal/dedup"
	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/fetcher"
	"github.com/litgraph/backend/internal/linker"
	"github.com/litgraph/backend/internal/match"
	"github.com/litgraph/backend/internal/repository/memstore"
)

type stubMapper struct {
	mapping *domain.Mapping
	err     error
}

func (s *stubMapper) Map(context.Context, string) (*domain.Mapping, error) {
	return s.mapping, s.err
}

type stubMetadata struct {
	result *fetcher.MetadataResult
	err    error
}

func (s *stubMetadata) Fetch(context.Context, *fetcher.Request) (*fetcher.MetadataResult, error) {
	return s.result, s.err
}

type stubContent struct {
	result *fetcher.ContentResult
	err    error
}

func (s *stubContent) Fetch(context.Context, *fetcher.Request) (*fetcher.ContentResult, error) {
	return s.result, s.err
}

type stubFulltext struct {
	body string
	err  error
}

func (s *stubFulltext) ParseFulltext(context.Context, []byte) (*domain.ProviderRecord, string, error) {
	return nil, s.body, s.err
}

type stubReferences struct {
	result *fetcher.ReferencesResult
	err    error
}

func (s *stubReferences) NeedsPDF(req *fetcher.Request) bool {
	return req.DOI() == "" && req.ArxivID() == ""
}

func (s *stubReferences) Fetch(context.Context, *fetcher.Request) (*fetcher.ReferencesResult, error) {
	return s.result, s.err
}

type harness struct {
	coordinator *Coordinator
	lits        *memstore.LiteratureStore
	tasks       *memstore.TaskStore
	metadata    *stubMetadata
	content     *stubContent
	references  *stubReferences
	fulltext    *stubFulltext
}

func metadataResult(title string, year int, doi string) *fetcher.MetadataResult {
	return &fetcher.MetadataResult{
		Record: &domain.ProviderRecord{
			Provider: "crossref",
			Metadata: domain.Metadata{
				Title:   title,
				Year:    year,
				Authors: []domain.Author{{Name: "Ada Lovelace"}},
			},
			Identifiers: domain.Identifiers{DOI: doi},
		},
		Source:     "crossref",
		Confidence: 0.95,
		Attempts:   1,
	}
}

func contentResult(body string) *fetcher.ContentResult {
	pdf := []byte("%PDF-1.5 " + body)
	return &fetcher.ContentResult{
		PDF:      pdf,
		PDFURL:   "https://example.org/paper.pdf",
		Source:   "direct",
		MD5:      fmt.Sprintf("%x", md5.Sum(pdf)),
		Attempts: 1,
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	lits := memstore.NewLiteratureStore()
	tasks := memstore.NewTaskStore()
	h := &harness{
		lits:     lits,
		tasks:    tasks,
		metadata: &stubMetadata{result: metadataResult("Notes on the Analytical Engine", 1843, "10.1/engine")},
		content:  &stubContent{result: contentResult("analytical engine")},
		references: &stubReferences{result: &fetcher.ReferencesResult{
			References: []domain.Reference{
				{RawText: "Menabrea (1842)", Parsed: &domain.ParsedReference{Title: "Sketch of the Analytical Engine", Year: 1842}},
			},
			Source:   "crossref",
			Attempts: 1,
		}},
		fulltext: &stubFulltext{body: "It may be desirable to explain..."},
	}
	h.coordinator = NewCoordinator(CoordinatorOptions{
		Tasks:      tasks,
		Literature: lits,
		Mapper:     &stubMapper{},
		Dedup:      dedup.NewEngine(lits, tasks, log),
		Metadata:   h.metadata,
		Content:    h.content,
		References: h.references,
		Fulltext:   h.fulltext,
		Linker:     linker.New(lits, 0.4, 0.6, 1, log),
		Logger:     log,
	})
	return h
}

func submit(t *testing.T, h *harness, sub domain.Submission) *domain.Task {
	t.Helper()
	task := domain.NewTask("task-1", sub)
	require.NoError(t, h.tasks.Save(context.Background(), task))
	return task
}

func TestProcessCreatesLiterature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	submit(t, h, domain.Submission{DOI: "10.1/engine"})

	require.NoError(t, h.coordinator.Process(ctx, "task-1"))

	task, err := h.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.ExecutionStatus)
	assert.Equal(t, domain.ResultCreated, task.ResultType)
	assert.Equal(t, 100, task.OverallProgress)
	require.NotEmpty(t, task.LiteratureID)

	lit, err := h.lits.GetByLID(ctx, task.LiteratureID)
	require.NoError(t, err)
	require.NotNil(t, lit)
	assert.Equal(t, "Notes on the Analytical Engine", lit.Metadata.Title)
	assert.Equal(t, "10.1/engine", lit.Identifiers.DOI)
	assert.Len(t, lit.References, 1)
	assert.Equal(t, "It may be desirable to explain...", lit.Content.Fulltext)
	assert.Equal(t, "grobid", lit.Content.ParsingMethod)
	require.NotNil(t, lit.TaskInfo)
	assert.Equal(t, domain.TaskCompleted, lit.TaskInfo.Status)

	// Aliases registered for future phase-1 resolution.
	lid, err := h.lits.ResolveAlias(ctx, domain.AliasDOI, "10.1/engine")
	require.NoError(t, err)
	assert.Equal(t, task.LiteratureID, lid)

	assert.Equal(t, domain.ComponentSuccess, task.Components.Metadata.Status)
	assert.Equal(t, domain.ComponentSuccess, task.Components.Content.Status)
	assert.Equal(t, domain.ComponentSuccess, task.Components.References.Status)
}

func TestProcessDuplicateByExistingAlias(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	existing := &domain.Literature{
		LID:      "1843-lovelace-nae-aaaa",
		Metadata: domain.Metadata{Title: "Notes on the Analytical Engine"},
	}
	_, err := h.lits.UpsertLiterature(ctx, existing)
	require.NoError(t, err)
	require.NoError(t, h.lits.AddAlias(ctx, existing.LID, domain.AliasDOI, "10.1/engine"))

	submit(t, h, domain.Submission{DOI: "10.1/engine"})
	require.NoError(t, h.coordinator.Process(ctx, "task-1"))

	task, err := h.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.ExecutionStatus)
	assert.Equal(t, domain.ResultDuplicate, task.ResultType)
	assert.Equal(t, existing.LID, task.LiteratureID)
}

func TestProcessMetadataFailureFailsTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.metadata.result = nil
	h.metadata.err = domain.E(domain.KindNotFound, "no metadata source applicable")

	submit(t, h, domain.Submission{DOI: "10.1/missing"})
	require.NoError(t, h.coordinator.Process(ctx, "task-1"))

	task, err := h.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, task.ExecutionStatus)
	require.NotNil(t, task.ErrorInfo)
	assert.Equal(t, domain.KindNotFound, task.ErrorInfo.Kind)
	assert.Equal(t, domain.ComponentFailed, task.Components.Metadata.Status)
}

func TestProcessContentFailureStillCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.content.result = nil
	h.content.err = domain.E(domain.KindNotFound, "no content source available")

	submit(t, h, domain.Submission{DOI: "10.1/engine"})
	require.NoError(t, h.coordinator.Process(ctx, "task-1"))

	task, err := h.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.ExecutionStatus)
	assert.Equal(t, domain.ResultCreated, task.ResultType)
	assert.Equal(t, domain.ComponentFailed, task.Components.Content.Status)
	require.NotNil(t, task.Components.Content.ErrorInfo)

	lit, err := h.lits.GetByLID(ctx, task.LiteratureID)
	require.NoError(t, err)
	require.NotNil(t, lit)
	assert.Empty(t, lit.Content.PDFURL)
}

func TestProcessCancelledBeforeFetch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	submit(t, h, domain.Submission{DOI: "10.1/engine"})
	require.NoError(t, h.tasks.RequestCancel(ctx, "task-1"))
	require.NoError(t, h.coordinator.Process(ctx, "task-1"))

	task, err := h.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, task.ExecutionStatus)
}

func TestProcessFingerprintLoserMergesIntoWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Another task already built the same work under a different LID and
	// claimed its title fingerprint.
	winner := &domain.Literature{
		LID: "1843-lovelace-nae-bbbb",
		Metadata: domain.Metadata{
			Title:   "Notes on the Analytical Engine",
			Year:    1843,
			Authors: []domain.Author{{Name: "Ada Lovelace"}},
		},
	}
	_, err := h.lits.UpsertLiterature(ctx, winner)
	require.NoError(t, err)
	fp := match.TitleFingerprint(winner.Metadata.Title, []string{"Ada Lovelace"}, 1843)
	_, created, err := h.lits.ClaimAlias(ctx, domain.AliasTitleFP, fp, winner.LID)
	require.NoError(t, err)
	require.True(t, created)

	// No PDF this time so the identity claim is decided by the title
	// fingerprint alone.
	h.content.result = nil
	h.content.err = domain.E(domain.KindNotFound, "no content source available")

	submit(t, h, domain.Submission{DOI: "10.1/engine"})
	require.NoError(t, h.coordinator.Process(ctx, "task-1"))

	task, err := h.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultDuplicate, task.ResultType)
	assert.Equal(t, winner.LID, task.LiteratureID)

	// The losing submission's DOI now resolves to the winner.
	lid, err := h.lits.ResolveAlias(ctx, domain.AliasDOI, "10.1/engine")
	require.NoError(t, err)
	assert.Equal(t, winner.LID, lid)
}

func TestProcessDuplicateMergesSubmittedAliases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	existing := &domain.Literature{
		LID:      "1843-lovelace-nae-aaaa",
		Metadata: domain.Metadata{Title: "Notes on the Analytical Engine"},
	}
	_, err := h.lits.UpsertLiterature(ctx, existing)
	require.NoError(t, err)
	require.NoError(t, h.lits.AddAlias(ctx, existing.LID, domain.AliasArxiv, "1842.00001"))

	// Known by arXiv id; the submission additionally carries a DOI.
	submit(t, h, domain.Submission{ArxivID: "1842.00001", DOI: "10.1/engine"})
	require.NoError(t, h.coordinator.Process(ctx, "task-1"))

	task, err := h.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultDuplicate, task.ResultType)
	assert.Equal(t, existing.LID, task.LiteratureID)

	lid, err := h.lits.ResolveAlias(ctx, domain.AliasDOI, "10.1/engine")
	require.NoError(t, err)
	assert.Equal(t, existing.LID, lid)
}

type stubGrobid struct {
	record *domain.ProviderRecord
	calls  int
}

func (s *stubGrobid) ParseHeader(context.Context, []byte) (*domain.ProviderRecord, error) {
	s.calls++
	return s.record, nil
}

func (s *stubGrobid) ParseReferences(context.Context, []byte) ([]domain.Reference, error) {
	return nil, nil
}

func TestProcessPDFOnlySubmissionParsesHeader(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Real waterfall with only the header parser wired: nothing resolves the
	// bare pdf_url until the downloaded document is available.
	gb := &stubGrobid{record: &domain.ProviderRecord{
		Provider: "grobid",
		Metadata: domain.Metadata{
			Title:   "Notes on the Analytical Engine",
			Year:    1843,
			Authors: []domain.Author{{Name: "Ada Lovelace"}},
		},
	}}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	h.coordinator.metadata = fetcher.NewMetadataFetcher(nil, nil, nil, gb, nil, log)

	submit(t, h, domain.Submission{PDFURL: "https://example.org/paper.pdf"})
	require.NoError(t, h.coordinator.Process(ctx, "task-1"))

	task, err := h.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.ExecutionStatus)
	assert.Equal(t, domain.ResultCreated, task.ResultType)
	assert.Equal(t, "grobid", task.Components.Metadata.Source)
	assert.Equal(t, 1, gb.calls)

	lit, err := h.lits.GetByLID(ctx, task.LiteratureID)
	require.NoError(t, err)
	require.NotNil(t, lit)
	assert.Equal(t, "Notes on the Analytical Engine", lit.Metadata.Title)
}

func TestProcessUnsupportedSourceFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Metadata resolves from a scrape but yields neither identifiers nor a
	// document.
	h.metadata.result = &fetcher.MetadataResult{
		Record: &domain.ProviderRecord{
			Provider: "scrape",
			Metadata: domain.Metadata{Title: "Some Blog Post", Year: 2024},
		},
		Source: "scrape", Confidence: 0.5, Attempts: 1,
	}
	h.content.result = nil
	h.content.err = domain.E(domain.KindNotFound, "no content source available")
	h.references.result = nil
	h.references.err = domain.E(domain.KindNotFound, "no reference source applicable")

	submit(t, h, domain.Submission{URL: "https://example.org/blog/post"})
	require.NoError(t, h.coordinator.Process(ctx, "task-1"))

	task, err := h.tasks.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, task.ExecutionStatus)
	require.NotNil(t, task.ErrorInfo)
	assert.Equal(t, domain.KindUnsupportedSource, task.ErrorInfo.Kind)
}
