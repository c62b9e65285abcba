package usecase

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/backend/internal/dedup"
	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/repository/memstore"
)

func newService(t *testing.T) (*LiteratureService, *memstore.LiteratureStore, *memstore.TaskStore) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	lits := memstore.NewLiteratureStore()
	tasks := memstore.NewTaskStore()
	svc := NewLiteratureService(lits, tasks, dedup.NewEngine(lits, tasks, log),
		GraphLimits{DepthDefault: 1, DepthMax: 3, SeedsMax: 20}, log)
	return svc, lits, tasks
}

func TestSubmitQueuesNewSource(t *testing.T) {
	svc, _, tasks := newService(t)
	ctx := context.Background()

	result, err := svc.Submit(ctx, domain.Submission{DOI: "10.1/new"})
	require.NoError(t, err)
	assert.Equal(t, SubmitQueued, result.Status)
	require.NotEmpty(t, result.TaskID)

	task, err := tasks.Get(ctx, result.TaskID)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, domain.TaskPending, task.ExecutionStatus)

	queued, err := tasks.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.TaskID, queued)
}

func TestSubmitEmptyRejected(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Submit(context.Background(), domain.Submission{Title: "title alone is not a source"})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestSubmitShortCircuitsExisting(t *testing.T) {
	svc, lits, _ := newService(t)
	ctx := context.Background()

	_, err := lits.UpsertLiterature(ctx, &domain.Literature{
		LID:      "2020-roe-abc-1234",
		Metadata: domain.Metadata{Title: "Known Work"},
	})
	require.NoError(t, err)
	require.NoError(t, lits.AddAlias(ctx, "2020-roe-abc-1234", domain.AliasDOI, "10.1/known"))

	result, err := svc.Submit(ctx, domain.Submission{DOI: "10.1/KNOWN"})
	require.NoError(t, err)
	assert.Equal(t, SubmitExisting, result.Status)
	assert.Equal(t, "2020-roe-abc-1234", result.LID)
	assert.Empty(t, result.TaskID)
}

func TestGetTaskUnknown(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.GetTask(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestCancelFinishedTaskConflicts(t *testing.T) {
	svc, _, tasks := newService(t)
	ctx := context.Background()

	task := domain.NewTask("t1", domain.Submission{DOI: "10.1/x"})
	task.ExecutionStatus = domain.TaskCompleted
	require.NoError(t, tasks.Save(ctx, task))

	err := svc.CancelTask(ctx, "t1")
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestGetLiteratureStripsFulltext(t *testing.T) {
	svc, lits, _ := newService(t)
	ctx := context.Background()

	_, err := lits.UpsertLiterature(ctx, &domain.Literature{
		LID:      "2020-roe-abc-1234",
		Metadata: domain.Metadata{Title: "Known Work"},
		Content:  domain.Content{Fulltext: "very long body text"},
	})
	require.NoError(t, err)

	lit, err := svc.GetLiterature(ctx, "2020-roe-abc-1234")
	require.NoError(t, err)
	assert.Empty(t, lit.Content.Fulltext)

	text, err := svc.GetFulltext(ctx, "2020-roe-abc-1234")
	require.NoError(t, err)
	assert.Equal(t, "very long body text", text)
}

func TestBatchGetPreservesOrder(t *testing.T) {
	svc, lits, _ := newService(t)
	ctx := context.Background()

	for _, lid := range []string{"a", "b"} {
		_, err := lits.UpsertLiterature(ctx, &domain.Literature{
			LID: lid, Metadata: domain.Metadata{Title: "Work " + lid},
		})
		require.NoError(t, err)
	}

	out, err := svc.BatchGet(ctx, []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].LID)
	assert.Nil(t, out[1])
	assert.Equal(t, "a", out[2].LID)
}

func TestGraphClampsDepthAndSeeds(t *testing.T) {
	svc, lits, _ := newService(t)
	ctx := context.Background()

	_, err := lits.UpsertLiterature(ctx, &domain.Literature{
		LID: "seed", Metadata: domain.Metadata{Title: "Seed"},
	})
	require.NoError(t, err)

	view, err := svc.Graph(ctx, []string{"seed"}, 99)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Meta.Depth)
	assert.True(t, view.Meta.Truncated)

	_, err = svc.Graph(ctx, nil, 1)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}
