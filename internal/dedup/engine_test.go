package dedup

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/repository/memstore"
)

func newEngine(t *testing.T) (*Engine, *memstore.LiteratureStore, *memstore.TaskStore) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	lits := memstore.NewLiteratureStore()
	tasks := memstore.NewTaskStore()
	return NewEngine(lits, tasks, log), lits, tasks
}

func seedLiterature(t *testing.T, lits *memstore.LiteratureStore, lid, doi string) {
	t.Helper()
	ctx := context.Background()
	_, err := lits.UpsertLiterature(ctx, &domain.Literature{
		LID:         lid,
		Identifiers: domain.Identifiers{DOI: doi},
		Metadata:    domain.Metadata{Title: "Seeded Paper"},
		TaskInfo:    &domain.TaskInfo{TaskID: "t0", Status: domain.TaskCompleted},
	})
	require.NoError(t, err)
	require.NoError(t, lits.AddAlias(ctx, lid, domain.AliasDOI, doi))
}

func TestCheckResolvesExplicitDOI(t *testing.T) {
	engine, lits, _ := newEngine(t)
	seedLiterature(t, lits, "2017-vaswani-aiayn-a8c4", "10.1000/existing")

	outcome, err := engine.Check(context.Background(), domain.Submission{DOI: "10.1000/EXISTING"}, "task-1")
	require.NoError(t, err)
	assert.Equal(t, Existing, outcome.Kind)
	assert.Equal(t, "2017-vaswani-aiayn-a8c4", outcome.LID)
	assert.Equal(t, "identifier", outcome.Phase)
}

func TestCheckResolvesNormalizedURL(t *testing.T) {
	engine, lits, _ := newEngine(t)
	seedLiterature(t, lits, "lid-1", "10.1/x")
	require.NoError(t, lits.AddAlias(context.Background(), "lid-1",
		domain.AliasURL, "https://arxiv.org/abs/1706.03762"))

	// A versioned pdf variant of the same work must hit the same alias.
	outcome, err := engine.Check(context.Background(),
		domain.Submission{URL: "https://arxiv.org/pdf/1706.03762v2.pdf"}, "task-1")
	require.NoError(t, err)
	assert.Equal(t, Existing, outcome.Kind)
	assert.Equal(t, "lid-1", outcome.LID)
	assert.Equal(t, "url", outcome.Phase)
}

func TestCheckInFlightClaim(t *testing.T) {
	engine, _, _ := newEngine(t)
	sub := domain.Submission{DOI: "10.1/new"}

	first, err := engine.Check(context.Background(), sub, "task-a")
	require.NoError(t, err)
	assert.Equal(t, New, first.Kind)

	second, err := engine.Check(context.Background(), sub, "task-b")
	require.NoError(t, err)
	assert.Equal(t, InProgress, second.Kind)
	assert.Equal(t, "task-a", second.TaskID)

	// Release frees the key for the next submission.
	engine.Release(context.Background(), sub, "task-a")
	third, err := engine.Check(context.Background(), sub, "task-c")
	require.NoError(t, err)
	assert.Equal(t, New, third.Kind)
}

func TestCheckCleansUpFailedUncitedLiterature(t *testing.T) {
	engine, lits, _ := newEngine(t)
	ctx := context.Background()

	_, err := lits.UpsertLiterature(ctx, &domain.Literature{
		LID:         "lid-failed",
		Identifiers: domain.Identifiers{DOI: "10.1/failed"},
		TaskInfo:    &domain.TaskInfo{TaskID: "t1", Status: domain.TaskFailed},
	})
	require.NoError(t, err)
	require.NoError(t, lits.AddAlias(ctx, "lid-failed", domain.AliasDOI, "10.1/failed"))

	outcome, err := engine.Check(ctx, domain.Submission{DOI: "10.1/failed"}, "task-retry")
	require.NoError(t, err)
	assert.Equal(t, New, outcome.Kind, "failed uncited record should be cleaned up for retry")

	gone, err := lits.GetByLID(ctx, "lid-failed")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCheckKeepsFailedLiteratureWithResolvedCiter(t *testing.T) {
	engine, lits, _ := newEngine(t)
	ctx := context.Background()

	_, err := lits.UpsertLiterature(ctx, &domain.Literature{
		LID:      "lid-failed",
		TaskInfo: &domain.TaskInfo{TaskID: "t1", Status: domain.TaskFailed},
	})
	require.NoError(t, err)
	require.NoError(t, lits.AddAlias(ctx, "lid-failed", domain.AliasDOI, "10.1/cited"))
	seedLiterature(t, lits, "lid-citer", "10.1/citer")
	require.NoError(t, lits.LinkCites(ctx, "lid-citer", "lid-failed", 1.0, "test"))

	outcome, err := engine.Check(ctx, domain.Submission{DOI: "10.1/cited"}, "task-x")
	require.NoError(t, err)
	assert.Equal(t, Existing, outcome.Kind)
	assert.Equal(t, "lid-failed", outcome.LID)
}

func TestClaimIdentityLoserMerges(t *testing.T) {
	engine, lits, _ := newEngine(t)
	ctx := context.Background()

	winner, created, err := engine.ClaimIdentity(ctx, "lid-a", "md5-abc", "fp-title")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "lid-a", winner)

	// A racing task computing the same fingerprints loses the claim.
	winner, created, err = engine.ClaimIdentity(ctx, "lid-b", "md5-abc", "fp-title")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "lid-a", winner)

	holder, err := lits.ResolveAlias(ctx, domain.AliasFingerprint, "md5-abc")
	require.NoError(t, err)
	assert.Equal(t, "lid-a", holder)
}

func TestRegisterAliases(t *testing.T) {
	engine, lits, _ := newEngine(t)
	ctx := context.Background()

	lit := &domain.Literature{
		LID: "lid-r",
		Identifiers: domain.Identifiers{
			DOI:        "10.1/Mixed.Case",
			ArxivID:    "1706.03762",
			SourceURLs: []string{"https://arxiv.org/abs/1706.03762v1"},
		},
		Content: domain.Content{PDFURL: "https://arxiv.org/pdf/1706.03762.pdf"},
	}
	require.NoError(t, engine.RegisterAliases(ctx, lit))

	byDOI, err := lits.ResolveAlias(ctx, domain.AliasDOI, "10.1/mixed.case")
	require.NoError(t, err)
	assert.Equal(t, "lid-r", byDOI)

	byURL, err := lits.ResolveAlias(ctx, domain.AliasURL, "https://arxiv.org/abs/1706.03762")
	require.NoError(t, err)
	assert.Equal(t, "lid-r", byURL)
}
