package linker

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/match"
	"github.com/litgraph/backend/internal/repository/memstore"
)

func newLinker(t *testing.T) (*Linker, *memstore.LiteratureStore) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	lits := memstore.NewLiteratureStore()
	return New(lits, 0.4, 0.6, 1, log), lits
}

func seed(t *testing.T, lits *memstore.LiteratureStore, lid, doi, title string, year int, authors ...string) {
	t.Helper()
	ctx := context.Background()
	md := domain.Metadata{Title: title, Year: year}
	for _, a := range authors {
		md.Authors = append(md.Authors, domain.Author{Name: a})
	}
	_, err := lits.UpsertLiterature(ctx, &domain.Literature{
		LID:         lid,
		Identifiers: domain.Identifiers{DOI: doi},
		Metadata:    md,
	})
	require.NoError(t, err)
	if doi != "" {
		require.NoError(t, lits.AddAlias(ctx, lid, domain.AliasDOI, doi))
	}
}

func TestLinkReferencesExactDOI(t *testing.T) {
	l, lits := newLinker(t)
	seed(t, lits, "lid-cited", "10.1/cited", "Cited Paper", 2019)

	stats, err := l.LinkReferences(context.Background(), "lid-src", []domain.Reference{
		{RawText: "ref", Parsed: &domain.ParsedReference{DOI: "10.1/CITED"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Linked)
	assert.Equal(t, 0, stats.Unresolved)

	has, err := lits.HasResolvedIncomingCites(context.Background(), "lid-cited")
	require.NoError(t, err)
	assert.False(t, has, "source is not a resolved node in this test")
}

func TestLinkReferencesFuzzyTitle(t *testing.T) {
	l, lits := newLinker(t)
	seed(t, lits, "lid-resnet", "", "Deep Residual Learning for Image Recognition", 2016,
		"Kaiming He", "Xiangyu Zhang")

	stats, err := l.LinkReferences(context.Background(), "lid-src", []domain.Reference{
		{RawText: "He et al. 2016", Parsed: &domain.ParsedReference{
			Title:   "Deep residual learning for image recognition",
			Year:    2015, // off-by-one survives the tolerance
			Authors: []string{"K. He", "X. Zhang"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Linked)
}

func TestLinkReferencesFuzzyRejectsYearGap(t *testing.T) {
	l, lits := newLinker(t)
	seed(t, lits, "lid-old", "", "Neural Network Training Methods", 2010, "Jane Roe")

	stats, err := l.LinkReferences(context.Background(), "lid-src", []domain.Reference{
		{RawText: "ref", Parsed: &domain.ParsedReference{
			Title:   "Neural Network Training Methods",
			Year:    2020,
			Authors: []string{"Jane Roe"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Linked)
	assert.Equal(t, 1, stats.Unresolved, "mismatched year falls back to a placeholder")
}

func TestLinkReferencesSelfLoopSkipped(t *testing.T) {
	l, lits := newLinker(t)
	seed(t, lits, "lid-self", "10.1/self", "Self Citing Paper", 2021)

	stats, err := l.LinkReferences(context.Background(), "lid-self", []domain.Reference{
		{RawText: "ref", Parsed: &domain.ParsedReference{DOI: "10.1/self"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Linked)
	assert.Equal(t, 0, stats.Unresolved)
}

func TestLinkReferencesUnknownBecomesUnresolved(t *testing.T) {
	l, _ := newLinker(t)

	stats, err := l.LinkReferences(context.Background(), "lid-src", []domain.Reference{
		{RawText: "Doe (1999) Obscure workshop paper", Parsed: &domain.ParsedReference{
			Title: "Obscure Workshop Paper", Year: 1999, Authors: []string{"John Doe"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unresolved)
}

func TestPromoteMatching(t *testing.T) {
	l, lits := newLinker(t)
	ctx := context.Background()

	parsed := &domain.ParsedReference{
		Title:   "Attention Is All You Need",
		Year:    2017,
		Authors: []string{"Ashish Vaswani"},
	}
	unresolvedID, err := lits.CreateUnresolved(ctx, "Vaswani (2017)", parsed)
	require.NoError(t, err)
	require.NoError(t, lits.LinkCites(ctx, "lid-citer", unresolvedID, 0, "test"))

	lit := &domain.Literature{
		LID: "2017-vaswani-aayn-ab12",
		Metadata: domain.Metadata{
			Title:   "Attention Is All You Need",
			Year:    2017,
			Authors: []domain.Author{{Name: "Ashish Vaswani"}},
		},
	}
	_, err = lits.UpsertLiterature(ctx, lit)
	require.NoError(t, err)

	promoted, err := l.PromoteMatching(ctx, lit)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	// The edge now targets the literature; fingerprint index is empty.
	fp := match.TitleFingerprint(parsed.Title, parsed.Authors, parsed.Year)
	left, err := lits.FindUnresolvedByFingerprint(ctx, fp)
	require.NoError(t, err)
	assert.Empty(t, left)

	has, err := lits.HasResolvedIncomingCites(ctx, lit.LID)
	require.NoError(t, err)
	assert.False(t, has, "citer is unresolved, not a literature node")
}
