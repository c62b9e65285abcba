package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/backend/internal/domain"
)

func TestUpsertLiteratureKeepsIdentifiers(t *testing.T) {
	s := NewLiteratureStore()
	ctx := context.Background()

	created, err := s.UpsertLiterature(ctx, &domain.Literature{
		LID: "2020-roe-abc-1234",
		Identifiers: domain.Identifiers{
			DOI:        "10.1/known",
			SourceURLs: []string{"https://example.org/a"},
		},
	})
	require.NoError(t, err)
	require.True(t, created)

	// A sparser upsert must not shrink the identifier set.
	created, err = s.UpsertLiterature(ctx, &domain.Literature{
		LID: "2020-roe-abc-1234",
		Identifiers: domain.Identifiers{
			ArxivID:    "2001.00001",
			SourceURLs: []string{"https://example.org/b"},
		},
	})
	require.NoError(t, err)
	assert.False(t, created)

	lit, err := s.GetByLID(ctx, "2020-roe-abc-1234")
	require.NoError(t, err)
	require.NotNil(t, lit)
	assert.Equal(t, "10.1/known", lit.Identifiers.DOI)
	assert.Equal(t, "2001.00001", lit.Identifiers.ArxivID)
	assert.ElementsMatch(t,
		[]string{"https://example.org/a", "https://example.org/b"},
		lit.Identifiers.SourceURLs)
}
