package lid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/backend/internal/domain"
)

func attentionMetadata() *domain.Metadata {
	return &domain.Metadata{
		Title: "Attention Is All You Need",
		Authors: []domain.Author{
			{Name: "Ashish Vaswani"},
			{Name: "Noam Shazeer"},
		},
		Year: 2017,
	}
}

func TestGenerateStructure(t *testing.T) {
	lid := Generate(attentionMetadata())

	require.True(t, Valid(lid), "generated lid %q should validate", lid)
	assert.Regexp(t, `^2017-vaswani-[a-z]{3,5}-[a-f0-9]{4}$`, lid)
}

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(attentionMetadata())
	b := Generate(attentionMetadata())
	assert.Equal(t, a, b, "same metadata must map to the same lid")

	changed := attentionMetadata()
	changed.Year = 2018
	assert.NotEqual(t, a, Generate(changed))
}

func TestSurnamePart(t *testing.T) {
	tests := []struct {
		name    string
		authors []domain.Author
		want    string
	}{
		{"western name", []domain.Author{{Name: "Ashish Vaswani"}}, "vaswani"},
		{"single token", []domain.Author{{Name: "Madonna"}}, "madonna"},
		{"long surname truncated", []domain.Author{{Name: "Jan Oberlandesgericht"}}, "oberland"},
		{"punctuation stripped", []domain.Author{{Name: "Conan O'Brien"}}, "obrien"},
		{"no authors", nil, "noauthor"},
		{"blank author", []domain.Author{{Name: "   "}}, "noauthor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, surnamePart(&domain.Metadata{Authors: tt.authors}))
		})
	}
}

func TestInitialsPart(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"stop words skipped", "Attention Is All You Need", "aayn"},
		{"five word cap", "Deep Residual Learning Networks Image Recognition Systems Extra", "drlni"},
		{"empty title", "", "notitle"},
		{"short words fallback", "Go To It Now OK Yes", "gtino"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, initialsPart(tt.title))
		})
	}
}

func TestYearPart(t *testing.T) {
	assert.Equal(t, "2017", yearPart(&domain.Metadata{Year: 2017}))
	assert.Equal(t, "1998", yearPart(&domain.Metadata{Title: "PageRank (1998) revisited"}))
	assert.Equal(t, "unkn", yearPart(&domain.Metadata{Title: "Untitled manuscript"}))
}

func TestFallbackLID(t *testing.T) {
	lid := Generate(&domain.Metadata{})
	assert.Regexp(t, `^lit-[a-f0-9]{12}$`, lid)
	assert.True(t, Valid(lid))
}
