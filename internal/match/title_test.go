package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
	}{
		{"case and punctuation", "ImageNet Classification: with Deep CNNs!", "imagenet classification with deep cnns"},
		{"whitespace collapse", "  Attention   Is\tAll You Need ", "attention is all you need"},
		{"digits kept", "GPT-4 Technical Report", "gpt4 technical report"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.in))
		})
	}
}

func TestExactMatch(t *testing.T) {
	assert.True(t, ExactMatch(
		"ImageNet Classification with Deep Convolutional Neural Networks",
		"IMAGENET CLASSIFICATION WITH DEEP CONVOLUTIONAL NEURAL NETWORKS!"))
	assert.False(t, ExactMatch("Attention Is All You Need", "Attention Is Not All You Need"))
	assert.False(t, ExactMatch("", ""))
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, TokenOverlap("Deep Residual Learning", "Deep Residual Learning!"))
	assert.Equal(t, 0.0, TokenOverlap("Graph Attention Networks", "Quantum Chromodynamics Review"))

	partial := TokenOverlap(
		"ImageNet Classification with Deep Convolutional Neural Networks",
		"ImageNet Classification using Deep CNNs")
	assert.Greater(t, partial, 0.2)
	assert.Less(t, partial, 0.8)
}

func TestLCSRatio(t *testing.T) {
	assert.Equal(t, 1.0, LCSRatio("same title", "Same Title"))
	assert.Greater(t, LCSRatio("deep learning for graphs", "deep learning on graphs"), 0.8)
	assert.Less(t, LCSRatio("abc", "xyz"), 0.01)
}

func TestTitleSimilarityRanksRephrasingAboveUnrelated(t *testing.T) {
	base := "ImageNet Classification with Deep Convolutional Neural Networks"
	close := TitleSimilarity(base, "ImageNet classification with deep convolutional neural networks")
	rephrased := TitleSimilarity(base, "ImageNet Classification using Deep CNNs")
	unrelated := TitleSimilarity(base, "A Different Paper Title Entirely")

	assert.InDelta(t, 1.0, close, 0.001)
	assert.Greater(t, rephrased, unrelated)
	assert.Less(t, unrelated, 0.3)
}

func TestAuthorsMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"same authors", []string{"Ashish Vaswani", "Noam Shazeer"}, []string{"A. Vaswani", "N. Shazeer"}, true},
		{"minor spelling variance", []string{"Yann LeCun"}, []string{"Y. Lecun"}, true},
		{"disjoint authors", []string{"Alice Johnson", "Bob Smith"}, []string{"Carol Wexler", "Dan Pruitt"}, false},
		{"half overlap passes rate", []string{"Ashish Vaswani", "Noam Shazeer"}, []string{"Ashish Vaswani", "Jakob Uszkoreit"}, true},
		{"empty list never vetoes", nil, []string{"Ashish Vaswani"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AuthorsMatch(tt.a, tt.b, 0.8, 0.5))
		})
	}
}

func TestTitleFingerprint(t *testing.T) {
	a := TitleFingerprint("Attention Is All You Need", []string{"Ashish Vaswani", "Noam Shazeer"}, 2017)
	b := TitleFingerprint("attention is all you need!", []string{"Noam Shazeer", "Ashish Vaswani"}, 2017)
	assert.Equal(t, a, b, "author order and punctuation must not change the fingerprint")
	assert.Len(t, a, 64)

	c := TitleFingerprint("Attention Is All You Need", []string{"Ashish Vaswani", "Noam Shazeer"}, 2018)
	assert.NotEqual(t, a, c)
}

func TestUnresolvedID(t *testing.T) {
	a := UnresolvedID("Neural Machine Translation by Jointly Learning to Align and Translate")
	b := UnresolvedID("neural machine translation, by jointly learning to align and translate")
	assert.Equal(t, a, b)
	assert.Regexp(t, `^unresolved-[a-f0-9]{8}$`, a)
	assert.Empty(t, UnresolvedID("   "))
}
