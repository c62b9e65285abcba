package fetcher

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/backend/internal/domain"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type stubCrossref struct {
	record  *domain.ProviderRecord
	results []*domain.ProviderRecord
	refs    []domain.Reference
	err     error
	calls   int
}

func (s *stubCrossref) ByDOI(context.Context, string) (*domain.ProviderRecord, error) {
	s.calls++
	return s.record, s.err
}

func (s *stubCrossref) Search(context.Context, string, int) ([]*domain.ProviderRecord, error) {
	s.calls++
	return s.results, s.err
}

func (s *stubCrossref) ReferencesOf(context.Context, string) ([]domain.Reference, error) {
	s.calls++
	return s.refs, s.err
}

type stubArxiv struct {
	record *domain.ProviderRecord
	err    error
}

func (s *stubArxiv) ByID(context.Context, string) (*domain.ProviderRecord, error) {
	return s.record, s.err
}

type stubS2 struct {
	record  *domain.ProviderRecord
	results []*domain.ProviderRecord
	refs    []domain.Reference
	err     error
}

func (s *stubS2) ByDOI(context.Context, string) (*domain.ProviderRecord, error)   { return s.record, s.err }
func (s *stubS2) ByArxiv(context.Context, string) (*domain.ProviderRecord, error) { return s.record, s.err }
func (s *stubS2) ByURL(context.Context, string) (*domain.ProviderRecord, error)   { return s.record, s.err }
func (s *stubS2) Search(context.Context, string, int) ([]*domain.ProviderRecord, error) {
	return s.results, s.err
}
func (s *stubS2) ReferencesOf(context.Context, string) ([]domain.Reference, error) {
	return s.refs, s.err
}

type stubGrobid struct {
	record *domain.ProviderRecord
	refs   []domain.Reference
	err    error
}

func (s *stubGrobid) ParseHeader(context.Context, []byte) (*domain.ProviderRecord, error) {
	return s.record, s.err
}

func (s *stubGrobid) ParseReferences(context.Context, []byte) ([]domain.Reference, error) {
	return s.refs, s.err
}

func record(provider, title string) *domain.ProviderRecord {
	return &domain.ProviderRecord{Provider: provider, Metadata: domain.Metadata{Title: title}}
}

func TestMetadataWaterfallPrefersCrossref(t *testing.T) {
	cr := &stubCrossref{record: record("crossref", "Paper A")}
	s2 := &stubS2{record: record("semanticscholar", "Paper A")}
	f := NewMetadataFetcher(cr, nil, s2, nil, nil, quietLogger())

	result, err := f.Fetch(context.Background(), &Request{
		Submission: domain.Submission{DOI: "10.1/a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "crossref", result.Source)
	assert.Equal(t, 0.95, result.Confidence)
	assert.Equal(t, 1, result.Attempts)
}

func TestMetadataWaterfallFallsThrough(t *testing.T) {
	cr := &stubCrossref{err: domain.E(domain.KindProviderUnavailable, "down")}
	s2 := &stubS2{record: record("semanticscholar", "Paper A")}
	f := NewMetadataFetcher(cr, nil, s2, nil, nil, quietLogger())

	result, err := f.Fetch(context.Background(), &Request{
		Submission: domain.Submission{DOI: "10.1/a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "semanticscholar", result.Source)
	assert.Equal(t, 2, result.Attempts)
}

func TestMetadataGrobidWhenOnlyPDF(t *testing.T) {
	gb := &stubGrobid{record: record("grobid", "Scanned Paper")}
	f := NewMetadataFetcher(nil, nil, nil, gb, nil, quietLogger())

	result, err := f.Fetch(context.Background(), &Request{PDF: []byte("%PDF-1.4 ...")})
	require.NoError(t, err)
	assert.Equal(t, "grobid", result.Source)
	assert.Equal(t, 0.7, result.Confidence)
}

func TestMetadataNothingApplicable(t *testing.T) {
	f := NewMetadataFetcher(nil, nil, nil, nil, nil, quietLogger())
	_, err := f.Fetch(context.Background(), &Request{})
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	info := domain.InfoFrom(err)
	assert.Contains(t, info.NextAction, "DOI")
}

func TestMetadataTitleSearchFiltersBadHits(t *testing.T) {
	cr := &stubCrossref{results: []*domain.ProviderRecord{
		record("crossref", "A Completely Unrelated Manuscript"),
	}}
	f := NewMetadataFetcher(cr, nil, nil, nil, nil, quietLogger())

	_, err := f.Fetch(context.Background(), &Request{
		Submission: domain.Submission{Title: "Attention Is All You Need"},
	})
	require.Error(t, err, "low-similarity search hit must not be accepted")
}

func TestMergeRecords(t *testing.T) {
	first := &domain.ProviderRecord{
		Provider: "crossref",
		Metadata: domain.Metadata{Title: "Paper", Year: 2020},
	}
	second := &domain.ProviderRecord{
		Provider: "semanticscholar",
		Metadata: domain.Metadata{
			Title:    "paper (different casing)",
			Abstract: "An abstract.",
			Authors:  []domain.Author{{Name: "Jane Roe"}},
		},
	}
	merged := MergeRecords(first, second)

	assert.Equal(t, "Paper", merged.Title)
	assert.Equal(t, 2020, merged.Year)
	assert.Equal(t, "An abstract.", merged.Abstract)
	assert.Len(t, merged.Authors, 1)
	assert.Equal(t, []string{"crossref", "semanticscholar"}, merged.SourcePriority)
}

func TestValidatePDF(t *testing.T) {
	assert.NoError(t, ValidatePDF([]byte("%PDF-1.7 content"), 1024))

	err := ValidatePDF([]byte("<html>not a pdf</html>"), 1024)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidPDF, domain.KindOf(err))

	err = ValidatePDF([]byte("%PDF-1.7 plus a lot of content"), 10)
	require.Error(t, err)
	assert.Equal(t, domain.KindTooLarge, domain.KindOf(err))
}

func TestReferencesWaterfallAPIBeforeGrobid(t *testing.T) {
	cr := &stubCrossref{refs: []domain.Reference{
		{RawText: "Ref 1", Parsed: &domain.ParsedReference{Title: "Ref 1", DOI: "10.1/r1"}},
	}}
	gb := &stubGrobid{refs: []domain.Reference{{RawText: "Should not be used"}}}
	f := NewReferencesFetcher(cr, nil, gb, quietLogger())

	result, err := f.Fetch(context.Background(), &Request{
		Submission: domain.Submission{DOI: "10.1/a"},
		PDF:        []byte("%PDF-"),
	})
	require.NoError(t, err)
	assert.Equal(t, "crossref", result.Source)
	require.Len(t, result.References, 1)
	assert.Equal(t, "Ref 1", result.References[0].RawText)
}

func TestReferencesNeedsPDF(t *testing.T) {
	f := NewReferencesFetcher(&stubCrossref{}, &stubS2{}, &stubGrobid{}, quietLogger())
	assert.True(t, f.NeedsPDF(&Request{Submission: domain.Submission{URL: "https://example.com/p"}}))
	assert.False(t, f.NeedsPDF(&Request{Submission: domain.Submission{DOI: "10.1/a"}}))
}

func TestDedupReferences(t *testing.T) {
	refs := []domain.Reference{
		{RawText: "A", Parsed: &domain.ParsedReference{DOI: "10.1/A", Title: "Alpha"}},
		{RawText: "A again", Parsed: &domain.ParsedReference{DOI: "10.1/a"}},
		{RawText: "B", Parsed: &domain.ParsedReference{Title: "Beta Title!", Year: 2019}},
		{RawText: "B dup", Parsed: &domain.ParsedReference{Title: "beta title", Year: 2019}},
		{RawText: "B other year", Parsed: &domain.ParsedReference{Title: "beta title", Year: 2020}},
		{RawText: "raw only"},
		{RawText: ""},
	}
	out := DedupReferences(refs)
	require.Len(t, out, 4)
	assert.Equal(t, "A", out[0].RawText)
	assert.Equal(t, "B", out[1].RawText)
	assert.Equal(t, "B other year", out[2].RawText)
	assert.Equal(t, "raw only", out[3].RawText)
}
