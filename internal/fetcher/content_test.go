package fetcher

import (
	"context"
	"crypto/md5"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litgraph/backend/internal/domain"
)

type stubStore struct {
	objects map[string][]byte
}

func (s *stubStore) KeyFromURL(rawURL string) (string, bool) {
	for key := range s.objects {
		if rawURL == "https://store.local/literature-pdfs/"+key {
			return key, true
		}
	}
	return "", false
}

func (s *stubStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

func (s *stubStore) GetBytes(_ context.Context, key string, _ int64) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, domain.E(domain.KindNotFound, "no object")
	}
	return data, nil
}

func TestContentFetchFromUpload(t *testing.T) {
	pdf := []byte("%PDF-1.5 uploaded document")
	store := &stubStore{objects: map[string][]byte{"uploads/abc.pdf": pdf}}
	f := NewContentFetcher(store, nil, nil, nil, 1<<20, quietLogger())

	result, err := f.Fetch(context.Background(), &Request{
		Submission: domain.Submission{PDFURL: "https://store.local/literature-pdfs/uploads/abc.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, "upload", result.Source)
	assert.Equal(t, pdf, result.PDF)
	assert.Equal(t, fmt.Sprintf("%x", md5.Sum(pdf)), result.MD5)
	assert.Equal(t, 1, result.Attempts)
}

func TestContentFetchRejectsNonPDFUpload(t *testing.T) {
	store := &stubStore{objects: map[string][]byte{"uploads/fake.pdf": []byte("<html></html>")}}
	f := NewContentFetcher(store, nil, nil, nil, 1<<20, quietLogger())

	_, err := f.Fetch(context.Background(), &Request{
		Submission: domain.Submission{PDFURL: "https://store.local/literature-pdfs/uploads/fake.pdf"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidPDF, domain.KindOf(err))
}

func TestContentFetchNoSources(t *testing.T) {
	f := NewContentFetcher(nil, nil, nil, nil, 1<<20, quietLogger())
	_, err := f.Fetch(context.Background(), &Request{})
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.Contains(t, domain.InfoFrom(err).NextAction, "upload")
}
