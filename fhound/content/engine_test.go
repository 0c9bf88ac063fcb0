package content

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/filehound/filehound/fhound/extract"
	"github.com/filehound/filehound/fhound/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor serves canned text per path.
type fakeExtractor struct {
	texts map[string]string
	errs  map[string]error
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err, ok := f.errs[path]; ok {
		return "", err
	}
	text, ok := f.texts[path]
	if !ok {
		return "", extract.ErrUnsupported
	}
	return text, nil
}

// countingSink counts processed files and flips to cancelled after a
// threshold.
type countingSink struct {
	processed   atomic.Int64
	cancelAfter int64
}

func (s *countingSink) FileProcessed() { s.processed.Add(1) }

func (s *countingSink) Cancelled() bool {
	return s.cancelAfter > 0 && s.processed.Load() >= s.cancelAfter
}

func TestEngineSearchMatchesKeywords(t *testing.T) {
	ex := &fakeExtractor{texts: map[string]string{
		"/docs/a.txt": "the quarterly budget is due friday",
		"/docs/b.txt": "nothing relevant here",
		"/docs/c.txt": "Budget review and invoice follow-up",
	}}
	e := NewEngine(ex, WithWorkers(2))

	matches, issues, err := e.Search(context.Background(),
		[]string{"/docs/a.txt", "/docs/b.txt", "/docs/c.txt"},
		[]string{"budget", "invoice"}, Options{ContextLen: 10}, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
	require.Len(t, matches, 2)

	assert.Equal(t, "/docs/a.txt", matches[0].Path)
	assert.Equal(t, []string{"budget"}, matches[0].Keywords)
	assert.Contains(t, matches[0].Snippet, "budget")

	assert.Equal(t, "/docs/c.txt", matches[1].Path)
	assert.Equal(t, []string{"budget", "invoice"}, matches[1].Keywords)
}

func TestEngineSearchCaseSensitive(t *testing.T) {
	ex := &fakeExtractor{texts: map[string]string{
		"/a.txt": "Budget line",
	}}
	e := NewEngine(ex)

	matches, _, err := e.Search(context.Background(), []string{"/a.txt"},
		[]string{"budget"}, Options{CaseSensitive: true}, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, _, err = e.Search(context.Background(), []string{"/a.txt"},
		[]string{"budget"}, Options{}, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestEngineSearchSkipsUnsupported(t *testing.T) {
	ex := &fakeExtractor{texts: map[string]string{
		"/a.txt": "keyword here",
	}}
	e := NewEngine(ex)

	// /b.png has no canned text, so the fake reports ErrUnsupported.
	matches, issues, err := e.Search(context.Background(),
		[]string{"/a.txt", "/b.png"}, []string{"keyword"}, Options{}, nil)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Len(t, matches, 1)
}

func TestEngineSearchReportsIssues(t *testing.T) {
	ex := &fakeExtractor{
		texts: map[string]string{"/a.txt": "keyword"},
		errs:  map[string]error{"/broken.pdf": errors.New("malformed xref table")},
	}
	e := NewEngine(ex)

	matches, issues, err := e.Search(context.Background(),
		[]string{"/a.txt", "/broken.pdf"}, []string{"keyword"}, Options{}, nil)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	require.Len(t, issues, 1)
	assert.Equal(t, "/broken.pdf", issues[0].Path)
	assert.Contains(t, issues[0].Error, "malformed")
}

func TestEngineSearchCancellation(t *testing.T) {
	texts := make(map[string]string, 100)
	paths := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		p := fmt.Sprintf("/docs/file%03d.txt", i)
		texts[p] = "keyword content"
		paths = append(paths, p)
	}
	e := NewEngine(&fakeExtractor{texts: texts}, WithWorkers(1))

	sink := &countingSink{cancelAfter: 5}
	matches, _, err := e.Search(context.Background(), paths, []string{"keyword"}, Options{}, sink)
	assert.ErrorIs(t, err, search.ErrCancelled)
	// Partial results up to the cancellation point are retained.
	assert.NotEmpty(t, matches)
	assert.Less(t, len(matches), 100)
}

func TestEngineSearchEmptyInputs(t *testing.T) {
	e := NewEngine(&fakeExtractor{})

	matches, issues, err := e.Search(context.Background(), nil, []string{"kw"}, Options{}, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, issues)

	matches, _, err = e.Search(context.Background(), []string{"/a.txt"}, nil, Options{}, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
