package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/filehound/filehound/fhound/content"
	"github.com/filehound/filehound/fhound/extract"
	"github.com/filehound/filehound/fhound/history"
	"github.com/filehound/filehound/fhound/search"
	"github.com/filehound/filehound/fhound/search/jobs"

	assertlib "github.com/ZanzyTHEbar/assert-lib"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *jobs.Registry) {
	t.Helper()

	scanner := search.NewScanner(search.WithWorkers(2))
	engine := content.NewEngine(extract.NewService(), content.WithWorkers(2))
	registry := jobs.NewRegistry(time.Minute, assertlib.NewAssertHandler())
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	srv := New(scanner, engine, registry, zerolog.Nop(), WithHistory(hist))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, registry
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// waitTerminal polls the progress endpoint until the job finishes.
func waitTerminal(t *testing.T, baseURL, id string) jobs.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("%s/api/search/%s/progress", baseURL, id))
		require.NoError(t, err)
		snap := decodeJSON[jobs.Snapshot](t, resp)
		if snap.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return jobs.Snapshot{}
}

func TestFilenameSearchEndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report_2024.xlsx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/search/filename", searchRequest{
		Roots:   []string{dir},
		Filters: search.Filters{Keywords: []string{"report"}},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	submitted := decodeJSON[submitResponse](t, resp)
	require.NotEmpty(t, submitted.ID)

	snap := waitTerminal(t, ts.URL, submitted.ID)
	assert.Equal(t, jobs.StatusCompleted, snap.Status)

	resp, err := http.Get(fmt.Sprintf("%s/api/search/%s/results", ts.URL, submitted.ID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	full := decodeJSON[jobs.Snapshot](t, resp)
	require.Len(t, full.Records, 1)
	assert.Equal(t, "report_2024.xlsx", full.Records[0].Name)
}

func TestContentSearchEndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("the budget is final"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("unrelated notes"), 0o644))

	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/search/content", searchRequest{
		Roots:    []string{dir},
		Keywords: []string{"budget"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	submitted := decodeJSON[submitResponse](t, resp)

	snap := waitTerminal(t, ts.URL, submitted.ID)
	assert.Equal(t, jobs.StatusCompleted, snap.Status)

	resp, err := http.Get(fmt.Sprintf("%s/api/search/%s/results", ts.URL, submitted.ID))
	require.NoError(t, err)
	full := decodeJSON[jobs.Snapshot](t, resp)
	require.Len(t, full.Matches, 1)
	assert.Equal(t, filepath.Join(dir, "a.txt"), full.Matches[0].Path)
	assert.Equal(t, []string{"budget"}, full.Matches[0].Keywords)
}

func TestSearchValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/search/filename", searchRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/search/content", searchRequest{Roots: []string{"/tmp"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestProgressUnknownJob(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/search/no-such-id/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResultsBeforeCompletion(t *testing.T) {
	ts, registry := newTestServer(t)

	job := jobs.New(jobs.KindFilename)
	registry.Register(job)

	resp, err := http.Get(fmt.Sprintf("%s/api/search/%s/results", ts.URL, job.ID()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelEndpoint(t *testing.T) {
	ts, registry := newTestServer(t)

	job := jobs.New(jobs.KindFilename)
	registry.Register(job)

	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/search/%s/cancel", ts.URL, job.ID()), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, job.Cancelled())
}

func TestEvictEndpoint(t *testing.T) {
	ts, registry := newTestServer(t)

	job := jobs.New(jobs.KindFilename)
	registry.Register(job)

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/search/%s", ts.URL, job.ID()), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, registry.Len())
}

func TestHistoryEndpoints(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.txt"), []byte("x"), 0o644))

	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/search/filename", searchRequest{Roots: []string{dir}})
	submitted := decodeJSON[submitResponse](t, resp)
	waitTerminal(t, ts.URL, submitted.ID)

	// The history write happens after the job turns terminal; give it a
	// moment.
	var entries map[string][]history.Entry
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/history")
		if err != nil {
			return false
		}
		entries = decodeJSON[map[string][]history.Entry](t, resp)
		return len(entries["entries"]) == 1
	}, 5*time.Second, 20*time.Millisecond)

	entry := entries["entries"][0]
	assert.Equal(t, "filename", entry.Kind)
	assert.Equal(t, 1, entry.ResultCount)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/history/"+entry.ID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	after := decodeJSON[map[string][]history.Entry](t, resp)
	assert.Empty(t, after["entries"])
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	payload := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, "ok", payload["status"])
}
