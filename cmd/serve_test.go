package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/space-cli/internal/model"
	"github.com/sells-group/space-cli/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(newRouter(st, prometheus.NewRegistry()))
	t.Cleanup(srv.Close)
	return srv, st
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestServe_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServe_Runs(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	done, err := st.CreateRun(ctx, model.RunInput{InputDir: "a"})
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunResult(ctx, done.ID, &model.RunResult{Summary: model.NewSummary(), Location: "out/golden_table.parquet"}))
	failed, err := st.CreateRun(ctx, model.RunInput{InputDir: "b"})
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, failed.ID, model.ErrorCategoryExport, "disk full"))
	phase, err := st.CreatePhase(ctx, done.ID, "export")
	require.NoError(t, err)
	require.NoError(t, st.CompletePhase(ctx, phase.ID, &model.PhaseResult{Name: "export", Status: model.PhaseStatusComplete}))

	t.Run("list", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/runs")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var runs []model.Run
		require.NoError(t, json.Unmarshal(body, &runs))
		assert.Len(t, runs, 2)
	})

	t.Run("filter by status", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/runs?status=failed")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var runs []model.Run
		require.NoError(t, json.Unmarshal(body, &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, failed.ID, runs[0].ID)
		assert.Equal(t, model.ErrorCategoryExport, runs[0].ErrorCategory)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/runs?status=queued")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `[]`, string(body))
	})

	t.Run("bad limit", func(t *testing.T) {
		resp, _ := get(t, srv.URL+"/runs?limit=abc")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("show", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/runs/"+done.ID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got struct {
			model.Run
			Phases []model.RunPhase `json:"phases"`
		}
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, done.ID, got.ID)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.Len(t, got.Phases, 1)
		assert.Equal(t, "export", got.Phases[0].Name)
	})

	t.Run("show missing", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/runs/does-not-exist")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.JSONEq(t, `{"error":"run not found"}`, string(body))
	})
}

func TestServe_CORS(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil) //nolint:noctx
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServe_Metrics(t *testing.T) {
	srv, _ := newTestServer(t)

	get(t, srv.URL+"/health")
	resp, body := get(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `space_http_requests_total{code="200",route="/health"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServe_MetricsIncludeRunHistory(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	summary := model.NewSummary()
	summary.Written = 4
	summary.Duplicates = 2
	summary.AddReject(model.RejectedRecord{SampleID: "x", Category: model.ErrorCategoryJoin, Reason: "missing track document"})
	summary.AddReject(model.RejectedRecord{SampleID: "bad", Category: model.ErrorCategoryMalformed, Reason: "missing FASTA header"})
	done, err := st.CreateRun(ctx, model.RunInput{InputDir: "a"})
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunResult(ctx, done.ID, &model.RunResult{Summary: summary}))
	failed, err := st.CreateRun(ctx, model.RunInput{InputDir: "b"})
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, failed.ID, model.ErrorCategoryExport, "disk full"))

	_, body := get(t, srv.URL+"/metrics")
	text := string(body)
	assert.Contains(t, text, `space_runs_total{status="complete"} 1`)
	assert.Contains(t, text, `space_runs_total{status="failed"} 1`)
	assert.Contains(t, text, `space_rejected_samples_total{category="join"} 1`)
	assert.Contains(t, text, `space_rejected_samples_total{category="malformed"} 1`)
	assert.Contains(t, text, "space_duplicate_records_total 2")
	assert.Contains(t, text, "space_written_records_total 4")
	assert.Contains(t, text, "space_run_history_up 1")
}

func TestIntParam(t *testing.T) {
	n, err := intParam("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = intParam("25")
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	_, err = intParam("-1")
	require.Error(t, err)
}
