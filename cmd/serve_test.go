//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gazette-cli/internal/model"
	"github.com/sells-group/gazette-cli/internal/monitoring"
	"github.com/sells-group/gazette-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedRun stores one complete run with two outcomes and two publications.
func seedRun(t *testing.T, st store.Store) *model.Run {
	t.Helper()
	ctx := context.Background()

	run, err := st.CreateRun(ctx, []model.Identity{{Number: "123456", Jurisdiction: "SP"}}, 0.3, 2)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, st.SaveOutcomes(ctx, run.ID, []model.ProcessingOutcome{
		{DocumentPath: "/data/a.pdf", Success: true, MatchCount: 2, Elapsed: time.Second, Strategy: "pdftotext"},
		{DocumentPath: "/data/b.pdf", Error: "extract: invalid PDF header"},
	}))
	require.NoError(t, st.SavePublications(ctx, run.ID, []model.ScoredPublication{
		{DocumentPath: "/data/a.pdf", Tribunal: "TJSP", Identity: model.Identity{Number: "123456", Jurisdiction: "SP"}, Position: 10, PatternID: "attorney_oab", MentionCount: 2, FinalScore: 0.9, ProcessedAt: now},
		{DocumentPath: "/data/a.pdf", Tribunal: "TJSP", Identity: model.Identity{Number: "98765", Jurisdiction: "RJ"}, Position: 900, PatternID: "oab_plain", MentionCount: 1, FinalScore: 0.4, ProcessedAt: now},
	}))
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, &model.BatchStats{
		Total: 2, Succeeded: 1, Failed: 1, SuccessRate: 0.5, TotalMatches: 2, ThroughputPerSecond: 2,
	}, ""))
	return run
}

func newTestRouter(t *testing.T) (http.Handler, *model.Run) {
	t.Helper()
	st := newTestStore(t)
	run := seedRun(t, st)
	return newRouter(st, monitoring.NewCollector(st, time.Hour), routerOptions{LookbackHours: 24, Metrics: true}), run
}

func doGet(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	h := newRouter(nil, nil, routerOptions{LookbackHours: 24})
	rec := doGet(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestRouter_Metrics(t *testing.T) {
	monitoring.Default()
	assert.Equal(t, http.StatusOK, doGet(t, newRouter(nil, nil, routerOptions{LookbackHours: 24, Metrics: true}), "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, doGet(t, newRouter(nil, nil, routerOptions{LookbackHours: 24}), "/metrics").Code)
}

func TestRouter_CORS(t *testing.T) {
	h := newRouter(nil, nil, routerOptions{CORSOrigins: []string{"https://painel.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://painel.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://painel.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://other.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doGet(t, newRouter(nil, nil, routerOptions{}), "/healthz")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_HistoryDisabled(t *testing.T) {
	h := newRouter(nil, nil, routerOptions{LookbackHours: 24})
	for _, path := range []string{"/runs", "/runs/abc", "/stats"} {
		rec := doGet(t, h, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "run history is disabled")
	}
}

func TestRouter_ListRuns(t *testing.T) {
	h, run := newTestRouter(t)

	rec := doGet(t, h, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)

	rec = doGet(t, h, "/runs?status=failed")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/runs?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/runs?offset=-1").Code)
}

func TestRouter_GetRun(t *testing.T) {
	h, run := newTestRouter(t)

	rec := doGet(t, h, "/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)
	require.NotNil(t, got.Stats)
	assert.Equal(t, 2, got.Stats.TotalMatches)

	rec = doGet(t, h, "/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "run not found")
}

func TestRouter_ListOutcomes(t *testing.T) {
	h, run := newTestRouter(t)

	rec := doGet(t, h, "/runs/"+run.ID+"/outcomes")
	require.Equal(t, http.StatusOK, rec.Code)

	var outcomes []model.ProcessingOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcomes))
	assert.Len(t, outcomes, 2)

	rec = doGet(t, h, "/runs/unknown/outcomes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRouter_ListPublications(t *testing.T) {
	h, run := newTestRouter(t)
	base := "/runs/" + run.ID + "/publications"

	var pubs []model.ScoredPublication
	rec := doGet(t, h, base)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pubs))
	require.Len(t, pubs, 2)
	assert.Equal(t, 0.9, pubs[0].FinalScore)

	pubs = nil
	rec = doGet(t, h, base+"?min_score=0.5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pubs))
	require.Len(t, pubs, 1)
	assert.Equal(t, "attorney_oab", pubs[0].PatternID)

	pubs = nil
	rec = doGet(t, h, base+"?number=98.765&jurisdiction=rj")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pubs))
	require.Len(t, pubs, 1)
	assert.Equal(t, "98765", pubs[0].Number)

	rec = doGet(t, h, base+"?jurisdiction=MG")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, doGet(t, h, base+"?min_score=high").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, h, base+"?limit=x").Code)
}

func TestRouter_Stats(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doGet(t, h, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, 1, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 2, snap.DocumentsTotal)
	assert.Equal(t, 1, snap.DocumentsFailed)
	assert.InDelta(t, 2.0, snap.AvgThroughputDocS, 1e-9)

	rec = doGet(t, h, "/stats?hours=6")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 6, snap.LookbackHours)

	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/stats?hours=0").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/stats?hours=day").Code)
}

func TestIntParam(t *testing.T) {
	v, err := intParam("")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	v, err = intParam("25")
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	_, err = intParam("-3")
	assert.Error(t, err)
}
