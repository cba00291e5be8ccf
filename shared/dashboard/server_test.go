package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"seo-agent/internal/models"
	"seo-agent/shared/storage"
	"seo-agent/shared/update"
)

type fakeUpdater struct {
	calls   int
	runID   int64
	mode    update.Mode
	protect bool
	result  *models.UpdateResult
	err     error
}

func (f *fakeUpdater) ApplyAuditUpdates(_ context.Context, runID int64, mode update.Mode, protectMain bool) (*models.UpdateResult, error) {
	f.calls++
	f.runID = runID
	f.mode = mode
	f.protect = protectMain
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testServer(t *testing.T, updater Updater) (*Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewServer(store, updater, "0"), store
}

func seedRun(t *testing.T, store *storage.Store) *models.AuditRun {
	t.Helper()
	run := &models.AuditRun{
		ChannelID:      "UCtest",
		ChannelTitle:   "El Inmortal",
		IssueHistogram: map[string]int{"tags_missing": 1},
		CreatedBy:      "test",
	}
	items := []*models.AuditItem{{
		VideoID:     "v1",
		Current:     models.MetadataSet{Title: "Mi Cancion"},
		Issues:      []string{"tags_missing"},
		NeedsFix:    true,
		Recommended: models.MetadataSet{Title: "Mi Cancion", CategoryID: "10"},
		Source:      "heuristic",
	}}
	run.VideosInspected = 1
	run.VideosNeedingFix = 1
	require.NoError(t, store.CreateAuditRun(run, items))
	return run
}

func TestHealth(t *testing.T) {
	server, store := testServer(t, nil)
	seedRun(t, store)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, 1, body["latest_run_id"])
}

func TestGetRunWithItemsAndLogs(t *testing.T) {
	server, store := testServer(t, nil)
	run := seedRun(t, store)
	require.NoError(t, store.AppendUpdateLog(run.ID, "v1", "updated", "applied heuristic metadata"))

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/runs/1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Run   *models.AuditRun    `json:"run"`
		Items []*models.AuditItem `json:"items"`
		Logs  []*models.UpdateLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "El Inmortal", body.Run.ChannelTitle)
	require.Len(t, body.Items, 1)
	require.Len(t, body.Logs, 1)
}

func TestGetRunNotFound(t *testing.T) {
	server, _ := testServer(t, nil)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/runs/99", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTargets(t *testing.T) {
	server, store := testServer(t, nil)
	require.NoError(t, store.UpsertMetadataTarget(&models.MetadataTarget{
		VideoID: "v1", Title: "Curated", CategoryID: "10", Source: "manual", Active: true,
	}))

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/targets", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Curated")
}

func TestApplyUpdatesJSON(t *testing.T) {
	updater := &fakeUpdater{result: &models.UpdateResult{Processed: 1, Updated: 1}}
	server, store := testServer(t, updater)
	seedRun(t, store)

	form := url.Values{"mode": {"target_only"}, "protect_main": {"0"}}
	req := httptest.NewRequest("POST", "/api/runs/1/update", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, updater.calls)
	require.EqualValues(t, 1, updater.runID)
	require.Equal(t, update.ModeTargetOnly, updater.mode)
	require.False(t, updater.protect)

	var result models.UpdateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Equal(t, 1, result.Updated)
}

func TestApplyUpdatesDefaultsToProtectedHeuristicMode(t *testing.T) {
	updater := &fakeUpdater{result: &models.UpdateResult{}}
	server, store := testServer(t, updater)
	seedRun(t, store)

	req := httptest.NewRequest("POST", "/api/runs/1/update", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, update.ModeTargetAndHeuristic, updater.mode)
	require.True(t, updater.protect)
}

func TestApplyUpdatesInvalidMode(t *testing.T) {
	updater := &fakeUpdater{result: &models.UpdateResult{}}
	server, _ := testServer(t, updater)

	form := url.Values{"mode": {"everything"}}
	req := httptest.NewRequest("POST", "/api/runs/1/update", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, updater.calls)
}

func TestApplyUpdatesRedirectWithFlash(t *testing.T) {
	updater := &fakeUpdater{result: &models.UpdateResult{Updated: 2, Skipped: 1}}
	server, store := testServer(t, updater)
	seedRun(t, store)

	form := url.Values{"redirect": {"1"}}
	req := httptest.NewRequest("POST", "/api/runs/1/update", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/?flash="), "location = %s", location)
}

func TestApplyUpdatesWithoutUpdater(t *testing.T) {
	server, store := testServer(t, nil)
	seedRun(t, store)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/api/runs/1/update", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIndexPage(t *testing.T) {
	server, store := testServer(t, nil)
	seedRun(t, store)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/?flash=hello", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "El Inmortal")
	require.Contains(t, w.Body.String(), "hello")
}
