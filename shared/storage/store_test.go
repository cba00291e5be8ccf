package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"seo-agent/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleItem(videoID string) *models.AuditItem {
	return &models.AuditItem{
		VideoID:       videoID,
		PublishedAt:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		PrivacyStatus: "public",
		ViewCount:     1000,
		Current: models.MetadataSet{
			Title:       "Old Title",
			Description: "short",
			CategoryID:  "22",
			Tags:        []string{"a", "b"},
		},
		Issues:   []string{"description_short", "category_not_music"},
		NeedsFix: true,
		Recommended: models.MetadataSet{
			Title:       "Old Title",
			Description: "longer description",
			CategoryID:  "10",
			Tags:        []string{"el inmortal 2"},
		},
		Source: "heuristic",
	}
}

func TestCreateAndReadAuditRun(t *testing.T) {
	store := openTestStore(t)

	run := &models.AuditRun{
		ChannelID:        "UC123",
		ChannelTitle:     "El Inmortal",
		VideosInspected:  2,
		VideosNeedingFix: 1,
		IssueHistogram:   map[string]int{"description_short": 1},
		CreatedBy:        "test",
	}
	items := []*models.AuditItem{sampleItem("v1"), sampleItem("v2")}

	require.NoError(t, store.CreateAuditRun(run, items))
	require.NotZero(t, run.ID)
	require.NotZero(t, items[0].ID)

	got, err := store.GetAuditRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, "UC123", got.ChannelID)
	require.Equal(t, 1, got.IssueHistogram["description_short"])

	list, err := store.ListAuditItems(run.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Old Title", list[0].Current.Title)
	require.Equal(t, []string{"a", "b"}, list[0].Current.Tags)
	require.Equal(t, models.UpdateStatusPending, list[0].UpdateStatus)
	require.True(t, list[0].NeedsFix)

	latest, err := store.LatestAuditRun()
	require.NoError(t, err)
	require.Equal(t, run.ID, latest.ID)
}

func TestCascadeDeleteItemsWithRun(t *testing.T) {
	store := openTestStore(t)

	run := &models.AuditRun{ChannelID: "UC123"}
	require.NoError(t, store.CreateAuditRun(run, []*models.AuditItem{sampleItem("v1")}))

	require.NoError(t, store.DeleteAuditRun(run.ID))

	items, err := store.ListAuditItems(run.ID)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestSetItemUpdateStatus(t *testing.T) {
	store := openTestStore(t)

	run := &models.AuditRun{ChannelID: "UC123"}
	item := sampleItem("v1")
	require.NoError(t, store.CreateAuditRun(run, []*models.AuditItem{item}))

	require.NoError(t, store.SetItemUpdateStatus(item.ID, models.UpdateStatusUpdated, "", "target"))

	items, err := store.ListAuditItems(run.ID)
	require.NoError(t, err)
	require.Equal(t, models.UpdateStatusUpdated, items[0].UpdateStatus)
	require.Equal(t, "target", items[0].Source)
	require.NotNil(t, items[0].UpdatedAt)
}

func TestUpsertMetadataTarget(t *testing.T) {
	store := openTestStore(t)

	target := &models.MetadataTarget{
		VideoID:    "v1",
		Title:      "First",
		CategoryID: "10",
		Tags:       []string{"a"},
		Source:     "manual",
		Active:     true,
	}
	require.NoError(t, store.UpsertMetadataTarget(target))

	target.Title = "Second"
	target.Source = "seo_run_1_gemini-2.5-flash"
	require.NoError(t, store.UpsertMetadataTarget(target))

	got, err := store.GetMetadataTarget("v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Second", got.Title)
	require.Equal(t, "seo_run_1_gemini-2.5-flash", got.Source)

	all, err := store.ListMetadataTargets()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestInactiveTargetIsInvisible(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.UpsertMetadataTarget(&models.MetadataTarget{
		VideoID: "v1", Title: "T", Active: false,
	}))

	got, err := store.GetMetadataTarget("v1")
	require.NoError(t, err)
	require.Nil(t, got)

	active, err := store.ActiveTargets()
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestMissingTargetReturnsNil(t *testing.T) {
	store := openTestStore(t)
	got, err := store.GetMetadataTarget("nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestOptimizationRunRoundtrip(t *testing.T) {
	store := openTestStore(t)

	auditRun := &models.AuditRun{ChannelID: "UC123"}
	require.NoError(t, store.CreateAuditRun(auditRun, nil))

	run := &models.SeoOptimizationRun{AuditRunID: auditRun.ID, Model: "gemini-2.5-flash", Requested: 2}
	require.NoError(t, store.CreateOptimizationRun(run))
	require.NotZero(t, run.ID)

	ok := &models.SeoOptimizationItem{
		RunID:          run.ID,
		VideoID:        "v1",
		Prompt:         "prompt",
		RawResponse:    `{"title":"X"}`,
		ParseStatus:    models.ParseStatusOK,
		MatchedAliases: map[string]string{"title": "title"},
		Optimized:      &models.MetadataSet{Title: "X", CategoryID: "10"},
	}
	require.NoError(t, store.InsertOptimizationItem(ok))

	failed := &models.SeoOptimizationItem{
		RunID:        run.ID,
		VideoID:      "v2",
		Prompt:       "prompt",
		RawResponse:  "not json at all",
		ParseStatus:  models.ParseStatusFailed,
		ErrorMessage: "seo_json_parse_failed",
	}
	require.NoError(t, store.InsertOptimizationItem(failed))
	require.NoError(t, store.FinishOptimizationRun(run.ID, 2, 1, 1))

	items, err := store.ListOptimizationItems(run.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "X", items[0].Optimized.Title)
	require.Equal(t, "title", items[0].MatchedAliases["title"])
	// The raw response survives even when parsing failed.
	require.Equal(t, "not json at all", items[1].RawResponse)
	require.Nil(t, items[1].Optimized)
}

func TestUpdateLogAppendAndList(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.AppendUpdateLog(1, "v1", "updated", "applied target metadata"))
	require.NoError(t, store.AppendUpdateLog(1, "v2", "error", "quota exceeded"))

	logs, err := store.ListUpdateLogs(1)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "updated", logs[0].Action)
	require.Equal(t, "v2", logs[1].VideoID)
}
