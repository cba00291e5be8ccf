package update

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	ytv3 "google.golang.org/api/youtube/v3"

	"seo-agent/internal/models"
)

type fakePlatform struct {
	videos      map[string]*ytv3.Video
	fetchCalls  []string
	updateCalls []string
	updated     map[string]*ytv3.Video
	failWith    map[string]error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		videos:   make(map[string]*ytv3.Video),
		updated:  make(map[string]*ytv3.Video),
		failWith: make(map[string]error),
	}
}

func (f *fakePlatform) FetchVideo(_ context.Context, videoID string) (*ytv3.Video, error) {
	f.fetchCalls = append(f.fetchCalls, videoID)
	if v, ok := f.videos[videoID]; ok {
		return v, nil
	}
	return &ytv3.Video{Id: videoID, Snippet: &ytv3.VideoSnippet{}}, nil
}

func (f *fakePlatform) UpdateVideo(_ context.Context, video *ytv3.Video) error {
	f.updateCalls = append(f.updateCalls, video.Id)
	if err := f.failWith[video.Id]; err != nil {
		return err
	}
	f.updated[video.Id] = video
	return nil
}

type memStore struct {
	statuses map[int64][2]string // status, message
	logs     []string
}

func newMemStore() *memStore {
	return &memStore{statuses: make(map[int64][2]string)}
}

func (m *memStore) SetItemUpdateStatus(itemID int64, status, message, source string) error {
	m.statuses[itemID] = [2]string{status, message}
	return nil
}

func (m *memStore) AppendUpdateLog(runID int64, videoID, action, detail string) error {
	m.logs = append(m.logs, fmt.Sprintf("%s:%s", videoID, action))
	return nil
}

func plannedApply(itemID int64, videoID string) PlannedItem {
	return PlannedItem{
		Item: &models.AuditItem{ID: itemID, VideoID: videoID, Current: models.MetadataSet{Title: "Old"}},
		Plan: Plan{
			Payload: models.MetadataSet{Title: "New Title", Description: "New description", CategoryID: "10", Tags: []string{"a"}},
			Source:  SourceTarget,
		},
	}
}

func TestApplyUpdatesItem(t *testing.T) {
	platform := newFakePlatform()
	store := newMemStore()
	applier := NewApplier(platform, store)

	result, err := applier.Apply(context.Background(), 1, []PlannedItem{plannedApply(1, "v1")})
	require.NoError(t, err)

	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Updated)
	require.Equal(t, []string{"v1"}, platform.fetchCalls)
	require.Equal(t, []string{"v1"}, platform.updateCalls)
	require.Equal(t, models.UpdateStatusUpdated, store.statuses[1][0])
	require.Equal(t, []string{"v1:updated"}, store.logs)
}

func TestApplyPreservesUntouchedSnippetFields(t *testing.T) {
	platform := newFakePlatform()
	platform.videos["v1"] = &ytv3.Video{
		Id: "v1",
		Snippet: &ytv3.VideoSnippet{
			Title:                "Old",
			DefaultAudioLanguage: "es",
			DefaultLanguage:      "es-419",
			ChannelId:            "UC123",
		},
		Status: &ytv3.VideoStatus{PrivacyStatus: "public", Embeddable: true},
	}
	applier := NewApplier(platform, newMemStore())

	_, err := applier.Apply(context.Background(), 1, []PlannedItem{plannedApply(1, "v1")})
	require.NoError(t, err)

	got := platform.updated["v1"]
	require.Equal(t, "New Title", got.Snippet.Title)
	require.Equal(t, "es", got.Snippet.DefaultAudioLanguage)
	require.Equal(t, "es-419", got.Snippet.DefaultLanguage)
	require.Equal(t, "UC123", got.Snippet.ChannelId)
	require.Equal(t, "public", got.Status.PrivacyStatus)
}

func TestApplySkippedPlanDoesNotCallPlatform(t *testing.T) {
	platform := newFakePlatform()
	store := newMemStore()
	applier := NewApplier(platform, store)

	item := PlannedItem{
		Item: &models.AuditItem{ID: 1, VideoID: "v1", Source: SourceHeuristic},
		Plan: Plan{Skip: true, Reason: ReasonNoTarget},
	}
	result, err := applier.Apply(context.Background(), 1, []PlannedItem{item})
	require.NoError(t, err)

	require.Equal(t, 1, result.Skipped)
	require.Empty(t, platform.fetchCalls)
	require.Empty(t, platform.updateCalls)
	require.Equal(t, [2]string{models.UpdateStatusSkipped, ReasonNoTarget}, store.statuses[1])
}

func TestApplyQuotaCircuitBreaker(t *testing.T) {
	platform := newFakePlatform()
	platform.failWith["v2"] = &models.QuotaError{Message: "quotaExceeded: daily limit reached"}
	store := newMemStore()
	applier := NewApplier(platform, store)

	items := []PlannedItem{plannedApply(1, "v1"), plannedApply(2, "v2"), plannedApply(3, "v3")}
	result, err := applier.Apply(context.Background(), 7, items)
	require.NoError(t, err)

	require.Equal(t, 3, result.Processed)
	require.Equal(t, 1, result.Updated)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Skipped)
	require.True(t, result.QuotaExceeded)

	// Item 3 must never reach the platform.
	require.Equal(t, []string{"v1", "v2"}, platform.fetchCalls)
	require.Equal(t, []string{"v1", "v2"}, platform.updateCalls)
	require.Equal(t, models.UpdateStatusError, store.statuses[2][0])
	require.Equal(t, [2]string{models.UpdateStatusSkipped, ReasonQuotaExceededAbort}, store.statuses[3])
}

func TestApplyNonQuotaErrorDoesNotAbortBatch(t *testing.T) {
	platform := newFakePlatform()
	platform.failWith["v1"] = errors.New("backend error")
	store := newMemStore()
	applier := NewApplier(platform, store)

	result, err := applier.Apply(context.Background(), 1, []PlannedItem{plannedApply(1, "v1"), plannedApply(2, "v2")})
	require.NoError(t, err)

	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.Updated)
	require.False(t, result.QuotaExceeded)
	require.Equal(t, []string{"v1", "v2"}, platform.updateCalls)
}

func TestApplyTruncatesErrorMessage(t *testing.T) {
	platform := newFakePlatform()
	platform.failWith["v1"] = errors.New(strings.Repeat("x", 2000))
	store := newMemStore()
	applier := NewApplier(platform, store)

	_, err := applier.Apply(context.Background(), 1, []PlannedItem{plannedApply(1, "v1")})
	require.NoError(t, err)

	require.Len(t, store.statuses[1][1], maxErrorMessageLength)
}

func TestApplyCountsProtectedMain(t *testing.T) {
	platform := newFakePlatform()
	store := newMemStore()
	applier := NewApplier(platform, store)

	protectedApply := plannedApply(1, "v1")
	protectedApply.Plan.Protected = true
	protectedApply.Plan.Source = SourceHeuristicProtected

	protectedSkip := PlannedItem{
		Item: &models.AuditItem{ID: 2, VideoID: "v2", Source: SourceHeuristic},
		Plan: Plan{Skip: true, Reason: ReasonProtectedMainNoSafeChange, Protected: true},
	}

	result, err := applier.Apply(context.Background(), 1, []PlannedItem{protectedApply, protectedSkip})
	require.NoError(t, err)

	require.Equal(t, 2, result.ProtectedMain)
	require.Equal(t, 1, result.Updated)
	require.Equal(t, 1, result.Skipped)
}
