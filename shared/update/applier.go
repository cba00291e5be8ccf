package update

import (
	"context"
	"log"

	ytv3 "google.golang.org/api/youtube/v3"

	"seo-agent/internal/models"
)

// maxErrorMessageLength caps the error text persisted on an audit item.
const maxErrorMessageLength = 1000

// Platform is the video platform surface the applier needs: a read of the
// live snippet+status and the update call. The real implementation lives in
// the YouTube client, which classifies quota exhaustion into
// models.QuotaError at that boundary.
type Platform interface {
	FetchVideo(ctx context.Context, videoID string) (*ytv3.Video, error)
	UpdateVideo(ctx context.Context, video *ytv3.Video) error
}

// ItemStore is the persistence surface the applier needs.
type ItemStore interface {
	SetItemUpdateStatus(itemID int64, status, message, source string) error
	AppendUpdateLog(runID int64, videoID, action, detail string) error
}

// PlannedItem pairs an audit item with its computed plan.
type PlannedItem struct {
	Item *models.AuditItem
	Plan Plan
}

// Applier executes planned updates sequentially against the platform.
type Applier struct {
	platform Platform
	store    ItemStore
}

func NewApplier(platform Platform, store ItemStore) *Applier {
	return &Applier{platform: platform, store: store}
}

// Apply walks the planned items in order. Each apply is a read-before-write:
// the live snippet and status are fetched, only the four SEO fields are
// overwritten, everything else passes through untouched. Once a quota
// exhaustion error is observed, every remaining item is marked skipped
// without touching the API - a fail-fast circuit breaker for the rest of the
// batch, not a retry.
func (a *Applier) Apply(ctx context.Context, runID int64, planned []PlannedItem) (*models.UpdateResult, error) {
	result := &models.UpdateResult{}

	for _, pi := range planned {
		result.Processed++
		item, plan := pi.Item, pi.Plan

		if plan.Protected {
			result.ProtectedMain++
		}

		if result.QuotaExceeded {
			a.recordSkip(runID, item, ReasonQuotaExceededAbort)
			result.Skipped++
			continue
		}

		if plan.Skip {
			a.recordSkip(runID, item, plan.Reason)
			result.Skipped++
			continue
		}

		if err := a.applyOne(ctx, item, plan); err != nil {
			result.Failed++
			msg := truncateMessage(err.Error())
			a.record(item.ID, models.UpdateStatusError, msg, plan.Source)
			a.logRow(runID, item.VideoID, models.UpdateStatusError, msg)
			if models.IsQuotaExceeded(err) {
				log.Printf("Quota exhausted at video %s, aborting remaining updates", item.VideoID)
				result.QuotaExceeded = true
			}
			continue
		}

		result.Updated++
		a.record(item.ID, models.UpdateStatusUpdated, "", plan.Source)
		a.logRow(runID, item.VideoID, models.UpdateStatusUpdated, "applied "+plan.Source+" metadata")
	}

	return result, nil
}

func (a *Applier) applyOne(ctx context.Context, item *models.AuditItem, plan Plan) error {
	video, err := a.platform.FetchVideo(ctx, item.VideoID)
	if err != nil {
		return err
	}

	mergeMetadata(video, plan.Payload)

	return a.platform.UpdateVideo(ctx, video)
}

// mergeMetadata overwrites only the four SEO fields on the live resource,
// preserving every other snippet and status field (localization, defaults,
// embeddability) exactly as fetched.
func mergeMetadata(video *ytv3.Video, set models.MetadataSet) {
	if video.Snippet == nil {
		video.Snippet = &ytv3.VideoSnippet{}
	}
	video.Snippet.Title = set.Title
	video.Snippet.Description = set.Description
	video.Snippet.CategoryId = set.CategoryID
	video.Snippet.Tags = set.Tags
}

func (a *Applier) recordSkip(runID int64, item *models.AuditItem, reason string) {
	a.record(item.ID, models.UpdateStatusSkipped, reason, item.Source)
	a.logRow(runID, item.VideoID, models.UpdateStatusSkipped, reason)
}

func (a *Applier) record(itemID int64, status, message, source string) {
	if err := a.store.SetItemUpdateStatus(itemID, status, message, source); err != nil {
		log.Printf("Warning: failed to persist update status for item %d: %v", itemID, err)
	}
}

func (a *Applier) logRow(runID int64, videoID, action, detail string) {
	if err := a.store.AppendUpdateLog(runID, videoID, action, detail); err != nil {
		log.Printf("Warning: failed to append update log for %s: %v", videoID, err)
	}
}

func truncateMessage(s string) string {
	if len(s) <= maxErrorMessageLength {
		return s
	}
	return s[:maxErrorMessageLength]
}
