package models

import "time"

// MetadataSet is the value type the whole pipeline moves around: the four
// writable SEO fields of a video. It is never persisted on its own, only
// embedded in audit items and targets.
type MetadataSet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CategoryID  string   `json:"category_id"`
	Tags        []string `json:"tags"`
}

// Video is a live snapshot of one channel video at inspection time.
type Video struct {
	ID            string    `json:"id"`
	PublishedAt   time.Time `json:"published_at"`
	PrivacyStatus string    `json:"privacy_status"`
	ViewCount     int64     `json:"view_count"`
	LikeCount     int64     `json:"like_count"`
	CommentCount  int64     `json:"comment_count"`
	Metadata      MetadataSet `json:"metadata"`
}

// Audit item update statuses. An item starts as pending and transitions to
// one of the terminal states when the update step runs; re-running the update
// step re-plans from scratch and may transition again.
const (
	UpdateStatusPending = "pending"
	UpdateStatusUpdated = "updated"
	UpdateStatusSkipped = "skipped"
	UpdateStatusError   = "error"
)

// AuditRun is one inspection pass over a channel. Immutable after creation;
// it owns its AuditItems (cascade-deleted with it).
type AuditRun struct {
	ID               int64          `json:"id"`
	ChannelID        string         `json:"channel_id"`
	ChannelTitle     string         `json:"channel_title"`
	VideosInspected  int            `json:"videos_inspected"`
	VideosNeedingFix int            `json:"videos_needing_fix"`
	IssueHistogram   map[string]int `json:"issue_histogram"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
}

// AuditItem is one video's snapshot plus computed issues within an AuditRun.
// Write-once except for the update status fields, which only the update step
// mutates.
type AuditItem struct {
	ID            int64       `json:"id"`
	RunID         int64       `json:"run_id"`
	VideoID       string      `json:"video_id"`
	PublishedAt   time.Time   `json:"published_at"`
	PrivacyStatus string      `json:"privacy_status"`
	ViewCount     int64       `json:"view_count"`
	LikeCount     int64       `json:"like_count"`
	CommentCount  int64       `json:"comment_count"`
	Current       MetadataSet `json:"current"`
	Issues        []string    `json:"issues"`
	NeedsFix      bool        `json:"needs_fix"`
	Target        *MetadataSet `json:"target,omitempty"`
	Recommended   MetadataSet  `json:"recommended"`
	// Source is "target" when the recommendation came from a stored
	// MetadataTarget, "heuristic" otherwise.
	Source        string     `json:"source"`
	UpdateStatus  string     `json:"update_status"`
	UpdateMessage string     `json:"update_message,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// MetadataTarget is the durable desired state for one video, independent of
// any single audit run. Unique per video id; upserted by the optimization
// pass or manual curation. The active flag soft-disables it.
type MetadataTarget struct {
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CategoryID  string    `json:"category_id"`
	Tags        []string  `json:"tags"`
	Source      string    `json:"source"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Metadata returns the target's fields as a MetadataSet.
func (t *MetadataTarget) Metadata() MetadataSet {
	return MetadataSet{
		Title:       t.Title,
		Description: t.Description,
		CategoryID:  t.CategoryID,
		Tags:        t.Tags,
	}
}

// SeoOptimizationRun records one LLM-assisted optimization pass over the
// top-traffic subset of an audit run's items.
type SeoOptimizationRun struct {
	ID         int64     `json:"id"`
	AuditRunID int64     `json:"audit_run_id"`
	Model      string    `json:"model"`
	Requested  int       `json:"requested"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Optimization item parse statuses.
const (
	ParseStatusOK     = "ok"
	ParseStatusFailed = "seo_json_parse_failed"
	ParseStatusError  = "error"
)

// SeoOptimizationItem is one video's pass through the LLM adapter. The raw
// response is kept even when parsing fails, for forensic review.
type SeoOptimizationItem struct {
	ID          int64             `json:"id"`
	RunID       int64             `json:"run_id"`
	VideoID     string            `json:"video_id"`
	Prompt      string            `json:"prompt"`
	RawResponse string            `json:"raw_response"`
	ParseStatus string            `json:"parse_status"`
	// MatchedAliases records which JSON key alias produced each field, for
	// provenance when the model uses a nonstandard shape.
	MatchedAliases map[string]string `json:"matched_aliases,omitempty"`
	Optimized      *MetadataSet      `json:"optimized,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// UpdateResult summarizes one apply batch.
type UpdateResult struct {
	Processed     int  `json:"processed"`
	Updated       int  `json:"updated"`
	Skipped       int  `json:"skipped"`
	Failed        int  `json:"failed"`
	ProtectedMain int  `json:"protected_main"`
	QuotaExceeded bool `json:"quota_exceeded"`
}

// UpdateLog is one append-only row recording an update attempt outcome.
type UpdateLog struct {
	ID        int64     `json:"id"`
	RunID     int64     `json:"run_id"`
	VideoID   string    `json:"video_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditDigest aggregates one run's counts for the daily email report.
type AuditDigest struct {
	Date             time.Time      `json:"date"`
	Run              *AuditRun      `json:"run"`
	IssueHistogram   map[string]int `json:"issue_histogram"`
	UpdatesApplied   int            `json:"updates_applied"`
	UpdatesFailed    int            `json:"updates_failed"`
	UpdatesSkipped   int            `json:"updates_skipped"`
}
