package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"seo-agent/internal/models"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is the single persistence handle for audit runs, items, metadata
// targets, optimization runs and update logs. Construct it explicitly and
// pass it into the pipeline entry points; Close it on process exit.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAuditRun inserts a run and its items in one transaction. The run id
// and item ids are filled in on success.
func (s *Store) CreateAuditRun(run *models.AuditRun, items []*models.AuditItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	run.CreatedAt = time.Now().UTC()
	res, err := tx.Exec(`
		INSERT INTO audit_runs (channel_id, channel_title, videos_inspected, videos_needing_fix, issue_histogram, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ChannelID, run.ChannelTitle, run.VideosInspected, run.VideosNeedingFix,
		marshalJSON(run.IssueHistogram), run.CreatedBy, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit run id: %w", err)
	}

	for _, item := range items {
		item.RunID = run.ID
		if item.UpdateStatus == "" {
			item.UpdateStatus = models.UpdateStatusPending
		}
		res, err := tx.Exec(`
			INSERT INTO audit_items (run_id, video_id, published_at, privacy_status, view_count, like_count, comment_count,
				title, description, category_id, tags, issues, needs_fix, target_json, recommended, source, update_status, update_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, item.RunID, item.VideoID, nullTime(item.PublishedAt), item.PrivacyStatus,
			item.ViewCount, item.LikeCount, item.CommentCount,
			item.Current.Title, item.Current.Description, item.Current.CategoryID,
			marshalJSON(item.Current.Tags), marshalJSON(item.Issues), item.NeedsFix,
			nullableJSON(item.Target), marshalJSON(item.Recommended), item.Source,
			item.UpdateStatus, item.UpdateMessage)
		if err != nil {
			return fmt.Errorf("failed to insert audit item %s: %w", item.VideoID, err)
		}
		item.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get audit item id: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) GetAuditRun(id int64) (*models.AuditRun, error) {
	row := s.db.QueryRow(`
		SELECT id, channel_id, channel_title, videos_inspected, videos_needing_fix, issue_histogram, created_by, created_at
		FROM audit_runs WHERE id = ?
	`, id)
	return scanAuditRun(row)
}

// LatestAuditRun returns the most recent run, or nil when none exist.
func (s *Store) LatestAuditRun() (*models.AuditRun, error) {
	row := s.db.QueryRow(`
		SELECT id, channel_id, channel_title, videos_inspected, videos_needing_fix, issue_histogram, created_by, created_at
		FROM audit_runs ORDER BY id DESC LIMIT 1
	`)
	run, err := scanAuditRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *Store) ListAuditRuns(limit int) ([]*models.AuditRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, channel_id, channel_title, videos_inspected, videos_needing_fix, issue_histogram, created_by, created_at
		FROM audit_runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.AuditRun
	for rows.Next() {
		run, err := scanAuditRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteAuditRun removes a run; its items cascade with it.
func (s *Store) DeleteAuditRun(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM audit_runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete audit run %d: %w", id, err)
	}
	return nil
}

func (s *Store) ListAuditItems(runID int64) ([]*models.AuditItem, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, video_id, published_at, privacy_status, view_count, like_count, comment_count,
			title, description, category_id, tags, issues, needs_fix, target_json, recommended, source,
			update_status, update_message, updated_at
		FROM audit_items WHERE run_id = ? ORDER BY view_count DESC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit items: %w", err)
	}
	defer rows.Close()

	var items []*models.AuditItem
	for rows.Next() {
		item, err := scanAuditItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetItemUpdateStatus records the outcome of the update step for one item.
func (s *Store) SetItemUpdateStatus(itemID int64, status, message, source string) error {
	_, err := s.db.Exec(`
		UPDATE audit_items SET update_status = ?, update_message = ?, source = ?, updated_at = ?
		WHERE id = ?
	`, status, message, source, time.Now().UTC(), itemID)
	if err != nil {
		return fmt.Errorf("failed to update audit item %d status: %w", itemID, err)
	}
	return nil
}

// AppendUpdateLog adds one append-only row to the update log.
func (s *Store) AppendUpdateLog(runID int64, videoID, action, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO update_logs (run_id, video_id, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, videoID, action, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append update log: %w", err)
	}
	return nil
}

func (s *Store) ListUpdateLogs(runID int64) ([]*models.UpdateLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, video_id, action, detail, created_at
		FROM update_logs WHERE run_id = ? ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list update logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.UpdateLog
	for rows.Next() {
		var l models.UpdateLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.VideoID, &l.Action, &l.Detail, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan update log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// UpsertMetadataTarget inserts or replaces the desired state for a video id.
func (s *Store) UpsertMetadataTarget(t *models.MetadataTarget) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO metadata_targets (video_id, title, description, category_id, tags, source, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category_id = excluded.category_id,
			tags = excluded.tags,
			source = excluded.source,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, t.VideoID, t.Title, t.Description, t.CategoryID, marshalJSON(t.Tags), t.Source, t.Active, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert metadata target %s: %w", t.VideoID, err)
	}
	return nil
}

// GetMetadataTarget returns the active target for a video id, or nil when
// none exists or the stored one is soft-disabled.
func (s *Store) GetMetadataTarget(videoID string) (*models.MetadataTarget, error) {
	row := s.db.QueryRow(`
		SELECT video_id, title, description, category_id, tags, source, active, created_at, updated_at
		FROM metadata_targets WHERE video_id = ? AND active = 1
	`, videoID)
	t, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ActiveTargets returns all active targets keyed by video id.
func (s *Store) ActiveTargets() (map[string]*models.MetadataTarget, error) {
	rows, err := s.db.Query(`
		SELECT video_id, title, description, category_id, tags, source, active, created_at, updated_at
		FROM metadata_targets WHERE active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata targets: %w", err)
	}
	defer rows.Close()

	targets := make(map[string]*models.MetadataTarget)
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets[t.VideoID] = t
	}
	return targets, rows.Err()
}

func (s *Store) ListMetadataTargets() ([]*models.MetadataTarget, error) {
	rows, err := s.db.Query(`
		SELECT video_id, title, description, category_id, tags, source, active, created_at, updated_at
		FROM metadata_targets ORDER BY video_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata targets: %w", err)
	}
	defer rows.Close()

	var targets []*models.MetadataTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// CreateOptimizationRun inserts an optimization run shell; counters are
// filled in by FinishOptimizationRun once the batch completes.
func (s *Store) CreateOptimizationRun(run *models.SeoOptimizationRun) error {
	run.CreatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO seo_optimization_runs (audit_run_id, model, requested, succeeded, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.AuditRunID, run.Model, run.Requested, run.Succeeded, run.Failed, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert optimization run: %w", err)
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get optimization run id: %w", err)
	}
	return nil
}

func (s *Store) FinishOptimizationRun(id int64, requested, succeeded, failed int) error {
	_, err := s.db.Exec(`
		UPDATE seo_optimization_runs SET requested = ?, succeeded = ?, failed = ? WHERE id = ?
	`, requested, succeeded, failed, id)
	if err != nil {
		return fmt.Errorf("failed to finish optimization run %d: %w", id, err)
	}
	return nil
}

func (s *Store) InsertOptimizationItem(item *models.SeoOptimizationItem) error {
	item.CreatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO seo_optimization_items (run_id, video_id, prompt, raw_response, parse_status, matched_aliases, optimized, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.RunID, item.VideoID, item.Prompt, item.RawResponse, item.ParseStatus,
		nullableJSON(item.MatchedAliases), nullableJSON(item.Optimized), item.ErrorMessage, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert optimization item %s: %w", item.VideoID, err)
	}
	item.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get optimization item id: %w", err)
	}
	return nil
}

func (s *Store) ListOptimizationItems(runID int64) ([]*models.SeoOptimizationItem, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, video_id, prompt, raw_response, parse_status, matched_aliases, optimized, error_message, created_at
		FROM seo_optimization_items WHERE run_id = ? ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list optimization items: %w", err)
	}
	defer rows.Close()

	var items []*models.SeoOptimizationItem
	for rows.Next() {
		var (
			item      models.SeoOptimizationItem
			aliases   sql.NullString
			optimized sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.RunID, &item.VideoID, &item.Prompt, &item.RawResponse,
			&item.ParseStatus, &aliases, &optimized, &item.ErrorMessage, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan optimization item: %w", err)
		}
		if aliases.Valid {
			if err := json.Unmarshal([]byte(aliases.String), &item.MatchedAliases); err != nil {
				return nil, fmt.Errorf("failed to decode matched aliases: %w", err)
			}
		}
		if optimized.Valid {
			var set models.MetadataSet
			if err := json.Unmarshal([]byte(optimized.String), &set); err != nil {
				return nil, fmt.Errorf("failed to decode optimized metadata: %w", err)
			}
			item.Optimized = &set
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAuditRun(row scannable) (*models.AuditRun, error) {
	var (
		run       models.AuditRun
		histogram string
	)
	if err := row.Scan(&run.ID, &run.ChannelID, &run.ChannelTitle, &run.VideosInspected,
		&run.VideosNeedingFix, &histogram, &run.CreatedBy, &run.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit run: %w", err)
	}
	if err := json.Unmarshal([]byte(histogram), &run.IssueHistogram); err != nil {
		return nil, fmt.Errorf("failed to decode issue histogram: %w", err)
	}
	return &run, nil
}

func scanAuditItem(row scannable) (*models.AuditItem, error) {
	var (
		item        models.AuditItem
		publishedAt sql.NullTime
		updatedAt   sql.NullTime
		tags        string
		issues      string
		targetJSON  sql.NullString
		recommended string
	)
	if err := row.Scan(&item.ID, &item.RunID, &item.VideoID, &publishedAt, &item.PrivacyStatus,
		&item.ViewCount, &item.LikeCount, &item.CommentCount,
		&item.Current.Title, &item.Current.Description, &item.Current.CategoryID,
		&tags, &issues, &item.NeedsFix, &targetJSON, &recommended, &item.Source,
		&item.UpdateStatus, &item.UpdateMessage, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan audit item: %w", err)
	}
	if publishedAt.Valid {
		item.PublishedAt = publishedAt.Time
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		item.UpdatedAt = &t
	}
	if err := json.Unmarshal([]byte(tags), &item.Current.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(issues), &item.Issues); err != nil {
		return nil, fmt.Errorf("failed to decode issues: %w", err)
	}
	if targetJSON.Valid {
		var target models.MetadataSet
		if err := json.Unmarshal([]byte(targetJSON.String), &target); err != nil {
			return nil, fmt.Errorf("failed to decode target snapshot: %w", err)
		}
		item.Target = &target
	}
	if err := json.Unmarshal([]byte(recommended), &item.Recommended); err != nil {
		return nil, fmt.Errorf("failed to decode recommendation: %w", err)
	}
	return &item, nil
}

func scanTarget(row scannable) (*models.MetadataTarget, error) {
	var (
		t    models.MetadataTarget
		tags string
	)
	if err := row.Scan(&t.VideoID, &t.Title, &t.Description, &t.CategoryID, &tags,
		&t.Source, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan metadata target: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode target tags: %w", err)
	}
	return &t, nil
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func nullableJSON(v any) any {
	switch t := v.(type) {
	case *models.MetadataSet:
		if t == nil {
			return nil
		}
	case map[string]string:
		if len(t) == 0 {
			return nil
		}
	}
	return marshalJSON(v)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
