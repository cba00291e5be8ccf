package seoauditor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	ytv3 "google.golang.org/api/youtube/v3"

	"seo-agent/agents/seo-auditor/youtube"
	"seo-agent/internal/models"
	"seo-agent/shared/ai"
	"seo-agent/shared/config"
	"seo-agent/shared/email"
	"seo-agent/shared/metadata"
	"seo-agent/shared/scheduler"
	"seo-agent/shared/storage"
	"seo-agent/shared/update"
)

// VideoPlatform is the slice of the YouTube client the agent needs. Satisfied
// by *youtube.Client; narrowed to an interface so the pipeline is testable
// without network access.
type VideoPlatform interface {
	ListChannelVideos(ctx context.Context, channelID string) (*youtube.ChannelSnapshot, error)
	FetchVideo(ctx context.Context, videoID string) (*ytv3.Video, error)
	UpdateVideo(ctx context.Context, video *ytv3.Video) error
}

// AuditMetrics summarizes one full agent run for the scheduler's monitor.
type AuditMetrics struct {
	VideosInspected  int
	VideosNeedingFix int
	Optimized        int
	Updated          int
	Skipped          int
	Failed           int
	ProtectedMain    int
	QuotaExceeded    bool
}

// GetSummary implements scheduler.Metrics.
func (m *AuditMetrics) GetSummary() string {
	summary := fmt.Sprintf("%d videos inspected, %d needing fix, %d optimized, %d updated, %d skipped, %d failed",
		m.VideosInspected, m.VideosNeedingFix, m.Optimized, m.Updated, m.Skipped, m.Failed)
	if m.ProtectedMain > 0 {
		summary += fmt.Sprintf(", %d main videos protected", m.ProtectedMain)
	}
	if m.QuotaExceeded {
		summary += " (quota exceeded, batch aborted)"
	}
	return summary
}

// SEOAgent implements the scheduler.Agent interface. One run inspects the
// channel, optionally optimizes the top-traffic offenders with the LLM, then
// applies the planned metadata updates.
type SEOAgent struct {
	config      *config.Config
	client      *youtube.Client
	platform    VideoPlatform
	optimizer   *ai.Optimizer
	emailSender *email.Sender
	store       *storage.Store
}

func NewSEOAgent(cfg *config.Config) *SEOAgent {
	return &SEOAgent{config: cfg}
}

// NewSEOAgentWithStore wires an agent onto an already-open store. Used by
// commands that only read persisted runs and never touch the network;
// Initialize still builds the missing pieces when called.
func NewSEOAgentWithStore(cfg *config.Config, store *storage.Store) *SEOAgent {
	return &SEOAgent{config: cfg, store: store}
}

func (a *SEOAgent) Name() string {
	return "SEO Auditor"
}

func (a *SEOAgent) Initialize() error {
	log.Printf("Initializing %s...", a.Name())

	if a.store == nil {
		store, err := storage.Open(a.config.Storage.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		a.store = store
		log.Printf("Store opened at %s", a.config.Storage.DatabaseFile)
	}

	if a.platform == nil {
		client, err := youtube.NewClient(&a.config.YouTube)
		if err != nil {
			return fmt.Errorf("failed to create YouTube client: %w", err)
		}
		a.client = client
		a.platform = client
		log.Println("YouTube client initialized")
	}

	if a.optimizer == nil && a.config.AI.GeminiAPIKey != "" {
		optimizer, err := ai.NewOptimizer(a.config, a.store)
		if err != nil {
			return fmt.Errorf("failed to create optimizer: %w", err)
		}
		a.optimizer = optimizer
		log.Println("AI optimizer initialized")
	}

	if a.emailSender == nil && a.config.Email.Enabled {
		a.emailSender = email.NewSender(&a.config.Email)
		log.Println("Email sender initialized")
	}

	return nil
}

// Store exposes the agent's persistence handle for the dashboard and CLI.
func (a *SEOAgent) Store() *storage.Store {
	return a.store
}

func (a *SEOAgent) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// RunOnce executes the full pipeline: audit, optimize, update, digest.
func (a *SEOAgent) RunOnce(ctx context.Context, events *scheduler.AgentEvents) error {
	startTime := time.Now()

	if a.client != nil {
		if err := a.client.RefreshToken(); err != nil {
			log.Printf("Warning: token refresh failed, continuing with current token: %v", err)
		}
	}

	run, _, err := a.RunAudit(ctx)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	metrics := &AuditMetrics{
		VideosInspected:  run.VideosInspected,
		VideosNeedingFix: run.VideosNeedingFix,
	}

	if a.optimizer != nil && run.VideosNeedingFix > 0 {
		optRun, err := a.RunOptimization(ctx, run.ID, a.config.AI.TopVideos)
		if err != nil {
			if events != nil && events.OnPartialFailure != nil {
				events.OnPartialFailure(fmt.Errorf("optimization failed: %w", err), time.Since(startTime))
			}
			log.Printf("Warning: optimization pass failed: %v", err)
		} else {
			metrics.Optimized = optRun.Succeeded
		}
	}

	mode, _ := update.ParseMode(a.config.Update.Mode)
	result, err := a.ApplyAuditUpdates(ctx, run.ID, mode, a.config.ProtectMain())
	if err != nil {
		return fmt.Errorf("update step failed: %w", err)
	}
	metrics.Updated = result.Updated
	metrics.Skipped = result.Skipped
	metrics.Failed = result.Failed
	metrics.ProtectedMain = result.ProtectedMain
	metrics.QuotaExceeded = result.QuotaExceeded

	if a.emailSender != nil {
		digest := a.BuildDigest(run, result)
		if err := a.emailSender.SendAuditDigest(digest); err != nil {
			if events != nil && events.OnPartialFailure != nil {
				events.OnPartialFailure(fmt.Errorf("digest email failed: %w", err), time.Since(startTime))
			}
			log.Printf("Warning: failed to send digest email: %v", err)
		} else {
			log.Println("Digest email sent")
		}
	}

	duration := time.Since(startTime)
	if events != nil && events.OnSuccess != nil {
		events.OnSuccess(metrics, duration)
	}

	log.Printf("Run complete: %s (took %v)", metrics.GetSummary(), duration)
	return nil
}

// RunAudit inspects every channel upload, evaluates it against its stored
// target or the heuristic checks, and persists one immutable audit run.
func (a *SEOAgent) RunAudit(ctx context.Context) (*models.AuditRun, []*models.AuditItem, error) {
	log.Printf("Auditing channel %s...", a.config.YouTube.ChannelID)

	snapshot, err := a.platform.ListChannelVideos(ctx, a.config.YouTube.ChannelID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list channel videos: %w", err)
	}

	targets, err := a.store.ActiveTargets()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load metadata targets: %w", err)
	}

	opts := metadata.EvaluatorOptions{
		MinDescriptionLength: a.config.Audit.MinDescriptionLength,
		MusicCategoryID:      a.config.Audit.MusicCategoryID,
	}

	run := &models.AuditRun{
		ChannelID:      snapshot.ChannelID,
		ChannelTitle:   snapshot.ChannelTitle,
		IssueHistogram: make(map[string]int),
		CreatedBy:      a.config.Audit.CreatedBy,
	}

	var items []*models.AuditItem
	for _, video := range snapshot.Videos {
		target := targets[video.ID]
		eval := metadata.Evaluate(video, target, opts)

		item := &models.AuditItem{
			VideoID:       video.ID,
			PublishedAt:   video.PublishedAt,
			PrivacyStatus: video.PrivacyStatus,
			ViewCount:     video.ViewCount,
			LikeCount:     video.LikeCount,
			CommentCount:  video.CommentCount,
			Current:       video.Metadata,
			Issues:        eval.Issues,
			NeedsFix:      eval.NeedsFix,
			Recommended:   eval.Recommended,
			Source:        eval.Source,
			UpdateStatus:  models.UpdateStatusPending,
		}
		if target != nil {
			desired := target.Metadata()
			item.Target = &desired
		}

		run.VideosInspected++
		if eval.NeedsFix {
			run.VideosNeedingFix++
		}
		for _, issue := range eval.Issues {
			run.IssueHistogram[issue]++
		}
		items = append(items, item)
	}

	if err := a.store.CreateAuditRun(run, items); err != nil {
		return nil, nil, fmt.Errorf("failed to persist audit run: %w", err)
	}

	log.Printf("Audit run %d created: %d videos, %d needing fix", run.ID, run.VideosInspected, run.VideosNeedingFix)
	return run, items, nil
}

// RunOptimization sends the top-traffic items needing a fix through the LLM
// optimizer, which persists the resulting metadata targets.
func (a *SEOAgent) RunOptimization(ctx context.Context, runID int64, topN int) (*models.SeoOptimizationRun, error) {
	if a.optimizer == nil {
		return nil, fmt.Errorf("optimizer not configured (set GEMINI_API_KEY or ai.gemini_api_key)")
	}
	if topN <= 0 {
		topN = a.config.AI.TopVideos
	}

	items, err := a.store.ListAuditItems(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit items: %w", err)
	}

	// Items come back ordered by view count, so taking the head selects the
	// highest-traffic offenders.
	var selected []*models.AuditItem
	for _, item := range items {
		if !item.NeedsFix {
			continue
		}
		selected = append(selected, item)
		if len(selected) >= topN {
			break
		}
	}

	if len(selected) == 0 {
		log.Println("No items need optimization")
		return &models.SeoOptimizationRun{AuditRunID: runID, Model: a.config.AI.Model}, nil
	}

	log.Printf("Optimizing %d top-traffic videos from run %d", len(selected), runID)
	return a.optimizer.OptimizeItems(ctx, runID, selected)
}

// ApplyAuditUpdates plans and applies metadata updates for every item of an
// audit run. Plans are recomputed from the current target table, so targets
// created after the audit still take effect.
func (a *SEOAgent) ApplyAuditUpdates(ctx context.Context, runID int64, mode update.Mode, protectMain bool) (*models.UpdateResult, error) {
	items, err := a.store.ListAuditItems(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit items: %w", err)
	}

	targets, err := a.store.ActiveTargets()
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata targets: %w", err)
	}

	planned := make([]update.PlannedItem, 0, len(items))
	for _, item := range items {
		plan := update.PlanUpdate(item, targets[item.VideoID], mode, protectMain)
		planned = append(planned, update.PlannedItem{Item: item, Plan: plan})
	}

	applier := update.NewApplier(a.platform, a.store)
	result, err := applier.Apply(ctx, runID, planned)
	if err != nil {
		return nil, err
	}

	log.Printf("Update batch for run %d: %d updated, %d skipped, %d failed", runID, result.Updated, result.Skipped, result.Failed)
	return result, nil
}

// BuildDigest assembles the email digest for one completed run.
func (a *SEOAgent) BuildDigest(run *models.AuditRun, result *models.UpdateResult) *models.AuditDigest {
	digest := &models.AuditDigest{
		Date:           time.Now(),
		Run:            run,
		IssueHistogram: run.IssueHistogram,
	}
	if result != nil {
		digest.UpdatesApplied = result.Updated
		digest.UpdatesFailed = result.Failed
		digest.UpdatesSkipped = result.Skipped
	}
	return digest
}

// BuildReport renders a plain-text report for one run, for the CLI.
func (a *SEOAgent) BuildReport(runID int64) (string, error) {
	run, err := a.store.GetAuditRun(runID)
	if err != nil {
		return "", fmt.Errorf("failed to load audit run %d: %w", runID, err)
	}
	items, err := a.store.ListAuditItems(runID)
	if err != nil {
		return "", fmt.Errorf("failed to list audit items: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Audit run %d for %s (%s)\n", run.ID, run.ChannelTitle, run.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Videos inspected: %d, needing fix: %d\n", run.VideosInspected, run.VideosNeedingFix)
	if len(run.IssueHistogram) > 0 {
		fmt.Fprintf(&b, "Issues:\n")
		for issue, count := range run.IssueHistogram {
			fmt.Fprintf(&b, "  %-30s %d\n", issue, count)
		}
	}
	fmt.Fprintf(&b, "\nVideos needing a fix (by traffic):\n")
	for _, item := range items {
		if !item.NeedsFix {
			continue
		}
		fmt.Fprintf(&b, "  %s  %8d views  [%s]  %s\n",
			item.VideoID, item.ViewCount, strings.Join(item.Issues, ", "), item.Current.Title)
	}
	return b.String(), nil
}
