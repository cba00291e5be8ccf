package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"seo-agent/internal/models"
	"seo-agent/shared/config"
	"seo-agent/shared/metadata"
	"seo-agent/shared/storage"
)

const systemInstruction = `You are a YouTube SEO specialist for a music artist's channel.
You respond with a single strict JSON object and nothing else: no prose, no markdown
outside one optional json code fence. The object has the keys "title", "description",
"category_id" and "tags" (array of strings).`

// Field aliases accepted from the model's JSON, in priority order. The first
// matching alias wins and is recorded for provenance.
var fieldAliases = map[string][]string{
	"title":       {"optimized_title", "title", "new_title"},
	"description": {"optimized_description", "description", "new_description"},
	"category_id": {"category_id", "categoryId", "category"},
	"tags":        {"optimized_tags", "tags", "new_tags"},
}

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Optimizer drives the LLM optimization pass: one prompt per video, strict
// JSON out, parsed and clamped into a MetadataTarget.
type Optimizer struct {
	client        *genai.Client
	model         string
	store         *storage.Store
	styleTemplate string
}

// NewOptimizer builds the Gemini-backed optimizer. A missing API key is a
// fatal configuration error: it fails here, before any batch work starts.
func NewOptimizer(cfg *config.Config, store *storage.Store) (*Optimizer, error) {
	if cfg.AI.GeminiAPIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or ai.gemini_api_key)")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.AI.GeminiAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Optimizer{
		client:        client,
		model:         cfg.AI.Model,
		store:         store,
		styleTemplate: loadStyleTemplate(cfg.AI.StyleTemplateFile, cfg.AI.StyleTemplateMaxChars),
	}, nil
}

// OptimizeItems runs the batch over the given audit items, already ranked
// top-traffic-first by the caller. Each video is attempted exactly once; a
// per-item failure is recorded and counted but never aborts the batch.
func (o *Optimizer) OptimizeItems(ctx context.Context, auditRunID int64, items []*models.AuditItem) (*models.SeoOptimizationRun, error) {
	run := &models.SeoOptimizationRun{
		AuditRunID: auditRunID,
		Model:      o.model,
		Requested:  len(items),
	}
	if err := o.store.CreateOptimizationRun(run); err != nil {
		return nil, err
	}

	sourceLabel := fmt.Sprintf("seo_run_%d_%s", run.ID, o.model)

	for i, item := range items {
		log.Printf("Optimizing video %d/%d: %s", i+1, len(items), item.VideoID)

		if err := o.optimizeOne(ctx, run, item, sourceLabel); err != nil {
			log.Printf("Warning: optimization failed for video %s: %v", item.VideoID, err)
			run.Failed++
			continue
		}
		run.Succeeded++
	}

	if err := o.store.FinishOptimizationRun(run.ID, run.Requested, run.Succeeded, run.Failed); err != nil {
		return nil, err
	}
	return run, nil
}

func (o *Optimizer) optimizeOne(ctx context.Context, run *models.SeoOptimizationRun, item *models.AuditItem, sourceLabel string) error {
	prompt := o.buildPrompt(item)

	row := &models.SeoOptimizationItem{
		RunID:   run.ID,
		VideoID: item.VideoID,
		Prompt:  prompt,
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser),
	}
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}

	result, err := o.client.Models.GenerateContent(ctx, o.model, contents, genCfg)
	if err != nil {
		row.ParseStatus = models.ParseStatusError
		row.ErrorMessage = err.Error()
		o.persistItem(row)
		return fmt.Errorf("generation failed: %w", err)
	}

	row.RawResponse = result.Text()

	parsed, aliases, err := ParseRecommendation(row.RawResponse)
	if err != nil {
		// Keep the raw response for forensic review even when it never
		// parsed as JSON.
		row.ParseStatus = models.ParseStatusFailed
		row.ErrorMessage = err.Error()
		o.persistItem(row)
		return err
	}

	// A partial object backfills from the item's pre-optimization state:
	// the LLM output is advisory, not authoritative.
	optimized := backfill(parsed, item)
	optimized = metadata.Clamp(optimized)

	row.ParseStatus = models.ParseStatusOK
	row.MatchedAliases = aliases
	row.Optimized = &optimized
	o.persistItem(row)

	target := &models.MetadataTarget{
		VideoID:     item.VideoID,
		Title:       optimized.Title,
		Description: optimized.Description,
		CategoryID:  optimized.CategoryID,
		Tags:        optimized.Tags,
		Source:      sourceLabel,
		Active:      true,
	}
	if err := o.store.UpsertMetadataTarget(target); err != nil {
		return fmt.Errorf("failed to upsert target for %s: %w", item.VideoID, err)
	}
	return nil
}

func (o *Optimizer) persistItem(row *models.SeoOptimizationItem) {
	if err := o.store.InsertOptimizationItem(row); err != nil {
		log.Printf("Warning: failed to persist optimization item for %s: %v", row.VideoID, err)
	}
}

func (o *Optimizer) buildPrompt(item *models.AuditItem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Optimize the YouTube metadata for this video.\n\n")
	fmt.Fprintf(&b, "VIDEO ID: %s\n", item.VideoID)
	fmt.Fprintf(&b, "CURRENT TITLE: %s\n", item.Current.Title)
	fmt.Fprintf(&b, "CURRENT DESCRIPTION LENGTH: %d chars\n", len(item.Current.Description))
	fmt.Fprintf(&b, "CURRENT CATEGORY: %s\n", item.Current.CategoryID)
	fmt.Fprintf(&b, "CURRENT TAGS: %s\n", strings.Join(item.Current.Tags, ", "))
	fmt.Fprintf(&b, "DETECTED ISSUES: %s\n", strings.Join(item.Issues, ", "))
	fmt.Fprintf(&b, "TRAFFIC: %d views, %d likes, %d comments\n",
		item.ViewCount, item.LikeCount, item.CommentCount)

	if o.styleTemplate != "" {
		fmt.Fprintf(&b, "\nSTYLE GUIDE:\n%s\n", o.styleTemplate)
	}

	fmt.Fprintf(&b, "\nReturn a JSON object with \"title\" (max %d chars), \"description\" (max %d chars), \"category_id\" and \"tags\" (max %d chars joined).",
		metadata.MaxTitleLength, metadata.MaxDescriptionLength, metadata.MaxTagsLength)

	return b.String()
}

// ParseRecommendation extracts a metadata recommendation from free-form
// model output. It tries a fenced json code block first, then the raw text.
// The returned alias map records which key produced each field.
func ParseRecommendation(response string) (models.MetadataSet, map[string]string, error) {
	obj, err := extractJSONObject(response)
	if err != nil {
		return models.MetadataSet{}, nil, err
	}

	aliases := make(map[string]string)
	set := models.MetadataSet{}

	if value, alias, ok := firstString(obj, fieldAliases["title"]); ok {
		set.Title = value
		aliases["title"] = alias
	}
	if value, alias, ok := firstString(obj, fieldAliases["description"]); ok {
		set.Description = value
		aliases["description"] = alias
	}
	if value, alias, ok := firstString(obj, fieldAliases["category_id"]); ok {
		set.CategoryID = value
		aliases["category_id"] = alias
	}
	if value, alias, ok := firstStringSlice(obj, fieldAliases["tags"]); ok {
		set.Tags = value
		aliases["tags"] = alias
	}

	return set, aliases, nil
}

func extractJSONObject(response string) (map[string]any, error) {
	candidates := make([]string, 0, 2)
	if m := jsonFence.FindStringSubmatch(response); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(response, "{"), strings.LastIndex(response, "}"); start != -1 && end > start {
		candidates = append(candidates, response[start:end+1])
	}

	for _, candidate := range candidates {
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			return obj, nil
		}
	}
	return nil, &models.ParseError{Reason: "seo_json_parse_failed", Raw: response}
}

func firstString(obj map[string]any, keys []string) (string, string, bool) {
	for _, key := range keys {
		if raw, ok := obj[key]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				return s, key, true
			}
		}
	}
	return "", "", false
}

func firstStringSlice(obj map[string]any, keys []string) ([]string, string, bool) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		var out []string
		for _, entry := range list {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out, key, true
		}
	}
	return nil, "", false
}

// backfill fills any field the model omitted from the item's recommended
// metadata, falling back to the current metadata as a last resort.
func backfill(parsed models.MetadataSet, item *models.AuditItem) models.MetadataSet {
	out := parsed
	if out.Title == "" {
		out.Title = firstNonEmpty(item.Recommended.Title, item.Current.Title)
	}
	if out.Description == "" {
		out.Description = firstNonEmpty(item.Recommended.Description, item.Current.Description)
	}
	if out.CategoryID == "" {
		out.CategoryID = firstNonEmpty(item.Recommended.CategoryID, item.Current.CategoryID)
	}
	if len(out.Tags) == 0 {
		out.Tags = item.Recommended.Tags
		if len(out.Tags) == 0 {
			out.Tags = item.Current.Tags
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func loadStyleTemplate(path string, maxChars int) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Warning: failed to read style template %s: %v", path, err)
		return ""
	}
	text := string(data)
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return text
}
