package update

import (
	"strings"

	"seo-agent/internal/models"
	"seo-agent/shared/metadata"
)

// Mode controls which recommendations the planner will act on.
type Mode string

const (
	// ModeTargetOnly applies only explicitly stored targets.
	ModeTargetOnly Mode = "target_only"
	// ModeTargetAndHeuristic falls back to the audit's heuristic
	// recommendation when no target exists.
	ModeTargetAndHeuristic Mode = "target_and_heuristic"
)

// ParseMode validates a mode string from config or CLI.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeTargetOnly, ModeTargetAndHeuristic:
		return Mode(s), true
	}
	return "", false
}

// Skip reasons recorded on audit items.
const (
	ReasonNoTarget                  = "no_target"
	ReasonProtectedMainNoSafeChange = "protected_main_no_safe_change"
	ReasonNoChange                  = "no_change"
	ReasonQuotaExceededAbort        = "quota_exceeded_abort"
)

// Source labels for applied payloads.
const (
	SourceTarget             = "target"
	SourceHeuristic          = "heuristic"
	SourceHeuristicProtected = "heuristic_protected"
)

// Plan is the planner's per-video decision: either skip with a reason, or
// apply the payload.
type Plan struct {
	Skip      bool
	Reason    string
	Payload   models.MetadataSet
	Source    string
	Protected bool
}

// PlanUpdate decides what, if anything, to write for one audit item. Pure:
// planning is recomputed fresh on every invocation, so re-running the update
// step on an unchanged item deterministically reproduces the same decision.
func PlanUpdate(item *models.AuditItem, target *models.MetadataTarget, mode Mode, protectMainHeuristic bool) Plan {
	var (
		payload models.MetadataSet
		source  string
	)

	switch {
	case target != nil && target.Active:
		payload = target.Metadata()
		source = SourceTarget
	case mode == ModeTargetOnly:
		return Plan{Skip: true, Reason: ReasonNoTarget}
	default:
		payload = item.Recommended
		source = SourceHeuristic
	}

	payload = metadata.Clamp(payload)

	plan := Plan{Payload: payload, Source: source}

	// Main-video protection: a heuristic rewrite of a non-Shorts upload
	// keeps the video's own title and description; only tags and category
	// may move.
	if source == SourceHeuristic && protectMainHeuristic && !isShortsTitle(item.Current.Title) {
		plan.Payload.Title = item.Current.Title
		plan.Payload.Description = item.Current.Description
		plan.Protected = true
		plan.Source = SourceHeuristicProtected
	}

	if metadata.SetsEqual(plan.Payload, item.Current) {
		reason := ReasonNoChange
		if plan.Protected {
			reason = ReasonProtectedMainNoSafeChange
		}
		return Plan{Skip: true, Reason: reason, Protected: plan.Protected}
	}

	return plan
}

// isShortsTitle reports whether the title marks the video as a Short, via a
// "#shorts" marker or a standalone "shorts" token.
func isShortsTitle(title string) bool {
	lower := strings.ToLower(title)
	if strings.Contains(lower, "#shorts") {
		return true
	}
	for _, token := range strings.Fields(lower) {
		if strings.Trim(token, "#!?.,") == "shorts" {
			return true
		}
	}
	return false
}
