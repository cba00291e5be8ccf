package metadata

import (
	"strings"
	"unicode/utf8"

	"seo-agent/internal/models"
)

// YouTube metadata field limits.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 5000
	MaxTagsLength        = 500
)

// NormalizeSpaces trims s and collapses internal whitespace runs to a single
// space.
func NormalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeTags trims and collapses whitespace in each tag, drops empties,
// and de-duplicates case-insensitively keeping the first occurrence with its
// original casing. Order is preserved. Idempotent.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = NormalizeSpaces(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

// ClampTags normalizes tags and then greedily appends them while the running
// total of tag length plus one separator each stays within MaxTagsLength.
// It stops at the first tag that would overflow rather than skipping ahead
// to a shorter one that might still fit.
func ClampTags(tags []string) []string {
	tags = NormalizeTags(tags)
	total := 0
	var out []string
	for _, tag := range tags {
		cost := utf8.RuneCountInString(tag) + 1
		if total+cost > MaxTagsLength {
			break
		}
		total += cost
		out = append(out, tag)
	}
	return out
}

// Clamp hard-truncates the title and description to the platform limits and
// clamps the tag list. No semantic truncation is attempted.
func Clamp(set models.MetadataSet) models.MetadataSet {
	return models.MetadataSet{
		Title:       truncate(set.Title, MaxTitleLength),
		Description: truncate(set.Description, MaxDescriptionLength),
		CategoryID:  set.CategoryID,
		Tags:        ClampTags(set.Tags),
	}
}

// TagsEqual reports whether the two tag lists are element-wise equal after
// normalization and lower-casing. Order matters.
func TagsEqual(a, b []string) bool {
	na, nb := NormalizeTags(a), NormalizeTags(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if !strings.EqualFold(na[i], nb[i]) {
			return false
		}
	}
	return true
}

// TextEqual compares two free-text fields ignoring case and whitespace runs.
// Only case and whitespace are forgiven; any other difference counts.
func TextEqual(a, b string) bool {
	return strings.EqualFold(NormalizeSpaces(a), NormalizeSpaces(b))
}

// SetsEqual reports whether two metadata sets are field-for-field equal under
// the normalized comparisons: title and description via TextEqual, category
// by string equality, tags via TagsEqual.
func SetsEqual(a, b models.MetadataSet) bool {
	return TextEqual(a.Title, b.Title) &&
		TextEqual(a.Description, b.Description) &&
		a.CategoryID == b.CategoryID &&
		TagsEqual(a.Tags, b.Tags)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
