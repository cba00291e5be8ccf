package metadata

import (
	"reflect"
	"strings"
	"testing"

	"seo-agent/internal/models"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "trims and collapses whitespace",
			in:   []string{"  el   inmortal  ", "reggaeton"},
			want: []string{"el inmortal", "reggaeton"},
		},
		{
			name: "drops empties",
			in:   []string{"", "   ", "musica"},
			want: []string{"musica"},
		},
		{
			name: "dedupes case-insensitively keeping first casing",
			in:   []string{"Reggaeton", "reggaeton", "REGGAETON", "trap"},
			want: []string{"Reggaeton", "trap"},
		},
		{
			name: "preserves order",
			in:   []string{"b", "a", "c"},
			want: []string{"b", "a", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTagsIdempotent(t *testing.T) {
	inputs := [][]string{
		{"  a  b ", "A B", "c", "", "C "},
		{"one", "two", "three"},
		nil,
	}
	for _, in := range inputs {
		once := NormalizeTags(in)
		twice := NormalizeTags(once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("NormalizeTags not idempotent: first %v, second %v", once, twice)
		}
	}
}

func TestClampTagsBudget(t *testing.T) {
	joined := func(tags []string) int {
		total := 0
		for _, tag := range tags {
			total += len(tag) + 1
		}
		return total
	}

	t.Run("under budget unchanged", func(t *testing.T) {
		in := []string{"a", "b", "c"}
		got := ClampTags(in)
		if !reflect.DeepEqual(got, in) {
			t.Errorf("ClampTags(%v) = %v, want unchanged", in, got)
		}
	})

	t.Run("never exceeds budget", func(t *testing.T) {
		var in []string
		for i := 0; i < 100; i++ {
			in = append(in, strings.Repeat("x", 9)+string(rune('a'+i%26)))
		}
		got := ClampTags(in)
		if joined(got) > MaxTagsLength {
			t.Errorf("joined length %d exceeds %d", joined(got), MaxTagsLength)
		}
	})

	t.Run("single oversized tag yields empty", func(t *testing.T) {
		got := ClampTags([]string{strings.Repeat("x", 600)})
		if len(got) != 0 {
			t.Errorf("ClampTags(oversized) = %v, want empty", got)
		}
	})

	t.Run("stops at first overflowing tag without backtracking", func(t *testing.T) {
		long := strings.Repeat("x", 498) // costs 499
		got := ClampTags([]string{long, "abcd", "a"})
		// "abcd" overflows (499+5 > 500); the shorter "a" after it must not
		// be picked up either.
		want := []string{long}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ClampTags = %v tags, want only the first", got)
		}
	})
}

func TestClamp(t *testing.T) {
	set := models.MetadataSet{
		Title:       strings.Repeat("a", 200),
		Description: strings.Repeat("b", 6000),
		CategoryID:  "10",
		Tags:        []string{strings.Repeat("t", 600)},
	}

	got := Clamp(set)

	if len(got.Title) != MaxTitleLength {
		t.Errorf("title length = %d, want %d", len(got.Title), MaxTitleLength)
	}
	if len(got.Description) != MaxDescriptionLength {
		t.Errorf("description length = %d, want %d", len(got.Description), MaxDescriptionLength)
	}
	if len(got.Tags) != 0 {
		t.Errorf("tags = %v, want empty", got.Tags)
	}
	if got.CategoryID != "10" {
		t.Errorf("category = %s, want 10", got.CategoryID)
	}
}

func TestTagsEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, true},
		{"case-insensitive", []string{"Reggaeton"}, []string{"reggaeton"}, true},
		{"order-sensitive", []string{"a", "b"}, []string{"b", "a"}, false},
		{"whitespace normalized", []string{" a  b "}, []string{"a b"}, true},
		{"different length", []string{"a"}, []string{"a", "b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TagsEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("TagsEqual(%v, %v) = %t, want %t", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTextEqual(t *testing.T) {
	// Only case and whitespace runs are forgiven.
	if !TextEqual("Foo  Bar", "Foo Bar") {
		t.Error("whitespace runs should compare equal after collapsing")
	}
	if !TextEqual("FOO bar", "foo BAR") {
		t.Error("case should be ignored")
	}
	if TextEqual("Foo Bar", "Foo-Bar") {
		t.Error("punctuation differences must not compare equal")
	}
}
