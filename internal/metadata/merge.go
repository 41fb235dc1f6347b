package metadata

import (
	"strings"
)

// A lower-priority description replaces the chosen one only when it is at
// least this much longer. Short commercial snippets are frequently less
// informative than a fuller open-catalog entry.
const descriptionOverrideRatio = 1.5

// Merge reconciles partial records into one canonical record using waterfall
// priority: sources must be ordered highest priority first. Each scalar field
// takes the first non-empty value and is never overwritten by a lower-priority
// source; list fields take the first non-empty list in its entirety so
// unrelated authorship orderings never interleave. The single exception is
// the description override (see descriptionOverrideRatio).
//
// Returns nil when every source is nil.
func Merge(sources []*BookMetadata) *BookMetadata {
	valid := make([]*BookMetadata, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	merged := NewEmpty(valid[0].ISBN, valid[0].Source)

	for _, src := range valid {
		fillStr(&merged.Title, src.Title)
		fillStr(&merged.Subtitle, src.Subtitle)
		fillStr(&merged.Publisher, src.Publisher)
		fillStr(&merged.PublishedDate, src.PublishedDate)
		fillStr(&merged.Description, src.Description)
		fillStr(&merged.Language, src.Language)
		fillStr(&merged.Thumbnail, src.Thumbnail)
		fillStr(&merged.PublishPlace, src.PublishPlace)
		fillStr(&merged.Subjects, src.Subjects)
		fillStr(&merged.Collation, src.Collation)
		fillStr(&merged.Series, src.Series)
		fillStr(&merged.Edition, src.Edition)

		if merged.PageCount == nil && src.PageCount != nil && *src.PageCount > 0 {
			merged.PageCount = Ptr(*src.PageCount)
		}
		if len(merged.Authors) == 0 && len(src.Authors) > 0 {
			merged.Authors = append([]string(nil), src.Authors...)
		}
		if len(merged.Categories) == 0 && len(src.Categories) > 0 {
			merged.Categories = append([]string(nil), src.Categories...)
		}
	}

	// Description override: the one field where content beats priority.
	if merged.Description != nil {
		for _, src := range valid {
			if src.Description == nil {
				continue
			}
			if float64(len(*src.Description)) >= float64(len(*merged.Description))*descriptionOverrideRatio {
				merged.Description = Ptr(*src.Description)
			}
		}
	}

	return merged
}

func fillStr(dst **string, src *string) {
	if *dst == nil && src != nil && strings.TrimSpace(*src) != "" {
		v := *src
		*dst = &v
	}
}

// MergeAuthors returns the union of all author lists, order-preserving, with
// case-insensitive dedupe.
func MergeAuthors(sources []*BookMetadata) []string {
	seen := make(map[string]bool)
	var out []string
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, a := range src.Authors {
			key := strings.ToLower(strings.TrimSpace(a))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, a)
		}
	}
	return out
}

// MergeCategories returns the union of all category lists, order-preserving.
func MergeCategories(sources []*BookMetadata) []string {
	seen := make(map[string]bool)
	var out []string
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, c := range src.Categories {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

type rubricField struct {
	weight  int
	present func(*BookMetadata) bool
}

var completenessRubric = []rubricField{
	{20, func(m *BookMetadata) bool { return strPresent(m.Title) }},
	{20, func(m *BookMetadata) bool { return len(m.Authors) > 0 }},
	{15, func(m *BookMetadata) bool { return strPresent(m.Description) }},
	{10, func(m *BookMetadata) bool { return strPresent(m.Publisher) }},
	{10, func(m *BookMetadata) bool { return strPresent(m.PublishedDate) }},
	{10, func(m *BookMetadata) bool { return len(m.Categories) > 0 }},
	{5, func(m *BookMetadata) bool { return m.PageCount != nil && *m.PageCount > 0 }},
	{5, func(m *BookMetadata) bool { return strPresent(m.Thumbnail) }},
	{5, func(m *BookMetadata) bool { return strPresent(m.Language) }},
}

// Completeness scores a record 0-100 against the fixed field rubric.
// Each field contributes its full weight when present, else zero.
func Completeness(m *BookMetadata) int {
	if m == nil {
		return 0
	}
	score := 0
	for _, f := range completenessRubric {
		if f.present(m) {
			score += f.weight
		}
	}
	return score
}

func strPresent(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
