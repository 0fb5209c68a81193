// Package language implements label language priority resolution: merging
// freshly censused language tags into a user-ordered priority list, and
// picking one display label from a multi-valued, multi-language value set.
//
// Everything here is pure and synchronous. Merge and Resolve never mutate
// their inputs, so they are safe to call from concurrent rendering paths;
// persisting an updated list is an explicit caller action.
package language

import (
	"slices"
	"sort"

	"github.com/c360/skosprobe/endpoint"
)

// LabelValue is one candidate display value: text plus an optional language
// tag. An empty Lang means the value carries no language tag.
type LabelValue struct {
	Text string `json:"text"`
	Lang string `json:"lang,omitempty"`
}

// PriorityList is the per-endpoint language preference: an ordered sequence
// of unique language tags, plus an optional single-language override.
//
// The list may contain tags no longer present in the endpoint's census;
// stale entries are tolerated and never removed automatically.
type PriorityList struct {
	Tags     []string `json:"tags"`
	Override string   `json:"override,omitempty"`
}

// Contains reports whether tag is already in the list.
func (p PriorityList) Contains(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// Preferred returns the single highest-priority tag, or "" for an empty
// list.
func (p PriorityList) Preferred() string {
	if len(p.Tags) == 0 {
		return ""
	}
	return p.Tags[0]
}

// Clone returns an independent copy.
func (p PriorityList) Clone() PriorityList {
	return PriorityList{Tags: slices.Clone(p.Tags), Override: p.Override}
}

// Merge appends censused tags missing from the list, alphabetically among
// the newcomers, and returns the merged list. Existing user ordering is
// never touched, which also makes the operation idempotent.
//
// One special case: when the list was previously empty and "en" is among
// the newcomers, "en" goes to position 0 so a fresh endpoint defaults to
// English rather than to alphabetical accident.
func Merge(list PriorityList, census []endpoint.LanguageCount) PriorityList {
	merged := list.Clone()

	var newcomers []string
	for _, lc := range census {
		if lc.Tag == "" || merged.Contains(lc.Tag) || slices.Contains(newcomers, lc.Tag) {
			continue
		}
		newcomers = append(newcomers, lc.Tag)
	}
	if len(newcomers) == 0 {
		return merged
	}
	sort.Strings(newcomers)

	if len(merged.Tags) == 0 {
		if i := slices.Index(newcomers, "en"); i > 0 {
			newcomers = append(newcomers[:i], newcomers[i+1:]...)
			newcomers = append([]string{"en"}, newcomers...)
		}
	}

	merged.Tags = append(merged.Tags, newcomers...)
	return merged
}

// Resolve picks one value for display:
//
//  1. the override's value, when the override is set and matched;
//  2. else the first priority-list tag with a matching value;
//  3. else any value with no language tag;
//  4. else the first value in input order, so a non-empty input always
//     resolves to something.
//
// The second return is false only for an empty value set.
func Resolve(values []LabelValue, list PriorityList) (LabelValue, bool) {
	if len(values) == 0 {
		return LabelValue{}, false
	}

	if list.Override != "" {
		if v, ok := findByLang(values, list.Override); ok {
			return v, true
		}
	}

	for _, tag := range list.Tags {
		if v, ok := findByLang(values, tag); ok {
			return v, true
		}
	}

	if v, ok := findByLang(values, ""); ok {
		return v, true
	}

	return values[0], true
}

func findByLang(values []LabelValue, lang string) (LabelValue, bool) {
	for _, v := range values {
		if v.Lang == lang {
			return v, true
		}
	}
	return LabelValue{}, false
}

// Resolver bundles a priority list with the tag-display preference so
// rendering paths can query both the resolved value and whether to annotate
// it.
type Resolver struct {
	List PriorityList

	// AlwaysShowPreferredTag forces the tag annotation even for the single
	// highest-priority language.
	AlwaysShowPreferredTag bool
}

// Resolve picks one value for display using the bundled list.
func (r Resolver) Resolve(values []LabelValue) (LabelValue, bool) {
	return Resolve(values, r.List)
}

// ShouldShowLangTag reports whether a resolved value's tag should be shown
// next to it. The tag is suppressed only when it equals the single
// highest-priority tag and the user has not asked for preferred-language
// tags; untagged values never show a tag.
func (r Resolver) ShouldShowLangTag(tag string) bool {
	if tag == "" {
		return false
	}
	if r.AlwaysShowPreferredTag {
		return true
	}
	return tag != r.List.Preferred()
}
