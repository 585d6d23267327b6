package metadata

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vaulttag/vaulttag/internal/vault"
)

// MergeInput carries everything the merge needs; all fields are read-only.
type MergeInput struct {
	Existing map[string]any
	// Generated is nil when the model was not consulted (short body) and
	// never set after a failed gateway call.
	Generated *Generated
	Date      ResolvedDate
	Title     string
	Body      string
	// Force relaxes the overwrite protection on summary and date.
	Force bool
	// Complete marks a non-degraded pass and is the only way the
	// idempotency marker gets set.
	Complete bool
}

// Merge combines existing frontmatter with generated metadata into a new
// map. Pure and deterministic: the same inputs always produce the same
// output, foreign keys pass through untouched, and an existing
// human-authored summary or date is never silently replaced.
func Merge(in MergeInput) map[string]any {
	out := make(map[string]any, len(in.Existing)+7)
	for k, v := range in.Existing {
		out[k] = v
	}

	if _, ok := out[vault.KeyTitle]; !ok {
		out[vault.KeyTitle] = in.Title
	}

	out[vault.KeyWordCount] = len(strings.Fields(in.Body))

	if in.Generated != nil {
		if in.Generated.Summary != "" {
			if existing, _ := out[vault.KeySummary].(string); existing == "" || in.Force {
				out[vault.KeySummary] = in.Generated.Summary
			}
		}
		if len(in.Generated.Tags) > 0 {
			out[vault.KeyTags] = unionTags(ParseTags(in.Existing[vault.KeyTags]), in.Generated.Tags)
		}
	}

	if shouldSetDate(in.Existing, in.Date, in.Force) {
		out[vault.KeyDate] = in.Date.Value
		out[vault.KeyDateSource] = in.Date.Tier.String()
	}

	if in.Complete {
		out[vault.KeyMarker] = true
	}

	return out
}

// shouldSetDate applies the precedence rule: write when no date exists,
// when the resolved tier strictly beats the tier that produced the
// existing value, or when force is set. An existing date with no
// recorded source ranks as human-authored.
func shouldSetDate(existing map[string]any, date ResolvedDate, force bool) bool {
	cur, _ := existing[vault.KeyDate].(string)
	if cur == "" {
		return true
	}
	if force {
		return true
	}
	source, _ := existing[vault.KeyDateSource].(string)
	return date.Tier > SourceTier(source)
}

// unionTags merges two tag sets with case-folded dedup and lexicographic
// order, so the result is stable across runs regardless of input order.
func unionTags(existing, generated []string) []string {
	seen := make(map[string]bool, len(existing)+len(generated))
	out := make([]string, 0, len(existing)+len(generated))
	for _, t := range append(append([]string{}, existing...), generated...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ParseTags normalizes a frontmatter or model tags value to a string
// slice. Accepts a list, a YAML-encoded list in a string, or a
// comma-separated string.
func ParseTags(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return trimAll(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case string:
		var parsed []any
		if err := yaml.Unmarshal([]byte(v), &parsed); err == nil && len(parsed) > 0 {
			return ParseTags(parsed)
		}
		return trimAll(strings.Split(v, ","))
	default:
		return nil
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
