package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vaulttag/vaulttag/internal/metadata"
)

// parseResponse turns raw model output into Generated metadata.
// Model output is messy in practice: commentary around the object,
// single-quoted pseudo-JSON, bare YAML without braces. YAML being a
// superset of JSON, a single lenient decoder covers all of it once the
// balanced object is cut out.
func parseResponse(raw string, summaryWords, maxTags int) (*metadata.Generated, error) {
	fields := decodeObject(raw)
	if fields == nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, excerpt(raw))
	}

	gen := &metadata.Generated{}

	if v, ok := fields["summary"]; ok && v != nil {
		gen.Summary = truncateWords(unescapeUnicode(strings.TrimSpace(toString(v))), summaryWords)
	}

	rawTags, ok := fields["tags"]
	if !ok {
		rawTags = fields["tag"]
	}
	tags := metadata.ParseTags(rawTags)
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	for i, t := range tags {
		tags[i] = unescapeUnicode(t)
	}
	gen.Tags = tags

	if v, ok := fields["date"]; ok && v != nil {
		gen.Date = strings.TrimSpace(toString(v))
	}
	gen.DateConfidence = toFloat(fields["date_confidence"])

	return gen, nil
}

// decodeObject tries, in order: the first balanced {...} substring as
// YAML, then the whole output as YAML. Returns nil when neither yields
// a mapping.
func decodeObject(raw string) map[string]any {
	if obj := extractJSONObject(raw); obj != "" {
		if m := decodeYAMLMap(obj); m != nil {
			return m
		}
	}
	return decodeYAMLMap(raw)
}

func decodeYAMLMap(s string) map[string]any {
	var m map[string]any
	if err := yaml.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// extractJSONObject returns the first balanced {...} substring, or "".
// Handles output with prose before or after the object.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var unicodeEscapePattern = regexp.MustCompile(`\\u[0-9a-fA-F]{4}`)

// unescapeUnicode decodes literal \uXXXX sequences that some models emit
// inside already-decoded strings (e.g. \u2011 for a non-breaking hyphen).
func unescapeUnicode(s string) string {
	if !strings.Contains(s, `\u`) {
		return s
	}
	return unicodeEscapePattern.ReplaceAllStringFunc(s, func(esc string) string {
		n, err := strconv.ParseUint(esc[2:], 16, 32)
		if err != nil {
			return esc
		}
		return string(rune(n))
	})
}

// truncateWords caps s at limit words, appending an ellipsis when cut.
func truncateWords(s string, limit int) string {
	words := strings.Fields(s)
	if limit <= 0 || len(words) <= limit {
		return s
	}
	return strings.Join(words[:limit], " ") + "..."
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
