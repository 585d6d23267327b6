// Package metadata implements the metadata semantics of a processing
// pass: the model-output value types, the three-tier date resolution, and
// the idempotent non-destructive merge.
package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Generated is the structured output of one model call. A failed or
// unparseable call is an error from the gateway, never a zero Generated,
// so absent fields stay distinguishable from "model said nothing".
type Generated struct {
	Summary        string
	Tags           []string
	Date           string // YYYY-MM-DD, "" when the model found none
	DateConfidence float64
}

// Tier ranks the date-resolution strategies. Higher wins; comparisons
// between tiers are the single precedence rule for dates, both at
// resolution time and when the merger decides whether to replace an
// existing value.
type Tier int

const (
	TierFilesystem Tier = iota
	TierFilename
	TierModel
	// tierHuman ranks an existing date with no recorded source: assumed
	// human-authored and never displaced without force.
	tierHuman
)

// Source labels written to the dateSource frontmatter field. The strings
// match the original vault format so old and new runs compare tiers.
const (
	SourceFilesystem = "FileSystem"
	SourceFilename   = "Filename"
	SourceModel      = "AI"
)

// String returns the dateSource label for a tier.
func (t Tier) String() string {
	switch t {
	case TierModel:
		return SourceModel
	case TierFilename:
		return SourceFilename
	case TierFilesystem:
		return SourceFilesystem
	default:
		return "Manual"
	}
}

// SourceTier maps a recorded dateSource value back to its tier. Unknown
// or empty values rank as human-authored.
func SourceTier(source string) Tier {
	switch source {
	case SourceModel:
		return TierModel
	case SourceFilename:
		return TierFilename
	case SourceFilesystem:
		return TierFilesystem
	default:
		return tierHuman
	}
}

// ResolvedDate is the outcome of date resolution: exactly one tier wins.
type ResolvedDate struct {
	Value string // YYYY-MM-DD
	Tier  Tier
}

// filenameDatePattern matches a parenthesized date like (2024-01-15) or
// (2024-1-5) anywhere in a filename.
var filenameDatePattern = regexp.MustCompile(`\((\d{4})-(\d{1,2})-(\d{1,2})\)`)

// ResolveDate picks a date for a document, in strict priority order:
// a model-detected date above the confidence threshold, then a date
// embedded in the filename, then the filesystem timestamp. It never
// fails; the filesystem tier always produces a value.
func ResolveDate(gen *Generated, filename string, fsTime time.Time, confidenceThreshold float64) ResolvedDate {
	if gen != nil && gen.Date != "" && gen.DateConfidence > confidenceThreshold {
		return ResolvedDate{Value: gen.Date, Tier: TierModel}
	}

	if d, ok := dateFromFilename(filename); ok {
		return ResolvedDate{Value: d, Tier: TierFilename}
	}

	return ResolvedDate{Value: fsTime.Format("2006-01-02"), Tier: TierFilesystem}
}

// dateFromFilename extracts a (YYYY-M-D) token, zero-padding month and
// day. Malformed values such as month 13 are non-matches.
func dateFromFilename(filename string) (string, bool) {
	for _, m := range filenameDatePattern.FindAllStringSubmatch(filename, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])

		// time.Date normalizes out-of-range components, so a round trip
		// detects values like month 13 or day 32
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Year() != year || int(t.Month()) != month || t.Day() != day {
			continue
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
	}
	return "", false
}
