package qualify

import (
	"regexp"
	"strings"
)

// MatchThreshold is the minimum confidence for a usable area match.
// Callers treat anything below it as "no match".
const MatchThreshold = 0.5

// AreaMatch maps free-text input onto the canonical area taxonomy.
type AreaMatch struct {
	Area       string  `json:"matched_area"`
	Confidence float64 `json:"confidence"`
}

// area is one canonical taxonomy entry. Aliases are matched in slice
// order, so more specific aliases come first.
type area struct {
	name    string
	aliases []string
}

// areaTaxonomy is the canonical Dubai-area taxonomy served by the offline
// catalog job. Order is fixed: earlier entries win score ties.
var areaTaxonomy = []area{
	{"Dubai Marina", []string{"dubai marina", "marina"}},
	{"Downtown Dubai", []string{"downtown dubai", "downtown", "burj khalifa district"}},
	{"Jumeirah Beach Residence", []string{"jumeirah beach residence", "jbr"}},
	{"Palm Jumeirah", []string{"palm jumeirah", "the palm", "palm"}},
	{"Business Bay", []string{"business bay"}},
	{"Jumeirah Village Circle", []string{"jumeirah village circle", "jvc"}},
	{"Jumeirah Lakes Towers", []string{"jumeirah lakes towers", "jlt"}},
	{"Dubai Hills Estate", []string{"dubai hills estate", "dubai hills"}},
	{"Arabian Ranches", []string{"arabian ranches", "the ranches"}},
	{"Dubai Creek Harbour", []string{"dubai creek harbour", "creek harbour", "creek"}},
	{"Dubai South", []string{"dubai south", "expo city"}},
	{"Al Barsha", []string{"al barsha", "barsha"}},
	{"Mirdif", []string{"mirdif"}},
	{"International City", []string{"international city"}},
	{"Meydan", []string{"meydan", "mbr city"}},
}

var nonWordRe = regexp.MustCompile(`[^a-z0-9\s]`)

// MatchArea maps free-text location input to a canonical area with a
// confidence in [0,1]. The boolean is false when the best confidence is
// below MatchThreshold.
//
// Deterministic: a fixed taxonomy order breaks score ties.
func MatchArea(text string) (AreaMatch, bool) {
	input := normalizeGeoText(text)
	if input == "" {
		return AreaMatch{}, false
	}

	best := AreaMatch{}
	for _, a := range areaTaxonomy {
		for _, alias := range a.aliases {
			c := aliasConfidence(input, alias)
			if c > best.Confidence {
				best = AreaMatch{Area: a.name, Confidence: c}
			}
		}
	}

	return best, best.Confidence >= MatchThreshold
}

// aliasConfidence scores how well the normalized input matches one alias.
// Exact match 1.0, whole-alias containment 0.9, otherwise token overlap
// scaled to at most 0.8.
func aliasConfidence(input, alias string) float64 {
	if input == alias {
		return 1.0
	}
	if strings.Contains(" "+input+" ", " "+alias+" ") {
		return 0.9
	}

	aliasTokens := strings.Fields(alias)
	inputTokens := strings.Fields(input)
	if len(aliasTokens) == 0 {
		return 0
	}

	hits := 0
	for _, at := range aliasTokens {
		for _, it := range inputTokens {
			if at == it {
				hits++
				break
			}
		}
	}
	return 0.8 * float64(hits) / float64(len(aliasTokens))
}

func normalizeGeoText(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = nonWordRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
