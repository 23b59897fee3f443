package model

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const DefaultString = "Unknown"

// Rouen's TEOR bus rapid transit lines are named T1..T5 and must be
// classified as their own mode regardless of the GTFS route_type.
var teorLineRe = regexp.MustCompile(`(?i)^T\d+$`)

// Mode ordering used for a stop's transportModes field.
var modePriority = []string{"Metro", "Tram", "TEOR", "Bus", "Train", "Ferry"}

// Preference among feed providers sharing a physical location.
var DefaultProviderPriority = map[string]int{
	"TCAR": 0,
	"TNI":  1,
	"TAE":  2,
}

var (
	stripMarks  = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	upperFrench = cases.Upper(language.French)
)

// NormalizeForSearch strips diacritics and case-folds, so "Théâtre"
// matches a query for "theatre".
func NormalizeForSearch(s string) string {
	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		stripped = s
	}
	return strings.ToLower(stripped)
}

// NormalizeLineName canonicalizes a line short name for comparisons
// and color lookups.
func NormalizeLineName(s string) string {
	return upperFrench.String(strings.TrimSpace(s))
}

// NormalizeHexColor returns "#RRGGBB" for a 6-hex-digit color, with
// or without a leading "#". Anything else yields "".
func NormalizeHexColor(s string) string {
	c := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(c) != 6 {
		return ""
	}
	for _, r := range c {
		if !unicode.Is(unicode.ASCII_Hex_Digit, r) {
			return ""
		}
	}
	return "#" + strings.ToUpper(c)
}

// NewCollator returns a French collator with numeric ordering, so
// line "F2" sorts before "F10". Collators are not safe for concurrent
// use; callers create one per operation.
func NewCollator() *collate.Collator {
	return collate.New(language.French, collate.Numeric, collate.IgnoreCase)
}

// Provider returns the namespace prefix of a stop ID.
func Provider(stopID string) string {
	provider, _, _ := strings.Cut(stopID, ":")
	return provider
}

// ProviderPriorityOf ranks a stop's provider; unknown providers sort
// last.
func ProviderPriorityOf(stopID string, priorities map[string]int) int {
	if priorities == nil {
		priorities = DefaultProviderPriority
	}
	if p, ok := priorities[Provider(stopID)]; ok {
		return p
	}
	return 99
}

// TransportMode classifies a route. The TEOR line-name override is
// checked before the generic route_type mapping.
func TransportMode(route *RouteInfo) string {
	if teorLineRe.MatchString(strings.TrimSpace(route.ShortName)) {
		return "TEOR"
	}
	switch route.Type {
	case 0:
		return "Tram"
	case 1:
		return "Metro"
	case 2:
		return "Train"
	case 3:
		return "Bus"
	case 4:
		return "Ferry"
	}
	return ""
}

// SortModes orders transport modes by the fixed mode priority.
func SortModes(modes []string) {
	rank := func(mode string) int {
		for i, m := range modePriority {
			if m == mode {
				return i
			}
		}
		return len(modePriority)
	}
	sort.Slice(modes, func(i, j int) bool {
		return rank(modes[i]) < rank(modes[j])
	})
}
