package scraper

import (
	"slices"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// CoreLanguages are scanned when a refresh does not ask for specific ones.
var CoreLanguages = []string{"schinese", "japanese", "french", "koreana"}

// AllLanguages lists every language code the review API accepts.
var AllLanguages = []string{
	"arabic", "bulgarian", "schinese", "tchinese", "czech", "danish", "dutch",
	"english", "finnish", "french", "german", "greek", "hungarian", "indonesian",
	"italian", "japanese", "koreana", "norwegian", "polish", "portuguese",
	"brazilian", "romanian", "russian", "spanish", "latam", "swedish", "thai",
	"turkish", "ukrainian", "vietnamese",
}

// languageNames maps a review-API code to the name the store page uses in
// its supported-languages list.
var languageNames = map[string]string{
	"schinese":   "Simplified Chinese",
	"tchinese":   "Traditional Chinese",
	"japanese":   "Japanese",
	"koreana":    "Korean",
	"thai":       "Thai",
	"bulgarian":  "Bulgarian",
	"czech":      "Czech",
	"danish":     "Danish",
	"german":     "German",
	"spanish":    "Spanish - Spain",
	"latam":      "Spanish - Latin America",
	"greek":      "Greek",
	"french":     "French",
	"italian":    "Italian",
	"indonesian": "Indonesian",
	"hungarian":  "Hungarian",
	"dutch":      "Dutch",
	"norwegian":  "Norwegian",
	"polish":     "Polish",
	"portuguese": "Portuguese - Portugal",
	"brazilian":  "Portuguese - Brazil",
	"romanian":   "Romanian",
	"russian":    "Russian",
	"finnish":    "Finnish",
	"swedish":    "Swedish",
	"turkish":    "Turkish",
	"vietnamese": "Vietnamese",
	"ukrainian":  "Ukrainian",
	"english":    "English",
	"arabic":     "Arabic",
}

// IsKnownLanguage reports whether code is a review-API language code.
func IsKnownLanguage(code string) bool {
	return slices.Contains(AllLanguages, code)
}

// IsCoreLanguage reports whether code is in CoreLanguages.
func IsCoreLanguage(code string) bool {
	return slices.Contains(CoreLanguages, code)
}

// CanonicalName returns the display name for code, or code itself when the
// code is not mapped.
func CanonicalName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// SuggestLanguage maps a mistyped code or a display name ("Korean") to the
// closest known code. It returns "" when nothing is close.
func SuggestLanguage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	for _, code := range AllLanguages {
		if strings.EqualFold(languageNames[code], s) {
			return code
		}
	}

	if ranks := fuzzy.RankFindFold(s, AllLanguages); len(ranks) > 0 {
		sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].Distance < ranks[j].Distance })
		return ranks[0].Target
	}

	best, bestDist := "", 3
	for _, code := range AllLanguages {
		if d := fuzzy.LevenshteinDistance(s, code); d < bestDist {
			best, bestDist = code, d
		}
	}
	return best
}
