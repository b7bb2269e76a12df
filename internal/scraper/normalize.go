package scraper

import (
	"io"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

var audioFootnote = regexp.MustCompile(`(?i)languages with full audio support`)

// stripMarkup drops every tag from s, leaving a space where each tag was so
// that "<br>" still separates neighbouring words.
func stripMarkup(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return b.String()
			}
			// unparsable tail, keep it as text
			b.Write(z.Raw())
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		default:
			b.WriteByte(' ')
		}
	}
}

// NormalizeLanguages turns the store's supported_languages markup into a
// clean list: tags, asterisks and the audio footnote removed, split on
// commas, deduplicated case-insensitively keeping the first-seen casing,
// and sorted case-insensitively.
func NormalizeLanguages(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	clean := stripMarkup(raw)
	clean = strings.ReplaceAll(clean, "*", "")
	clean = audioFootnote.ReplaceAllString(clean, "")

	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Split(clean, ",") {
		tok = strings.Join(strings.Fields(tok), " ")
		if tok == "" {
			continue
		}
		key := strings.ToLower(tok)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tok)
	}

	slices.SortStableFunc(out, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out
}

// NormalizeTags unions genre and category descriptions, trimmed, with empty
// strings dropped and exact duplicates removed. Genres come first, each list
// in its upstream order.
func NormalizeTags(genres, categories []Description) []string {
	var out []string
	for _, list := range [][]Description{genres, categories} {
		for _, d := range list {
			out = appendIfMissing(out, strings.TrimSpace(d.Description))
		}
	}
	return out
}

func appendIfMissing(slice []string, v string) []string {
	if v == "" {
		return slice
	}
	for _, x := range slice {
		if x == v {
			return slice
		}
	}
	return append(slice, v)
}

// JoinList is the persisted form of a normalized set.
func JoinList(items []string) string {
	return strings.Join(items, ",")
}

// SplitList parses a persisted or user-supplied list. Both ',' and ';'
// separate entries; entries are trimmed and empty ones dropped.
func SplitList(s string) []string {
	s = strings.ReplaceAll(s, ";", ",")
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
