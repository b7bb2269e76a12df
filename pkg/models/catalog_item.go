package models

import "time"

// ItemType is the marketplace classification of a listing.
type ItemType string

const (
	ItemTypeUnknown ItemType = "unknown"
	ItemTypeGame    ItemType = "game"
	ItemTypeDemo    ItemType = "demo"
	ItemTypeOther   ItemType = "other"
)

// ParseItemType maps the upstream "type" string onto our enum.
// Anything that is not a game or a demo (dlc, music, video, ...) is "other".
func ParseItemType(s string) ItemType {
	switch s {
	case "game":
		return ItemTypeGame
	case "demo":
		return ItemTypeDemo
	case "":
		return ItemTypeUnknown
	default:
		return ItemTypeOther
	}
}

// Enrichable reports whether tags, languages and reviews are collected for
// this type. Unknown stays enrichable until a detail fetch classifies it.
func (t ItemType) Enrichable() bool {
	return t != ItemTypeOther
}

// CatalogItem is one marketplace listing tracked by the scanner.
//
// Tags and SupportedLanguages hold the normalized sets in their persisted
// order. LanguageReviews is accumulative: a refresh only overwrites the
// languages it scanned.
type CatalogItem struct {
	ID                 int64          `json:"app_id"`
	Name               string         `json:"name"`
	Type               ItemType       `json:"item_type"`
	Tags               []string       `json:"tags"`
	SupportedLanguages []string       `json:"supported_languages"`
	LanguageReviews    map[string]int `json:"language_reviews"`
	TotalReviewsAll    int            `json:"total_reviews_all_purchase_types"`
	TotalReviewsStore  int            `json:"total_reviews_storefront_only"`
	LastScanned        *time.Time     `json:"last_scanned,omitempty"`
}

// Clone returns a copy that shares no mutable state with c.
func (c CatalogItem) Clone() CatalogItem {
	out := c
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.SupportedLanguages != nil {
		out.SupportedLanguages = append([]string(nil), c.SupportedLanguages...)
	}
	if c.LanguageReviews != nil {
		out.LanguageReviews = make(map[string]int, len(c.LanguageReviews))
		for k, v := range c.LanguageReviews {
			out.LanguageReviews[k] = v
		}
	}
	if c.LastScanned != nil {
		ts := *c.LastScanned
		out.LastScanned = &ts
	}
	return out
}

// LanguageReviewCount returns the stored count for code, 0 when absent.
func (c CatalogItem) LanguageReviewCount(code string) int {
	return c.LanguageReviews[code]
}

// AppListEntry is one id+name pair from the bulk listing endpoint.
type AppListEntry struct {
	ID   int64  `json:"appid"`
	Name string `json:"name"`
}
