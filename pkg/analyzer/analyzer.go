// Package analyzer detects brand mentions in generated response text.
package analyzer

import "strings"

// Mention holds the detection result for a single brand against one
// response text.
type Mention struct {
	Brand         string `json:"brand"`
	Mentioned     bool   `json:"mentioned"`
	Count         int    `json:"count"`
	PositionIndex *int   `json:"position_index"`
}

// Analyze reports, for each brand, whether and how often the brand name
// occurs in text. Matching is case-insensitive and counts non-overlapping
// occurrences. PositionIndex is the byte offset of the first occurrence
// in the lowercased text, or nil if the brand is absent.
//
// Analyze is pure and never fails: empty text or an empty brand list
// simply yields all-false or empty results.
func Analyze(text string, brands []string) []Mention {
	results := make([]Mention, 0, len(brands))

	textLower := strings.ToLower(text)

	for _, brand := range brands {
		brandLower := strings.ToLower(brand)

		m := Mention{Brand: brand}

		if brandLower != "" {
			if idx := strings.Index(textLower, brandLower); idx >= 0 {
				pos := idx
				m.Mentioned = true
				m.Count = strings.Count(textLower, brandLower)
				m.PositionIndex = &pos
			}
		}

		results = append(results, m)
	}

	return results
}
