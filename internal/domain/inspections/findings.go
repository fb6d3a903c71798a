package inspections

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Findings is the analyzer's opaque result record. Field names match the
// stored summary JSON.
type Findings struct {
	Filename      string         `json:"filename"`
	CUIDetected   *bool          `json:"cui_detected"`
	RiskLevel     RiskLevel      `json:"risk_level,omitempty"`
	PatternsFound map[string]int `json:"patterns_found"`
	CUICategories []string       `json:"cui_categories"`
	Error         string         `json:"error,omitempty"`
}

// Failed returns the findings recorded when the analyzer errors: no
// detection flag, no risk, the error text kept as data.
func Failed(filename string, err error) Findings {
	return Findings{
		Filename:      filename,
		PatternsFound: map[string]int{},
		CUICategories: []string{},
		Error:         err.Error(),
	}
}

// PatternsTotal sums all pattern counts.
func (f Findings) PatternsTotal() int {
	total := 0
	for _, n := range f.PatternsFound {
		total += n
	}
	return total
}

// SortedCategories returns the categories in a stable order.
func (f Findings) SortedCategories() []string {
	out := append([]string(nil), f.CUICategories...)
	sort.Strings(out)
	return out
}

// Encoded holds the JSON columns derived from a findings record.
type Encoded struct {
	Patterns   string
	Categories string
	Summary    string
}

// Encode renders the JSON columns. Missing maps and slices encode as empty
// values rather than null.
func (f Findings) Encode() (Encoded, error) {
	if f.PatternsFound == nil {
		f.PatternsFound = map[string]int{}
	}
	if f.CUICategories == nil {
		f.CUICategories = []string{}
	}
	patterns, err := json.Marshal(f.PatternsFound)
	if err != nil {
		return Encoded{}, fmt.Errorf("encoding patterns: %w", err)
	}
	cats, err := json.Marshal(f.CUICategories)
	if err != nil {
		return Encoded{}, fmt.Errorf("encoding categories: %w", err)
	}
	summary, err := json.Marshal(f)
	if err != nil {
		return Encoded{}, fmt.Errorf("encoding summary: %w", err)
	}
	return Encoded{Patterns: string(patterns), Categories: string(cats), Summary: string(summary)}, nil
}

// SortedCategoriesFromPatterns returns the pattern names with a positive
// count, sorted.
func (f Findings) SortedCategoriesFromPatterns() []string {
	out := make([]string, 0, len(f.PatternsFound))
	for k, n := range f.PatternsFound {
		if n > 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
