// Package patterns is the built-in CUI analyzer: a fixed set of regular
// expressions counted over the document text.
package patterns

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
)

// Ruleset identifies this analyzer on recorded inspections.
const Ruleset = "cui-patterns/v1"

// HighRiskThreshold is the total hit count at which risk becomes HIGH.
const HighRiskThreshold = 10

// Rule is one named pattern.
type Rule struct {
	Name string
	Re   *regexp.Regexp
}

// DefaultRules are evaluated in order; categories are reported in the
// same order.
var DefaultRules = []Rule{
	{Name: "SSN", Re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{Name: "DoD_ID", Re: regexp.MustCompile(`\b\d{10}\b`)},
	{Name: "Email", Re: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{Name: "CAGE", Re: regexp.MustCompile(`\b[A-HJ-NP-Z0-9]{5}\b`)},
}

type Analyzer struct {
	rules     []Rule
	extractor inspections.TextExtractor
}

// New returns an analyzer over rules, or DefaultRules when none are given.
func New(rules ...Rule) *Analyzer {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Analyzer{rules: rules, extractor: Extractor{}}
}

func (a *Analyzer) Name() string { return Ruleset }

func (a *Analyzer) InspectBytes(ctx context.Context, name string, data []byte) (inspections.Findings, error) {
	return a.InspectText(ctx, name, a.extractor.ExtractText(name, data))
}

func (a *Analyzer) InspectText(ctx context.Context, name, text string) (inspections.Findings, error) {
	if err := ctx.Err(); err != nil {
		return inspections.Findings{}, err
	}
	found := map[string]int{}
	categories := []string{}
	total := 0
	for _, r := range a.rules {
		n := len(r.Re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		found[r.Name] = n
		categories = append(categories, r.Name)
		total += n
	}

	risk := inspections.RiskLow
	if total > 0 {
		risk = inspections.RiskMedium
	}
	if total >= HighRiskThreshold {
		risk = inspections.RiskHigh
	}
	detected := total > 0
	return inspections.Findings{
		Filename:      name,
		CUIDetected:   &detected,
		RiskLevel:     risk,
		PatternsFound: found,
		CUICategories: categories,
	}, nil
}

// Extractor decodes uploads as UTF-8 text, dropping invalid sequences.
type Extractor struct{}

func (Extractor) ExtractText(_ string, data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

var (
	_ inspections.Analyzer      = (*Analyzer)(nil)
	_ inspections.TextExtractor = Extractor{}
)
