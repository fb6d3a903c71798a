package patterns

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
)

func TestInspectText(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		risk       inspections.RiskLevel
		detected   bool
		patterns   map[string]int
		categories []string
	}{
		{
			name:       "clean text",
			text:       "nothing to see here",
			risk:       inspections.RiskLow,
			patterns:   map[string]int{},
			categories: []string{},
		},
		{
			name:       "single ssn",
			text:       "SSN 123-45-6789",
			risk:       inspections.RiskMedium,
			detected:   true,
			patterns:   map[string]int{"SSN": 1},
			categories: []string{"SSN"},
		},
		{
			name:       "categories keep rule order",
			text:       "mail a@b.io id 1234567890 ssn 111-22-3333",
			risk:       inspections.RiskMedium,
			detected:   true,
			patterns:   map[string]int{"SSN": 1, "DoD_ID": 1, "Email": 1},
			categories: []string{"SSN", "DoD_ID", "Email"},
		},
		{
			name:       "ten hits is high",
			text:       strings.Repeat("123-45-6789 ", 10),
			risk:       inspections.RiskHigh,
			detected:   true,
			patterns:   map[string]int{"SSN": 10},
			categories: []string{"SSN"},
		},
	}

	a := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := a.InspectText(context.Background(), "doc.txt", tt.text)
			require.NoError(t, err)
			assert.Equal(t, "doc.txt", f.Filename)
			assert.Equal(t, tt.risk, f.RiskLevel)
			require.NotNil(t, f.CUIDetected)
			assert.Equal(t, tt.detected, *f.CUIDetected)
			assert.Equal(t, tt.patterns, f.PatternsFound)
			assert.Equal(t, tt.categories, f.CUICategories)
		})
	}
}

func TestInspectBytesDropsInvalidUTF8(t *testing.T) {
	a := New()
	f, err := a.InspectBytes(context.Background(), "bin.dat", []byte("ssn \xff123-45-6789\xfe"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"SSN": 1}, f.PatternsFound)
	assert.Equal(t, Ruleset, a.Name())
}

func TestExtractor(t *testing.T) {
	assert.Equal(t, "héllo", Extractor{}.ExtractText("x", []byte("héllo")))
	assert.Equal(t, "ab", Extractor{}.ExtractText("x", []byte("a\xffb")))
}
