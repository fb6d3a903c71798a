package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
)

func TestRender(t *testing.T) {
	detected := true
	f := inspections.Findings{
		Filename:      "<script>x</script>.txt",
		CUIDetected:   &detected,
		RiskLevel:     inspections.RiskMedium,
		PatternsFound: map[string]int{"SSN": 2, "Email": 1},
		CUICategories: []string{"SSN", "Email"},
	}

	out, err := HTML{}.Render(context.Background(), f)
	require.NoError(t, err)
	doc := string(out)

	assert.Contains(t, doc, "<h1>CUI Inspection Report</h1>")
	assert.Contains(t, doc, "<table>")
	assert.Contains(t, doc, "<td>SSN</td>")
	assert.NotContains(t, doc, "<script>")

	again, err := HTML{}.Render(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, out, again, "rendering is deterministic")
}

func TestRenderFailedFindings(t *testing.T) {
	f := inspections.Failed("broken.bin", assert.AnError)
	md := Markdown(f)
	assert.Contains(t, md, "**Risk:** none")
	assert.Contains(t, md, "**CUI Detected:** unknown")
	assert.Contains(t, md, "No patterns found.")
	assert.Equal(t, inspections.KindReportHTML, HTML{}.Kind())
	assert.Equal(t, ".html", HTML{}.Extension())
}
