package inspections

import (
	"encoding/json"
	"time"
)

// RunType enum
type RunType string

const (
	RunFile   RunType = "file"
	RunManual RunType = "manual"
)

// Valid reports whether t is a known run type.
func (t RunType) Valid() bool { return t == RunFile || t == RunManual }

// RiskLevel enum as reported by the analyzer.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Evidence kinds attached to inspections.
const (
	KindFindingsJSON = "findings_json"
	KindReportHTML   = "report_html"
	KindReportPDF    = "report_pdf"
)

// Inspection is one analysis run, immutable once recorded. Manual runs
// carry no artifact version.
type Inspection struct {
	ID                int64     `json:"id"`
	TenantID          int64     `json:"tenant_id"`
	ArtifactVersionID *int64    `json:"artifact_version_id,omitempty"`
	RunType           RunType   `json:"run_type"`
	Filename          string    `json:"filename"`
	Ruleset           string    `json:"ruleset,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	CUIDetected       *bool     `json:"cui_detected,omitempty"`
	RiskLevel         RiskLevel `json:"risk_level,omitempty"`
	PatternsJSON      string    `json:"patterns_json"`
	CategoriesJSON    string    `json:"categories_json"`
	SummaryJSON       string    `json:"summary_json"`
	Error             string    `json:"error,omitempty"`
}

// Patterns decodes PatternsJSON; malformed content yields an empty map.
func (i Inspection) Patterns() map[string]int {
	out := map[string]int{}
	_ = json.Unmarshal([]byte(i.PatternsJSON), &out)
	return out
}

// Categories decodes CategoriesJSON.
func (i Inspection) Categories() []string {
	var out []string
	_ = json.Unmarshal([]byte(i.CategoriesJSON), &out)
	return out
}

// RiskScore is the total number of pattern hits.
func (i Inspection) RiskScore() int {
	total := 0
	for _, n := range i.Patterns() {
		total += n
	}
	return total
}

// EvidenceFile is a derived object attached to an inspection.
type EvidenceFile struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	InspectionID int64     `json:"inspection_id"`
	Kind         string    `json:"kind"`
	Filename     string    `json:"filename"`
	ContentHash  string    `json:"content_hash"`
	ObjectPath   string    `json:"object_path"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// SelectionMode enum for choosing inspections to export.
type SelectionMode string

const (
	SelectMostRecent SelectionMode = "recent"
	SelectDateRange  SelectionMode = "range"
	SelectIDs        SelectionMode = "ids"
)

// Selection chooses a set of inspections within one tenant.
type Selection struct {
	Mode  SelectionMode `json:"mode"`
	Limit int           `json:"limit,omitempty"`
	From  time.Time     `json:"from,omitempty"`
	To    time.Time     `json:"to,omitempty"`
	IDs   []int64       `json:"ids,omitempty"`
}
