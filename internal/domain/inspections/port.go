package inspections

import (
	"context"

	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

// Repository persists inspections (tenant-scoped).
type Repository interface {
	// Insert stores in and sets in.ID.
	Insert(ctx context.Context, scope tenancy.Scope, in *Inspection) error
	Get(ctx context.Context, scope tenancy.Scope, id int64) (*Inspection, error)
	Latest(ctx context.Context, scope tenancy.Scope, limit int) ([]Inspection, error)
	// Select returns inspections ordered by started_at desc, id desc.
	Select(ctx context.Context, scope tenancy.Scope, sel Selection) ([]Inspection, error)
}

// EvidenceRepository persists evidence files (tenant-scoped).
type EvidenceRepository interface {
	// Insert stores e and sets e.ID.
	Insert(ctx context.Context, scope tenancy.Scope, e *EvidenceFile) error
	Get(ctx context.Context, scope tenancy.Scope, id int64) (*EvidenceFile, error)
	ListByInspection(ctx context.Context, scope tenancy.Scope, inspectionID int64) ([]EvidenceFile, error)
	// ListByInspections returns evidence for ids ordered by inspection id,
	// filename, id.
	ListByInspections(ctx context.Context, scope tenancy.Scope, ids []int64) ([]EvidenceFile, error)
	// All lists every evidence file in the tenant ordered by id.
	All(ctx context.Context, scope tenancy.Scope) ([]EvidenceFile, error)
}

// Analyzer is the external CUI classifier. It is a black box: the storage
// core records whatever it returns.
type Analyzer interface {
	// Name identifies the ruleset recorded with each inspection.
	Name() string
	InspectBytes(ctx context.Context, name string, data []byte) (Findings, error)
	InspectText(ctx context.Context, name, text string) (Findings, error)
}

// Renderer turns findings into a report document.
type Renderer interface {
	// Kind is the evidence kind of rendered reports, e.g. "report_html".
	Kind() string
	// Extension is the report file extension including the dot.
	Extension() string
	Render(ctx context.Context, f Findings) ([]byte, error)
}

// TextExtractor turns uploaded bytes into searchable text.
type TextExtractor interface {
	ExtractText(name string, data []byte) string
}
