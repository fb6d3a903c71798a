package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

type InspectionRepository struct{ base }

const inspectionCols = `id, tenant_id, artifact_version_id, run_type, filename, ruleset, started_at, finished_at,
       cui_detected, risk_level, patterns_json, categories_json, summary_json, error_message`

func scanInspection(row rowScanner) (*inspections.Inspection, error) {
	var in inspections.Inspection
	var version sql.NullInt64
	var runType, started, finished string
	var detected sql.NullBool
	var risk, ruleset, errMsg sql.NullString
	if err := row.Scan(&in.ID, &in.TenantID, &version, &runType, &in.Filename, &ruleset, &started, &finished,
		&detected, &risk, &in.PatternsJSON, &in.CategoriesJSON, &in.SummaryJSON, &errMsg); err != nil {
		return nil, err
	}
	in.ArtifactVersionID = int64Ptr(version)
	in.RunType = inspections.RunType(runType)
	in.Ruleset = ruleset.String
	in.CUIDetected = boolPtr(detected)
	in.RiskLevel = inspections.RiskLevel(risk.String)
	in.Error = errMsg.String
	var err error
	if in.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if in.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	return &in, nil
}

func collectInspections(rows *sql.Rows, err error) ([]inspections.Inspection, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inspections.Inspection
	for rows.Next() {
		in, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

func (r *InspectionRepository) Insert(ctx context.Context, scope tenancy.Scope, in *inspections.Inspection) error {
	const q = `
INSERT INTO inspections (tenant_id, artifact_version_id, run_type, filename, ruleset, started_at, finished_at,
 cui_detected, risk_level, patterns_json, categories_json, summary_json, error_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := r.scopedInsert(ctx, scope, q,
		nullInt64(in.ArtifactVersionID), string(in.RunType), in.Filename, nullString(in.Ruleset),
		formatTime(in.StartedAt), formatTime(in.FinishedAt),
		nullBool(in.CUIDetected), nullString(string(in.RiskLevel)),
		in.PatternsJSON, in.CategoriesJSON, in.SummaryJSON, nullString(in.Error))
	if err != nil {
		return err
	}
	in.ID = id
	in.TenantID = scope.TenantID()
	return nil
}

func (r *InspectionRepository) Get(ctx context.Context, scope tenancy.Scope, id int64) (*inspections.Inspection, error) {
	in, err := scanInspection(r.scopedQueryRow(ctx, scope,
		`SELECT `+inspectionCols+` FROM inspections WHERE tenant_id = ? AND id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.NotFound("inspection", id)
	}
	return in, err
}

// Latest inspections per tenant
func (r *InspectionRepository) Latest(ctx context.Context, scope tenancy.Scope, limit int) ([]inspections.Inspection, error) {
	if limit <= 0 {
		limit = 20
	}
	return collectInspections(r.scopedQuery(ctx, scope, `
SELECT `+inspectionCols+`
FROM inspections
WHERE tenant_id = ?
ORDER BY started_at DESC, id DESC LIMIT ?`, limit))
}

func (r *InspectionRepository) Select(ctx context.Context, scope tenancy.Scope, sel inspections.Selection) ([]inspections.Inspection, error) {
	switch sel.Mode {
	case inspections.SelectMostRecent:
		return r.Latest(ctx, scope, sel.Limit)
	case inspections.SelectDateRange:
		return collectInspections(r.scopedQuery(ctx, scope, `
SELECT `+inspectionCols+`
FROM inspections
WHERE tenant_id = ? AND started_at >= ? AND started_at <= ?
ORDER BY started_at DESC, id DESC`, formatTime(sel.From), formatTime(sel.To)))
	case inspections.SelectIDs:
		if len(sel.IDs) == 0 {
			return nil, nil
		}
		return collectInspections(r.scopedQuery(ctx, scope, `
SELECT `+inspectionCols+`
FROM inspections
WHERE tenant_id = ? AND id IN (`+placeholders(len(sel.IDs))+`)
ORDER BY started_at DESC, id DESC`, int64Args(sel.IDs)...))
	}
	return nil, custody.Invalid("unknown selection mode %q", sel.Mode)
}

type EvidenceRepository struct{ base }

const evidenceCols = `id, tenant_id, inspection_id, kind, filename, content_hash, object_path, size_bytes, created_at`

func scanEvidence(row rowScanner) (*inspections.EvidenceFile, error) {
	var e inspections.EvidenceFile
	var created string
	if err := row.Scan(&e.ID, &e.TenantID, &e.InspectionID, &e.Kind, &e.Filename, &e.ContentHash,
		&e.ObjectPath, &e.SizeBytes, &created); err != nil {
		return nil, err
	}
	ts, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = ts
	return &e, nil
}

func collectEvidence(rows *sql.Rows, err error) ([]inspections.EvidenceFile, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inspections.EvidenceFile
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EvidenceRepository) Insert(ctx context.Context, scope tenancy.Scope, e *inspections.EvidenceFile) error {
	const q = `
INSERT INTO evidence_files (tenant_id, inspection_id, kind, filename, content_hash, object_path, size_bytes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := r.scopedInsert(ctx, scope, q,
		e.InspectionID, e.Kind, e.Filename, e.ContentHash, e.ObjectPath, e.SizeBytes, formatTime(e.CreatedAt))
	if err != nil {
		return err
	}
	e.ID = id
	e.TenantID = scope.TenantID()
	return nil
}

func (r *EvidenceRepository) Get(ctx context.Context, scope tenancy.Scope, id int64) (*inspections.EvidenceFile, error) {
	e, err := scanEvidence(r.scopedQueryRow(ctx, scope,
		`SELECT `+evidenceCols+` FROM evidence_files WHERE tenant_id = ? AND id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.NotFound("evidence file", id)
	}
	return e, err
}

func (r *EvidenceRepository) ListByInspection(ctx context.Context, scope tenancy.Scope, inspectionID int64) ([]inspections.EvidenceFile, error) {
	return collectEvidence(r.scopedQuery(ctx, scope,
		`SELECT `+evidenceCols+` FROM evidence_files WHERE tenant_id = ? AND inspection_id = ? ORDER BY filename, id`, inspectionID))
}

func (r *EvidenceRepository) ListByInspections(ctx context.Context, scope tenancy.Scope, ids []int64) ([]inspections.EvidenceFile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return collectEvidence(r.scopedQuery(ctx, scope, `
SELECT `+evidenceCols+`
FROM evidence_files
WHERE tenant_id = ? AND inspection_id IN (`+placeholders(len(ids))+`)
ORDER BY inspection_id, filename, id`, int64Args(ids)...))
}

func (r *EvidenceRepository) All(ctx context.Context, scope tenancy.Scope) ([]inspections.EvidenceFile, error) {
	return collectEvidence(r.scopedQuery(ctx, scope,
		`SELECT `+evidenceCols+` FROM evidence_files WHERE tenant_id = ? ORDER BY id`))
}
