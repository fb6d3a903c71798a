package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bryanwahyu/evidence-custody/internal/domain/artifacts"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

type ArtifactRepository struct{ base }

const (
	artifactCols = `id, tenant_id, logical_name, created_at`
	versionCols  = `id, tenant_id, artifact_id, version_int, original_filename, content_hash,
       object_path, size_bytes, mime, created_at, uploaded_by`
)

func scanArtifact(row rowScanner) (*artifacts.Artifact, error) {
	var a artifacts.Artifact
	var created string
	if err := row.Scan(&a.ID, &a.TenantID, &a.LogicalName, &created); err != nil {
		return nil, err
	}
	ts, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = ts
	return &a, nil
}

func scanVersion(row rowScanner) (*artifacts.Version, error) {
	var v artifacts.Version
	var created string
	if err := row.Scan(&v.ID, &v.TenantID, &v.ArtifactID, &v.Version, &v.OriginalFilename, &v.ContentHash,
		&v.ObjectPath, &v.SizeBytes, &v.Mime, &created, &v.UploadedBy); err != nil {
		return nil, err
	}
	ts, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	v.CreatedAt = ts
	return &v, nil
}

func collectVersions(rows *sql.Rows, err error) ([]artifacts.Version, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []artifacts.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *ArtifactRepository) FindOrCreate(ctx context.Context, scope tenancy.Scope, logicalName string, now time.Time) (artifacts.Artifact, error) {
	q := r.d.insertIgnore(`INSERT INTO artifacts (tenant_id, logical_name, created_at) VALUES (?, ?, ?)`)
	if _, err := r.scopedExec(ctx, scope, q, logicalName, formatTime(now)); err != nil {
		return artifacts.Artifact{}, err
	}
	sel := `SELECT ` + artifactCols + ` FROM artifacts WHERE tenant_id = ? AND logical_name = ?`
	if r.inTx {
		sel += r.d.forUpdate()
	}
	a, err := scanArtifact(r.scopedQueryRow(ctx, scope, sel, logicalName))
	if err != nil {
		return artifacts.Artifact{}, err
	}
	return *a, nil
}

func (r *ArtifactRepository) Get(ctx context.Context, scope tenancy.Scope, id int64) (*artifacts.Artifact, error) {
	a, err := scanArtifact(r.scopedQueryRow(ctx, scope,
		`SELECT `+artifactCols+` FROM artifacts WHERE tenant_id = ? AND id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.NotFound("artifact", id)
	}
	return a, err
}

func (r *ArtifactRepository) List(ctx context.Context, scope tenancy.Scope) ([]artifacts.Artifact, error) {
	rows, err := r.scopedQuery(ctx, scope,
		`SELECT `+artifactCols+` FROM artifacts WHERE tenant_id = ? ORDER BY logical_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []artifacts.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *ArtifactRepository) LatestVersion(ctx context.Context, scope tenancy.Scope, artifactID int64) (*artifacts.Version, error) {
	v, err := scanVersion(r.scopedQueryRow(ctx, scope, `
SELECT `+versionCols+`
FROM artifact_versions
WHERE tenant_id = ? AND artifact_id = ?
ORDER BY version_int DESC LIMIT 1`, artifactID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (r *ArtifactRepository) InsertVersion(ctx context.Context, scope tenancy.Scope, v *artifacts.Version) error {
	const q = `
INSERT INTO artifact_versions (tenant_id, artifact_id, version_int, original_filename, content_hash,
 object_path, size_bytes, mime, created_at, uploaded_by)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	id, err := r.scopedInsert(ctx, scope, q,
		v.ArtifactID, v.Version, v.OriginalFilename, v.ContentHash,
		v.ObjectPath, v.SizeBytes, v.Mime, formatTime(v.CreatedAt), v.UploadedBy)
	if err != nil {
		return err
	}
	v.ID = id
	v.TenantID = scope.TenantID()
	return nil
}

func (r *ArtifactRepository) GetVersion(ctx context.Context, scope tenancy.Scope, id int64) (*artifacts.Version, error) {
	v, err := scanVersion(r.scopedQueryRow(ctx, scope,
		`SELECT `+versionCols+` FROM artifact_versions WHERE tenant_id = ? AND id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.NotFound("artifact version", id)
	}
	return v, err
}

func (r *ArtifactRepository) VersionsByIDs(ctx context.Context, scope tenancy.Scope, ids []int64) ([]artifacts.Version, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + versionCols + ` FROM artifact_versions WHERE tenant_id = ? AND id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	return collectVersions(r.scopedQuery(ctx, scope, q, int64Args(ids)...))
}

func (r *ArtifactRepository) Versions(ctx context.Context, scope tenancy.Scope, artifactID int64) ([]artifacts.Version, error) {
	return collectVersions(r.scopedQuery(ctx, scope,
		`SELECT `+versionCols+` FROM artifact_versions WHERE tenant_id = ? AND artifact_id = ? ORDER BY version_int`, artifactID))
}

func (r *ArtifactRepository) AllVersions(ctx context.Context, scope tenancy.Scope) ([]artifacts.Version, error) {
	return collectVersions(r.scopedQuery(ctx, scope,
		`SELECT `+versionCols+` FROM artifact_versions WHERE tenant_id = ? ORDER BY id`))
}
