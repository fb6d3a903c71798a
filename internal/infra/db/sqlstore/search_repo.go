package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bryanwahyu/evidence-custody/internal/domain/search"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

type SearchRepository struct{ base }

// DefaultSearchLimit caps result sets when the query names no limit.
const DefaultSearchLimit = 400

func (r *SearchRepository) Insert(ctx context.Context, scope tenancy.Scope, e *search.Entry) error {
	cats := e.Categories
	if cats == nil {
		cats = []string{}
	}
	catsJSON, err := json.Marshal(cats)
	if err != nil {
		return fmt.Errorf("encoding categories: %w", err)
	}
	const q = `
INSERT INTO inspection_index (tenant_id, inspection_id, artifact_version_id, filename, file_ext, safe_excerpt,
 filename_folded, excerpt_folded, char_count, word_count, patterns_total, categories_json, risk_level, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.scopedExec(ctx, scope, q,
		e.InspectionID, nullInt64(e.ArtifactVersionID), e.Filename, e.FileExt, e.SafeExcerpt,
		search.Fold(e.Filename), search.Fold(e.SafeExcerpt), e.CharCount, e.WordCount, e.PatternsTotal, string(catsJSON), nullString(e.RiskLevel), formatTime(e.CreatedAt)); err != nil {
		return err
	}
	e.TenantID = scope.TenantID()
	return nil
}

func (r *SearchRepository) Find(ctx context.Context, scope tenancy.Scope, q search.Query) ([]search.Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`
SELECT tenant_id, inspection_id, artifact_version_id, filename, file_ext, safe_excerpt,
       char_count, word_count, patterns_total, categories_json, risk_level, created_at
FROM inspection_index
WHERE tenant_id = ?`)
	if risk := strings.TrimSpace(q.Risk); risk != "" {
		b.WriteString(` AND risk_level = ?`)
		args = append(args, strings.ToUpper(risk))
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		like := "%" + escapeLikePattern(search.Fold(text)) + "%"
		b.WriteString(` AND (filename_folded LIKE ? ESCAPE '!' OR excerpt_folded LIKE ? ESCAPE '!')`)
		args = append(args, like, like)
	}
	b.WriteString(` ORDER BY created_at DESC, inspection_id DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := r.scopedQuery(ctx, scope, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []search.Entry
	for rows.Next() {
		var e search.Entry
		var version sql.NullInt64
		var catsJSON, created string
		var risk sql.NullString
		if err := rows.Scan(&e.TenantID, &e.InspectionID, &version, &e.Filename, &e.FileExt, &e.SafeExcerpt,
			&e.CharCount, &e.WordCount, &e.PatternsTotal, &catsJSON, &risk, &created); err != nil {
			return nil, err
		}
		e.ArtifactVersionID = int64Ptr(version)
		e.RiskLevel = risk.String
		if err := json.Unmarshal([]byte(catsJSON), &e.Categories); err != nil || e.Categories == nil {
			e.Categories = []string{}
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
