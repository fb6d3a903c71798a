package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

type DataFlowRepository struct{ base }

func (r *DataFlowRepository) Insert(ctx context.Context, scope tenancy.Scope, m *dataflows.Map) error {
	flows, err := json.Marshal(m.Flows)
	if err != nil {
		return fmt.Errorf("encoding flows: %w", err)
	}
	const q = `
INSERT INTO data_flows (tenant_id, name, flows_json, created_at, created_by)
VALUES (?, ?, ?, ?, ?)`
	id, err := r.scopedInsert(ctx, scope, q, m.Name, string(flows), formatTime(m.CreatedAt), m.CreatedBy)
	if err != nil {
		return err
	}
	m.ID = id
	m.TenantID = scope.TenantID()
	return nil
}

func (r *DataFlowRepository) Get(ctx context.Context, scope tenancy.Scope, id int64) (*dataflows.Map, error) {
	var (
		m              dataflows.Map
		flows, created string
	)
	err := r.scopedQueryRow(ctx, scope, `
SELECT id, tenant_id, name, flows_json, created_at, created_by
FROM data_flows WHERE tenant_id = ? AND id = ?`, id).
		Scan(&m.ID, &m.TenantID, &m.Name, &flows, &created, &m.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.NotFound("data flow map", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(flows), &m.Flows); err != nil {
		return nil, fmt.Errorf("decoding flows of map %d: %w", id, err)
	}
	if m.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *DataFlowRepository) List(ctx context.Context, scope tenancy.Scope, limit int) ([]dataflows.Map, error) {
	rows, err := r.scopedQuery(ctx, scope, `
SELECT id, tenant_id, name, created_at, created_by
FROM data_flows WHERE tenant_id = ?
ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dataflows.Map{}
	for rows.Next() {
		var m dataflows.Map
		var created string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &created, &m.CreatedBy); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
