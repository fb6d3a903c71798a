package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

type AuditRepository struct{ base }

const auditCols = `id, tenant_id, user_id, event_type, payload_json, created_at`

func (r *AuditRepository) Append(ctx context.Context, e *audit.Event) error {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding audit payload: %w", err)
	}
	id, err := r.insert(ctx,
		`INSERT INTO audit_events (tenant_id, user_id, event_type, payload_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		nullInt64(e.TenantID), nullInt64(e.UserID), string(e.EventType), string(raw), formatTime(e.CreatedAt))
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// List returns the newest limit events of the tenant in chronological order.
func (r *AuditRepository) List(ctx context.Context, scope tenancy.Scope, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.scopedQuery(ctx, scope, `
SELECT `+auditCols+`
FROM audit_events
WHERE tenant_id = ?
ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	return collectEvents(rows, err)
}

func (r *AuditRepository) ListGlobal(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.query(ctx, `
SELECT `+auditCols+`
FROM audit_events
WHERE tenant_id IS NULL
ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	return collectEvents(rows, err)
}

// collectEvents reads newest-first rows and returns them oldest-first.
func collectEvents(rows *sql.Rows, err error) ([]audit.Event, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var e audit.Event
		var tenant, user sql.NullInt64
		var eventType, payload, created string
		if err := rows.Scan(&e.ID, &tenant, &user, &eventType, &payload, &created); err != nil {
			return nil, err
		}
		e.TenantID = int64Ptr(tenant)
		e.UserID = int64Ptr(user)
		e.EventType = audit.EventType(eventType)
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decoding audit payload %d: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
