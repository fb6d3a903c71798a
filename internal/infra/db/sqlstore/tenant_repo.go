package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

type TenantRepository struct{ base }

const tenantCols = `id, name, active, created_at`

func scanTenant(row rowScanner) (*tenancy.Tenant, error) {
	var t tenancy.Tenant
	var created string
	if err := row.Scan(&t.ID, &t.Name, &t.Active, &created); err != nil {
		return nil, err
	}
	ts, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = ts
	return &t, nil
}

func (r *TenantRepository) CreateIfAbsent(ctx context.Context, name string, now time.Time) (tenancy.Tenant, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return tenancy.Tenant{}, false, custody.Invalid("tenant name is required")
	}
	res, err := r.exec(ctx, r.d.insertIgnore(`INSERT INTO tenants (name, active, created_at) VALUES (?, ?, ?)`),
		name, true, formatTime(now))
	if err != nil {
		return tenancy.Tenant{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return tenancy.Tenant{}, false, err
	}
	t, err := r.GetByName(ctx, name)
	if err != nil {
		return tenancy.Tenant{}, false, err
	}
	return *t, n == 1, nil
}

func (r *TenantRepository) Get(ctx context.Context, id int64) (*tenancy.Tenant, error) {
	t, err := scanTenant(r.queryRow(ctx, `SELECT `+tenantCols+` FROM tenants WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.NotFound("tenant", id)
	}
	return t, err
}

func (r *TenantRepository) GetByName(ctx context.Context, name string) (*tenancy.Tenant, error) {
	t, err := scanTenant(r.queryRow(ctx, `SELECT `+tenantCols+` FROM tenants WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.NotFound("tenant", name)
	}
	return t, err
}

func (r *TenantRepository) List(ctx context.Context) ([]tenancy.Tenant, error) {
	rows, err := r.query(ctx, `SELECT `+tenantCols+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenancy.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SetActive checks existence first: MySQL reports zero affected rows when
// the value does not change.
func (r *TenantRepository) SetActive(ctx context.Context, id int64, active bool) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	_, err := r.exec(ctx, `UPDATE tenants SET active = ? WHERE id = ?`, active, id)
	return err
}

type UserRepository struct{ base }

const userCols = `id, tenant_id, username, password_hash, role, active, created_at, last_login_at`

func scanUser(row rowScanner) (*tenancy.User, error) {
	var u tenancy.User
	var tenant sql.NullInt64
	var role, created string
	var lastLogin sql.NullString
	if err := row.Scan(&u.ID, &tenant, &u.Username, &u.PasswordHash, &role, &u.Active, &created, &lastLogin); err != nil {
		return nil, err
	}
	u.TenantID = int64Ptr(tenant)
	u.Role = tenancy.Role(role)
	ts, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = ts
	if u.LastLoginAt, err = parseNullTime(lastLogin); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r *UserRepository) CreateIfAbsent(ctx context.Context, u *tenancy.User) (bool, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := r.exec(ctx, r.d.insertIgnore(`INSERT INTO users (tenant_id, username, password_hash, role, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		nullInt64(u.TenantID), u.Username, u.PasswordHash, string(u.Role), u.Active, formatTime(u.CreatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	stored, err := r.GetByUsername(ctx, u.Username)
	if err != nil {
		return false, err
	}
	u.ID = stored.ID
	return true, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*tenancy.User, error) {
	u, err := scanUser(r.queryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, custody.NotFound("user", username)
	}
	return u, err
}

func (r *UserRepository) List(ctx context.Context, tenantID *int64) ([]tenancy.User, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if tenantID == nil {
		rows, err = r.query(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	} else {
		rows, err = r.query(ctx, `SELECT `+userCols+` FROM users WHERE tenant_id = ? ORDER BY id`, *tenantID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tenancy.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *UserRepository) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.exec(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, formatTime(at), id)
	return err
}
