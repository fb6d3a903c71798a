package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

// timeLayout is fixed width for UTC values, so lexical order of the stored
// strings equals chronological order on every dialect.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

// escapeLikePattern escapes LIKE wildcards using '!' as the escape
// character, which needs no quoting in any supported dialect.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "!", "!!")
	s = strings.ReplaceAll(s, "%", "!%")
	s = strings.ReplaceAll(s, "_", "!_")
	return s
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// base carries the connection (or transaction) and dialect for every
// repository.
type base struct {
	q    querier
	d    Dialect
	inTx bool
}

func (b base) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return b.q.ExecContext(ctx, b.d.rebind(query), args...)
}

func (b base) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return b.q.QueryContext(ctx, b.d.rebind(query), args...)
}

func (b base) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return b.q.QueryRowContext(ctx, b.d.rebind(query), args...)
}

// insert runs an INSERT and returns the generated id.
func (b base) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if b.d == Postgres {
		var id int64
		if err := b.queryRow(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := b.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Tenant-scoped access. Every query on tenant-owned tables goes through
// these helpers: the scope must be set, and the tenant id is always bound
// to the first placeholder, which must be the tenant filter (or the first
// inserted column).

var (
	errMissingTenantFilter = errors.New("sqlstore: query does not bind tenant_id first")

	scopedReadGuard   = regexp.MustCompile(`(?s)^[^?]*\btenant_id = \?`)
	scopedInsertGuard = regexp.MustCompile(`(?s)^\s*INSERT (?:OR IGNORE |IGNORE )?INTO \w+ \(tenant_id,`)
)

func scopedArgs(scope tenancy.Scope, query string, guard *regexp.Regexp, args []any) ([]any, error) {
	if err := scope.Err(); err != nil {
		return nil, err
	}
	if !guard.MatchString(query) {
		return nil, fmt.Errorf("%w: %s", errMissingTenantFilter, strings.TrimSpace(query))
	}
	return append([]any{scope.TenantID()}, args...), nil
}

func (b base) scopedQuery(ctx context.Context, scope tenancy.Scope, query string, args ...any) (*sql.Rows, error) {
	all, err := scopedArgs(scope, query, scopedReadGuard, args)
	if err != nil {
		return nil, err
	}
	return b.query(ctx, query, all...)
}

// scopedQueryRow returns a scanner so guard failures surface from Scan.
func (b base) scopedQueryRow(ctx context.Context, scope tenancy.Scope, query string, args ...any) rowScanner {
	all, err := scopedArgs(scope, query, scopedReadGuard, args)
	if err != nil {
		return errRow{err}
	}
	return b.queryRow(ctx, query, all...)
}

func (b base) scopedExec(ctx context.Context, scope tenancy.Scope, query string, args ...any) (sql.Result, error) {
	guard := scopedReadGuard
	if strings.HasPrefix(strings.TrimSpace(query), "INSERT") {
		guard = scopedInsertGuard
	}
	all, err := scopedArgs(scope, query, guard, args)
	if err != nil {
		return nil, err
	}
	return b.exec(ctx, query, all...)
}

func (b base) scopedInsert(ctx context.Context, scope tenancy.Scope, query string, args ...any) (int64, error) {
	all, err := scopedArgs(scope, query, scopedInsertGuard, args)
	if err != nil {
		return 0, err
	}
	return b.insert(ctx, query, all...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
