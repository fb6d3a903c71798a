package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	domain "github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

const (
	MinPasswordLength = 12
	DefaultAdminName  = "superadmin"
	DefaultTenantName = "default"

	// DefaultLoginWindow bounds how often one user's logins and failed
	// logins reach the audit log.
	DefaultLoginWindow = 15 * time.Minute
)

var errInvalidCredentials = custody.Denied("invalid credentials")

// Service administers tenants and users and turns credentials into
// request sessions.
type Service struct {
	Store repo.UnitOfWork
	Audit *appaudit.Recorder
	Clock application.Clock
	Log   *slog.Logger

	// LoginWindow: a user already logged in within it is authenticated
	// without a new login event, and repeated failures for one username
	// inside it are folded into the next recorded failure. Zero means
	// DefaultLoginWindow.
	LoginWindow time.Duration

	dummyOnce sync.Once
	dummyHash string

	failMu   sync.Mutex
	failures map[string]*failureWindow
}

type failureWindow struct {
	since      time.Time
	suppressed int
}

func (s *Service) loginWindow() time.Duration {
	if s.LoginWindow <= 0 {
		return DefaultLoginWindow
	}
	return s.LoginWindow
}

// noteFailure reports whether a failed login for username opens a new
// window and should be audited, with the failures folded since the last one.
func (s *Service) noteFailure(username string, now time.Time) (record bool, suppressed int) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if s.failures == nil {
		s.failures = make(map[string]*failureWindow)
	}
	window := s.loginWindow()
	if len(s.failures) >= 4096 {
		for name, fw := range s.failures {
			if now.Sub(fw.since) >= window {
				delete(s.failures, name)
			}
		}
	}
	fw, ok := s.failures[username]
	if ok && now.Sub(fw.since) < window {
		fw.suppressed++
		return false, 0
	}
	if ok {
		suppressed = fw.suppressed
	}
	s.failures[username] = &failureWindow{since: now}
	return true, suppressed
}

func (s *Service) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func checkPassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return custody.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

type BootstrapCommand struct {
	AdminUsername string
	AdminPassword string
	DefaultTenant string
}

type BootstrapResult struct {
	Admin         *domain.User   `json:"admin,omitempty"`
	AdminCreated  bool           `json:"admin_created"`
	Tenant        *domain.Tenant `json:"tenant,omitempty"`
	TenantCreated bool           `json:"tenant_created"`
}

// Bootstrap creates the first superadmin when no user exists yet and makes
// sure the default tenant exists. Once any user exists the admin
// credentials are ignored.
func (s *Service) Bootstrap(ctx context.Context, cmd BootstrapCommand) (BootstrapResult, error) {
	username := strings.TrimSpace(cmd.AdminUsername)
	if username == "" {
		username = DefaultAdminName
	}
	tenantName := strings.TrimSpace(cmd.DefaultTenant)
	if tenantName == "" {
		tenantName = DefaultTenantName
	}

	var res BootstrapResult
	err := s.Store.Transact(ctx, func(tx repo.Set) error {
		n, err := tx.Users().Count(ctx)
		if err != nil {
			return err
		}
		now := application.Now(s.Clock)
		if n == 0 {
			if err := checkPassword(cmd.AdminPassword); err != nil {
				return err
			}
			hash, err := domain.HashPassword(cmd.AdminPassword)
			if err != nil {
				return err
			}
			admin := &domain.User{
				Username:     username,
				PasswordHash: hash,
				Role:         domain.RoleSuperAdmin,
				Active:       true,
				CreatedAt:    now,
			}
			if _, err := tx.Users().CreateIfAbsent(ctx, admin); err != nil {
				return err
			}
			if _, err := s.Audit.Append(ctx, tx, appaudit.Entry{
				UserID:  &admin.ID,
				Type:    audit.EventBootstrapAdmin,
				Payload: map[string]any{"username": username},
			}); err != nil {
				return err
			}
			res.Admin, res.AdminCreated = admin, true
		}

		t, created, err := tx.Tenants().CreateIfAbsent(ctx, tenantName, now)
		if err != nil {
			return err
		}
		if created {
			var by *int64
			if res.Admin != nil {
				by = &res.Admin.ID
			}
			if _, err := s.Audit.Append(ctx, tx, appaudit.Entry{
				UserID:  by,
				Type:    audit.EventTenantCreated,
				Payload: map[string]any{"tenant_id": t.ID, "name": t.Name},
			}); err != nil {
				return err
			}
		}
		res.Tenant, res.TenantCreated = &t, created
		return nil
	})
	if err != nil {
		return BootstrapResult{}, err
	}
	if res.AdminCreated {
		s.log().Warn("bootstrap superadmin created; rotate its password", "username", res.Admin.Username)
	}
	return res, nil
}

// Authenticate checks credentials against active users. Unknown users and
// wrong passwords fail the same way and take about the same time. It runs
// on every API request, so the login event and last_login_at are written at
// most once per user per login window.
func (s *Service) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	u, err := s.Store.Users().GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, custody.ErrNotFound) {
		return domain.User{}, err
	}

	ok := false
	if u != nil {
		ok = domain.VerifyPassword(password, u.PasswordHash)
	} else {
		domain.VerifyPassword(password, s.dummy())
	}
	if ok && !u.Active {
		ok = false
	}
	if ok && u.TenantID != nil && u.Role != domain.RoleSuperAdmin {
		t, err := s.Store.Tenants().Get(ctx, *u.TenantID)
		if err != nil && !errors.Is(err, custody.ErrNotFound) {
			return domain.User{}, err
		}
		ok = t != nil && t.Active
	}

	now := application.Now(s.Clock)
	if !ok {
		s.log().Info("login failed", "username", username)
		record, suppressed := s.noteFailure(username, now)
		if !record {
			return domain.User{}, errInvalidCredentials
		}
		err := s.Store.Transact(ctx, func(tx repo.Set) error {
			_, err := s.Audit.Append(ctx, tx, appaudit.Entry{
				Type:    audit.EventLoginFailed,
				Payload: map[string]any{"username": username, "suppressed": suppressed},
			})
			return err
		})
		if err != nil {
			return domain.User{}, err
		}
		return domain.User{}, errInvalidCredentials
	}

	if u.LastLoginAt != nil && now.Sub(*u.LastLoginAt) < s.loginWindow() {
		return *u, nil
	}
	err = s.Store.Transact(ctx, func(tx repo.Set) error {
		if err := tx.Users().TouchLogin(ctx, u.ID, now); err != nil {
			return err
		}
		_, err := s.Audit.Append(ctx, tx, appaudit.Entry{
			TenantID: u.TenantID,
			UserID:   &u.ID,
			Type:     audit.EventLogin,
			Payload:  map[string]any{"username": u.Username},
		})
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	u.LastLoginAt = &now
	return *u, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = domain.HashPassword("not-a-real-password")
	})
	return s.dummyHash
}

// ResolveTenant finds a tenant by numeric id or by name.
func (s *Service) ResolveTenant(ctx context.Context, ref string) (*domain.Tenant, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, custody.Invalid("no active tenant selected")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.Store.Tenants().Get(ctx, id)
	}
	return s.Store.Tenants().GetByName(ctx, ref)
}

// OpenSession binds actor to tenant ref. Inactive tenants are closed to
// everyone but superadmins.
func (s *Service) OpenSession(ctx context.Context, actor domain.Actor, ref string) (domain.Session, error) {
	t, err := s.ResolveTenant(ctx, ref)
	if err != nil {
		return domain.Session{}, err
	}
	if !t.Active && actor.Role != domain.RoleSuperAdmin {
		return domain.Session{}, custody.Denied("tenant " + t.Name + " is inactive")
	}
	return domain.NewSession(actor, t.ID)
}

// CreateTenant inserts a tenant unless the name exists; an existing tenant
// is returned with created false.
func (s *Service) CreateTenant(ctx context.Context, actor domain.Actor, name string) (domain.Tenant, bool, error) {
	if err := actor.Require(domain.ActionManageTenants); err != nil {
		return domain.Tenant{}, false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Tenant{}, false, custody.Invalid("tenant name required")
	}
	var (
		t       domain.Tenant
		created bool
	)
	err := s.Store.Transact(ctx, func(tx repo.Set) error {
		var err error
		t, created, err = tx.Tenants().CreateIfAbsent(ctx, name, application.Now(s.Clock))
		if err != nil || !created {
			return err
		}
		return s.Audit.Global(ctx, tx, actor, audit.EventTenantCreated, map[string]any{"tenant_id": t.ID, "name": t.Name})
	})
	return t, created, err
}

func (s *Service) SetTenantActive(ctx context.Context, actor domain.Actor, id int64, active bool) error {
	if err := actor.Require(domain.ActionManageTenants); err != nil {
		return err
	}
	event := audit.EventTenantDeactivated
	if active {
		event = audit.EventTenantActivated
	}
	return s.Store.Transact(ctx, func(tx repo.Set) error {
		if err := tx.Tenants().SetActive(ctx, id, active); err != nil {
			return err
		}
		return s.Audit.Global(ctx, tx, actor, event, map[string]any{"tenant_id": id})
	})
}

// ListTenants returns every tenant to tenant managers and cross-tenant
// readers, and only the home tenant to everyone else.
func (s *Service) ListTenants(ctx context.Context, actor domain.Actor) ([]domain.Tenant, error) {
	if actor.Can(domain.ActionManageTenants) || actor.Can(domain.ActionCrossTenant) {
		return s.Store.Tenants().List(ctx)
	}
	if actor.HomeTenant == 0 {
		return []domain.Tenant{}, nil
	}
	t, err := s.Store.Tenants().Get(ctx, actor.HomeTenant)
	if err != nil {
		return nil, err
	}
	return []domain.Tenant{*t}, nil
}

type CreateUserCommand struct {
	Username string      `json:"username" validate:"required,max=128"`
	Password string      `json:"password" validate:"required"`
	Role     domain.Role `json:"role" validate:"required"`
	TenantID *int64      `json:"tenant_id,omitempty"`
}

// tenantAdminRoles are the roles a tenant admin may hand out.
var tenantAdminRoles = map[domain.Role]bool{
	domain.RoleTenantAdmin: true,
	domain.RoleAnalyst:     true,
	domain.RoleViewer:      true,
}

// CreateUser adds an account. Tenant admins are confined to their own
// tenant and to non-privileged roles.
func (s *Service) CreateUser(ctx context.Context, actor domain.Actor, cmd CreateUserCommand) (domain.User, error) {
	if err := actor.Require(domain.ActionManageUsers); err != nil {
		return domain.User{}, err
	}
	username := strings.TrimSpace(cmd.Username)
	if username == "" {
		return domain.User{}, custody.Invalid("username required")
	}
	if !cmd.Role.Valid() {
		return domain.User{}, custody.Invalid("unknown role %q", cmd.Role)
	}
	if err := checkPassword(cmd.Password); err != nil {
		return domain.User{}, err
	}

	tenantID := cmd.TenantID
	if actor.Role != domain.RoleSuperAdmin {
		if !tenantAdminRoles[cmd.Role] {
			return domain.User{}, custody.Denied("assign role " + string(cmd.Role))
		}
		if actor.HomeTenant == 0 {
			return domain.User{}, custody.Invalid("no active tenant selected")
		}
		if tenantID != nil && *tenantID != actor.HomeTenant {
			return domain.User{}, custody.Denied("create users outside the caller's tenant")
		}
		home := actor.HomeTenant
		tenantID = &home
	}
	if tenantID != nil && *tenantID == 0 {
		tenantID = nil
	}

	hash, err := domain.HashPassword(cmd.Password)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		TenantID:     tenantID,
		Username:     username,
		PasswordHash: hash,
		Role:         cmd.Role,
		Active:       true,
		CreatedAt:    application.Now(s.Clock),
	}
	err = s.Store.Transact(ctx, func(tx repo.Set) error {
		if tenantID != nil {
			if _, err := tx.Tenants().Get(ctx, *tenantID); err != nil {
				return err
			}
		}
		created, err := tx.Users().CreateIfAbsent(ctx, &u)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("username %q: %w", username, custody.ErrDuplicate)
		}
		_, err = s.Audit.Append(ctx, tx, appaudit.Entry{
			TenantID: tenantID,
			UserID:   nonZero(actor.UserID),
			Type:     audit.EventUserCreated,
			Payload:  map[string]any{"username": u.Username, "role": string(u.Role), "user_id": u.ID},
		})
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ListUsers returns all users for superadmins and the home tenant's users
// for tenant admins.
func (s *Service) ListUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if err := actor.Require(domain.ActionManageUsers); err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleSuperAdmin {
		return s.Store.Users().List(ctx, nil)
	}
	home := actor.HomeTenant
	return s.Store.Users().List(ctx, &home)
}

func nonZero(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
