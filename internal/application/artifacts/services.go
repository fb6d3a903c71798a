package artifacts

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	domain "github.com/bryanwahyu/evidence-custody/internal/domain/artifacts"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/metrics"
)

const defaultMime = "application/octet-stream"

// Service is the artifact version registry. It is safe for concurrent use.
type Service struct {
	Store   repo.UnitOfWork
	Objects objects.Store
	Audit   *appaudit.Recorder
	Clock   application.Clock
	Metrics *metrics.Metrics
	Log     *slog.Logger

	locks application.KeyedMutex
}

func (s *Service) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// UpsertCommand uploads one document.
type UpsertCommand struct {
	Filename   string
	Data       []byte
	Mime       string
	// UploadedBy defaults to the session user when blank.
	UploadedBy string
}

// UpsertResult is the version the upload resolved to. Created is false
// when the content equals the latest version.
type UpsertResult struct {
	Artifact domain.Artifact `json:"artifact"`
	Version  domain.Version  `json:"version"`
	Created  bool            `json:"created"`
}

// Upsert stores the bytes and appends a version unless the latest version
// already has the same content.
func (s *Service) Upsert(ctx context.Context, sess tenancy.Session, cmd UpsertCommand) (UpsertResult, error) {
	if err := sess.Require(tenancy.ActionInspect); err != nil {
		return UpsertResult{}, err
	}
	if cmd.Data == nil {
		cmd.Data = []byte{}
	}
	mime := strings.TrimSpace(cmd.Mime)
	if mime == "" {
		mime = defaultMime
	}
	uploadedBy := strings.TrimSpace(cmd.UploadedBy)
	if uploadedBy == "" {
		uploadedBy = sess.Actor.Username
	}
	logical := domain.NormalizeLogicalName(cmd.Filename)

	// The object lands before the transaction; a rolled back upsert leaves
	// an unreferenced object, which is harmless.
	obj, err := s.Objects.Write(ctx, cmd.Data)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("storing upload: %w", err)
	}

	unlock := s.locks.Lock(strconv.FormatInt(sess.TenantID(), 10) + "\x00" + logical)
	defer unlock()

	var res UpsertResult
	err = s.Store.Transact(ctx, func(tx repo.Set) error {
		now := application.Now(s.Clock)
		art, err := tx.Artifacts().FindOrCreate(ctx, sess.Scope, logical, now)
		if err != nil {
			return fmt.Errorf("artifact %q: %w", logical, err)
		}
		latest, err := tx.Artifacts().LatestVersion(ctx, sess.Scope, art.ID)
		if err != nil {
			return err
		}

		res = UpsertResult{Artifact: art}
		if latest != nil && latest.ContentHash == obj.Hash {
			res.Version = *latest
		} else {
			next := 1
			if latest != nil {
				next = latest.Version + 1
			}
			v := domain.Version{
				ArtifactID:       art.ID,
				Version:          next,
				OriginalFilename: cmd.Filename,
				ContentHash:      obj.Hash,
				ObjectPath:       obj.Path,
				SizeBytes:        obj.Size,
				Mime:             mime,
				CreatedAt:        now,
				UploadedBy:       uploadedBy,
			}
			if err := tx.Artifacts().InsertVersion(ctx, sess.Scope, &v); err != nil {
				return fmt.Errorf("inserting version %d of %q: %w", next, logical, err)
			}
			res.Version = v
			res.Created = true
		}

		if err := s.Audit.Session(ctx, tx, sess, audit.EventUpload, map[string]any{
			"artifact_id":         art.ID,
			"artifact_version_id": res.Version.ID,
			"filename":            cmd.Filename,
			"sha256":              obj.Hash,
			"size_bytes":          obj.Size,
			"deduplicated":        !res.Created,
		}); err != nil {
			return err
		}
		if !res.Created {
			return nil
		}
		return s.Audit.Session(ctx, tx, sess, audit.EventVersionCreated, map[string]any{
			"artifact_id":         art.ID,
			"artifact_version_id": res.Version.ID,
			"logical_name":        logical,
			"version":             res.Version.Version,
			"sha256":              obj.Hash,
		})
	})
	if err != nil {
		return UpsertResult{}, err
	}
	if res.Created {
		s.Metrics.VersionCreated()
		s.log().Info("artifact version created",
			"tenant_id", sess.TenantID(), "artifact_id", res.Artifact.ID,
			"version", res.Version.Version, "sha256", res.Version.ContentHash)
	}
	return res, nil
}

// List returns the tenant's artifacts ordered by logical name.
func (s *Service) List(ctx context.Context, sess tenancy.Session) ([]domain.Artifact, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return nil, err
	}
	return s.Store.Artifacts().List(ctx, sess.Scope)
}

// Versions returns an artifact's chain in version order.
func (s *Service) Versions(ctx context.Context, sess tenancy.Session, artifactID int64) ([]domain.Version, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.Store.Artifacts().Get(ctx, sess.Scope, artifactID); err != nil {
		return nil, err
	}
	return s.Store.Artifacts().Versions(ctx, sess.Scope, artifactID)
}

func (s *Service) GetVersion(ctx context.Context, sess tenancy.Session, versionID int64) (*domain.Version, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return nil, err
	}
	return s.Store.Artifacts().GetVersion(ctx, sess.Scope, versionID)
}

// ReadVersion returns the stored bytes of a version after checking them
// against the recorded hash.
func (s *Service) ReadVersion(ctx context.Context, sess tenancy.Session, versionID int64) ([]byte, *domain.Version, error) {
	v, err := s.GetVersion(ctx, sess, versionID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Objects.Read(ctx, v.ObjectPath)
	if err != nil {
		return nil, nil, err
	}
	if actual := objects.Address(data); actual != v.ContentHash {
		return nil, nil, fmt.Errorf("artifact version %d: expected %s, got %s: %w",
			v.ID, v.ContentHash, actual, custody.ErrIntegrityMismatch)
	}
	return data, v, nil
}
