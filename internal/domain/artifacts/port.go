package artifacts

import (
	"context"
	"time"

	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

// Repository persists artifacts and their version chains. Every method is
// tenant-scoped.
type Repository interface {
	// FindOrCreate returns the artifact for logicalName, creating it when
	// absent. Inside a transaction the returned row is locked until commit.
	FindOrCreate(ctx context.Context, scope tenancy.Scope, logicalName string, now time.Time) (Artifact, error)
	Get(ctx context.Context, scope tenancy.Scope, id int64) (*Artifact, error)
	List(ctx context.Context, scope tenancy.Scope) ([]Artifact, error)

	// LatestVersion returns the highest version of an artifact, or nil.
	LatestVersion(ctx context.Context, scope tenancy.Scope, artifactID int64) (*Version, error)
	// InsertVersion stores v and sets v.ID.
	InsertVersion(ctx context.Context, scope tenancy.Scope, v *Version) error
	GetVersion(ctx context.Context, scope tenancy.Scope, id int64) (*Version, error)
	// VersionsByIDs returns the versions among ids that belong to the scope.
	VersionsByIDs(ctx context.Context, scope tenancy.Scope, ids []int64) ([]Version, error)
	// Versions lists one artifact's chain in version order.
	Versions(ctx context.Context, scope tenancy.Scope, artifactID int64) ([]Version, error)
	// AllVersions lists every version in the tenant ordered by id.
	AllVersions(ctx context.Context, scope tenancy.Scope) ([]Version, error)
}
