package artifacts

import (
	"strings"
	"time"
)

// Artifact is a logical document, unique per (tenant, logical name).
type Artifact struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	LogicalName string    `json:"logical_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Version is one immutable upload of an artifact. Version numbers start at
// 1 and grow by one per distinct content.
type Version struct {
	ID               int64     `json:"id"`
	TenantID         int64     `json:"tenant_id"`
	ArtifactID       int64     `json:"artifact_id"`
	Version          int       `json:"version"`
	OriginalFilename string    `json:"original_filename"`
	ContentHash      string    `json:"content_hash"`
	ObjectPath       string    `json:"object_path"`
	SizeBytes        int64     `json:"size_bytes"`
	Mime             string    `json:"mime"`
	CreatedAt        time.Time `json:"created_at"`
	UploadedBy       string    `json:"uploaded_by"`
}

// DefaultLogicalName is used when a filename normalizes to nothing.
const DefaultLogicalName = "document"

// NormalizeLogicalName reduces an uploaded filename to the artifact key:
// base name only, whitespace runs collapsed to one space, trimmed, lower-cased.
func NormalizeLogicalName(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	name := strings.ToLower(strings.Join(strings.Fields(filename), " "))
	if name == "" {
		return DefaultLogicalName
	}
	return name
}
