package search

import (
	"strings"
	"time"
)

// Entry is the denormalized, optionally excerpt-redacted projection of an
// inspection used for lookup.
type Entry struct {
	TenantID          int64     `json:"tenant_id"`
	InspectionID      int64     `json:"inspection_id"`
	ArtifactVersionID *int64    `json:"artifact_version_id,omitempty"`
	Filename          string    `json:"filename"`
	FileExt           string    `json:"file_ext"`
	SafeExcerpt       string    `json:"safe_excerpt"`
	CharCount         int       `json:"char_count"`
	WordCount         int       `json:"word_count"`
	PatternsTotal     int       `json:"patterns_total"`
	Categories        []string  `json:"categories"`
	RiskLevel         string    `json:"risk_level,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Query filters entries. Text matches filename or excerpt as a
// case-insensitive substring, folded with Fold on both sides so non-ASCII
// letters match on every database. Risk is an exact match when set.
type Query struct {
	Text  string `json:"q,omitempty"`
	Risk  string `json:"risk,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Fold is the case folding applied to indexed text and to query text.
func Fold(s string) string { return strings.ToLower(s) }
