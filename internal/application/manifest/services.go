package manifest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/artifacts"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	"github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/metrics"
)

const (
	DefaultRecent = 25
	MaxRecent     = 2000

	ManifestName = "manifest.csv"
	HashesName   = "hashes.sha256.txt"
)

// Columns is the manifest header.
var Columns = []string{
	"inspection_id",
	"inspection_created_at",
	"filename",
	"file_sha256",
	"ruleset",
	"risk_level",
	"risk_score",
	"artifact_id",
	"artifact_name",
	"artifact_sha256",
	"artifact_created_at",
	"artifact_bytes",
}

// zip entries carry a fixed timestamp so rebuilding a bundle from the same
// rows only differs in compression output.
var bundleEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Request struct {
	Selection inspections.Selection `json:"selection"`
	// IncludeObjects adds the raw bytes of every listed object to the zip.
	IncludeObjects bool `json:"include_objects"`
	// OmitSources drops the source artifact lines from the hash list.
	OmitSources bool `json:"omit_sources"`
}

// Package is one export. Manifest and Hashes are deterministic for the same
// rows; Bundle holds both plus the optional objects.
type Package struct {
	BundleID    string  `json:"bundle_id"`
	Inspections int     `json:"inspections"`
	Objects     int     `json:"objects"`
	Manifest    []byte  `json:"-"`
	Hashes      []byte  `json:"-"`
	Bundle      []byte  `json:"-"`
	Entries     []Entry `json:"entries"`
}

// Entry is one line of the hash list.
type Entry struct {
	Hash string `json:"sha256"`
	Path string `json:"path"`

	objectPath string
}

type Service struct {
	Store   repo.UnitOfWork
	Objects objects.Store
	Audit   *appaudit.Recorder
	Clock   application.Clock
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

func (s *Service) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// normalize applies selection defaults and bounds.
func normalize(sel inspections.Selection) (inspections.Selection, error) {
	if sel.Mode == "" {
		sel.Mode = inspections.SelectMostRecent
	}
	switch sel.Mode {
	case inspections.SelectMostRecent:
		if sel.Limit <= 0 {
			sel.Limit = DefaultRecent
		}
		if sel.Limit > MaxRecent {
			return sel, custody.Invalid("at most %d inspections per export", MaxRecent)
		}
	case inspections.SelectDateRange:
		if sel.From.IsZero() || sel.To.IsZero() || sel.To.Before(sel.From) {
			return sel, custody.Invalid("date range needs from <= to")
		}
	case inspections.SelectIDs:
		if len(sel.IDs) == 0 {
			return sel, custody.Invalid("no inspection ids given")
		}
		if len(sel.IDs) > MaxRecent {
			return sel, custody.Invalid("at most %d inspections per export", MaxRecent)
		}
	default:
		return sel, custody.Invalid("unknown selection mode %q", sel.Mode)
	}
	return sel, nil
}

// Export builds the chain-of-custody package for the selected inspections.
func (s *Service) Export(ctx context.Context, sess tenancy.Session, req Request) (Package, error) {
	if err := sess.Require(tenancy.ActionExport); err != nil {
		return Package{}, err
	}
	sel, err := normalize(req.Selection)
	if err != nil {
		return Package{}, err
	}

	insps, err := s.Store.Inspections().Select(ctx, sess.Scope, sel)
	if err != nil {
		return Package{}, err
	}
	if len(insps) == 0 {
		return Package{}, custody.NotFound("inspections", "for selection")
	}

	ids := make([]int64, 0, len(insps))
	var versionIDs []int64
	for _, in := range insps {
		ids = append(ids, in.ID)
		if in.ArtifactVersionID != nil {
			versionIDs = append(versionIDs, *in.ArtifactVersionID)
		}
	}
	evidence, err := s.Store.Evidence().ListByInspections(ctx, sess.Scope, ids)
	if err != nil {
		return Package{}, err
	}
	versions := map[int64]artifacts.Version{}
	if len(versionIDs) > 0 {
		vs, err := s.Store.Artifacts().VersionsByIDs(ctx, sess.Scope, versionIDs)
		if err != nil {
			return Package{}, err
		}
		for _, v := range vs {
			versions[v.ID] = v
		}
	}
	byInspection := map[int64][]inspections.EvidenceFile{}
	for _, e := range evidence {
		byInspection[e.InspectionID] = append(byInspection[e.InspectionID], e)
	}

	manifest, err := buildManifest(insps, versions, byInspection)
	if err != nil {
		return Package{}, err
	}
	entries := hashEntries(insps, versions, byInspection, !req.OmitSources)
	hashes := buildHashes(entries)

	pkg := Package{
		BundleID:    uuid.NewString(),
		Inspections: len(insps),
		Manifest:    manifest,
		Hashes:      hashes,
		Entries:     entries,
	}
	pkg.Bundle, pkg.Objects, err = s.bundle(ctx, manifest, hashes, entries, req.IncludeObjects)
	if err != nil {
		return Package{}, err
	}

	err = s.Store.Transact(ctx, func(tx repo.Set) error {
		return s.Audit.Session(ctx, tx, sess, audit.EventExportRun, map[string]any{
			"bundle_id":       pkg.BundleID,
			"mode":            string(sel.Mode),
			"inspections":     pkg.Inspections,
			"hashes":          len(entries),
			"include_objects": req.IncludeObjects,
		})
	})
	if err != nil {
		return Package{}, err
	}
	s.Metrics.ExportBuilt()
	s.log().Info("export built", "tenant_id", sess.TenantID(), "bundle_id", pkg.BundleID,
		"inspections", pkg.Inspections, "hashes", len(entries))
	return pkg, nil
}

func buildManifest(insps []inspections.Inspection, versions map[int64]artifacts.Version, byInspection map[int64][]inspections.EvidenceFile) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, in := range insps {
		sourceHash := ""
		if in.ArtifactVersionID != nil {
			sourceHash = versions[*in.ArtifactVersionID].ContentHash
		}
		head := []string{
			strconv.FormatInt(in.ID, 10),
			in.StartedAt.UTC().Format(timeFormat),
			in.Filename,
			sourceHash,
			in.Ruleset,
			string(in.RiskLevel),
			strconv.Itoa(in.RiskScore()),
		}
		files := byInspection[in.ID]
		if len(files) == 0 {
			if err := w.Write(append(head, "", "", "", "", "")); err != nil {
				return nil, err
			}
			continue
		}
		for _, e := range files {
			row := append(append([]string{}, head...),
				strconv.FormatInt(e.ID, 10),
				e.Filename,
				e.ContentHash,
				e.CreatedAt.UTC().Format(timeFormat),
				strconv.FormatInt(e.SizeBytes, 10),
			)
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// hashEntries lists every referenced object once, grouped per inspection:
// the source version first, then evidence in filename order. A hash seen
// earlier keeps its first path.
func hashEntries(insps []inspections.Inspection, versions map[int64]artifacts.Version, byInspection map[int64][]inspections.EvidenceFile, withSources bool) []Entry {
	seen := map[string]bool{}
	var out []Entry
	add := func(hash, path, objectPath string) {
		if hash == "" || seen[hash] {
			return
		}
		seen[hash] = true
		out = append(out, Entry{Hash: hash, Path: path, objectPath: objectPath})
	}
	for _, in := range insps {
		if withSources && in.ArtifactVersionID != nil {
			if v, ok := versions[*in.ArtifactVersionID]; ok {
				add(v.ContentHash, fmt.Sprintf("inspection_%d/source/%s", in.ID, baseName(v.OriginalFilename)), v.ObjectPath)
			}
		}
		for _, e := range byInspection[in.ID] {
			add(e.ContentHash, fmt.Sprintf("inspection_%d/%s", in.ID, baseName(e.Filename)), e.ObjectPath)
		}
	}
	return out
}

// baseName keeps archive paths inside their inspection folder.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}

// buildHashes renders entries in sha256sum format.
func buildHashes(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s  %s\n", e.Hash, e.Path)
	}
	return buf.Bytes()
}

func (s *Service) bundle(ctx context.Context, manifest, hashes []byte, entries []Entry, withObjects bool) ([]byte, int, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	put := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: bundleEpoch})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	if err := put(ManifestName, manifest); err != nil {
		return nil, 0, err
	}
	if err := put(HashesName, hashes); err != nil {
		return nil, 0, err
	}
	count := 0
	if withObjects {
		for _, e := range entries {
			data, err := s.Objects.Read(ctx, e.objectPath)
			if err != nil {
				return nil, 0, fmt.Errorf("bundle %s: %w", e.Path, err)
			}
			if got := objects.Address(data); got != e.Hash {
				return nil, 0, fmt.Errorf("bundle %s: expected %s, got %s: %w", e.Path, e.Hash, got, custody.ErrIntegrityMismatch)
			}
			if err := put(e.Path, data); err != nil {
				return nil, 0, err
			}
			count++
		}
	}
	if err := zw.Close(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), count, nil
}
