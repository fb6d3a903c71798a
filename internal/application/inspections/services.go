package inspections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bryanwahyu/evidence-custody/internal/application"
	appartifacts "github.com/bryanwahyu/evidence-custody/internal/application/artifacts"
	appaudit "github.com/bryanwahyu/evidence-custody/internal/application/audit"
	appsearch "github.com/bryanwahyu/evidence-custody/internal/application/search"
	"github.com/bryanwahyu/evidence-custody/internal/domain/artifacts"
	"github.com/bryanwahyu/evidence-custody/internal/domain/audit"
	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	domain "github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/objects"
	"github.com/bryanwahyu/evidence-custody/internal/domain/repo"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
	"github.com/bryanwahyu/evidence-custody/internal/infra/metrics"
)

// DefaultManualName names pasted text when the caller gives no name.
const DefaultManualName = "manual_input.txt"

// Options are the per-deployment toggles of the inspection workflow.
type Options struct {
	AutoSaveEvidence bool
	IndexEnabled     bool
	StoreExcerpt     bool
}

// Service records inspections and their evidence, and runs the
// inspect-file / inspect-text workflow on top of the registry, the
// analyzer and the search index.
type Service struct {
	Store     repo.UnitOfWork
	Objects   objects.Store
	Artifacts *appartifacts.Service
	Search    *appsearch.Service
	Analyzer  domain.Analyzer
	Renderer  domain.Renderer
	Extractor domain.TextExtractor
	Audit     *appaudit.Recorder
	Clock     application.Clock
	Metrics   *metrics.Metrics
	Log       *slog.Logger
	Options   Options
}

func (s *Service) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

//
// ==== RECORD ====
//

// IndexRequest asks Record to project the inspection into the search index
// within the same transaction.
type IndexRequest struct {
	Text         string
	StoreExcerpt bool
}

type RecordCommand struct {
	ArtifactVersionID *int64
	RunType           domain.RunType
	Filename          string
	Ruleset           string
	Findings          domain.Findings
	StartedAt         time.Time
	FinishedAt        time.Time
	Index             *IndexRequest
}

// Record persists one analysis run verbatim. Findings that carry an error
// are stored like any other; the error is data.
func (s *Service) Record(ctx context.Context, sess tenancy.Session, cmd RecordCommand) (domain.Inspection, error) {
	if err := sess.Require(tenancy.ActionInspect); err != nil {
		return domain.Inspection{}, err
	}
	switch {
	case !cmd.RunType.Valid():
		return domain.Inspection{}, custody.Invalid("unknown run type %q", cmd.RunType)
	case cmd.RunType == domain.RunManual && cmd.ArtifactVersionID != nil:
		return domain.Inspection{}, custody.Invalid("manual runs have no artifact version")
	case cmd.RunType == domain.RunFile && cmd.ArtifactVersionID == nil:
		return domain.Inspection{}, custody.Invalid("file runs need an artifact version")
	}
	if cmd.StartedAt.IsZero() {
		cmd.StartedAt = application.Now(s.Clock)
	}
	if cmd.FinishedAt.IsZero() {
		cmd.FinishedAt = cmd.StartedAt
	}
	if cmd.FinishedAt.Before(cmd.StartedAt) {
		return domain.Inspection{}, custody.Invalid("inspection finished before it started")
	}
	if cmd.Ruleset == "" && s.Analyzer != nil {
		cmd.Ruleset = s.Analyzer.Name()
	}
	enc, err := cmd.Findings.Encode()
	if err != nil {
		return domain.Inspection{}, err
	}

	var in domain.Inspection
	err = s.Store.Transact(ctx, func(tx repo.Set) error {
		filename := cmd.Filename
		if cmd.ArtifactVersionID != nil {
			v, err := tx.Artifacts().GetVersion(ctx, sess.Scope, *cmd.ArtifactVersionID)
			if err != nil {
				return err
			}
			if filename == "" {
				filename = v.OriginalFilename
			}
		}
		if filename == "" {
			filename = cmd.Findings.Filename
		}

		in = domain.Inspection{
			ArtifactVersionID: cmd.ArtifactVersionID,
			RunType:           cmd.RunType,
			Filename:          filename,
			Ruleset:           cmd.Ruleset,
			StartedAt:         cmd.StartedAt.UTC(),
			FinishedAt:        cmd.FinishedAt.UTC(),
			CUIDetected:       cmd.Findings.CUIDetected,
			RiskLevel:         cmd.Findings.RiskLevel,
			PatternsJSON:      enc.Patterns,
			CategoriesJSON:    enc.Categories,
			SummaryJSON:       enc.Summary,
			Error:             cmd.Findings.Error,
		}
		if err := tx.Inspections().Insert(ctx, sess.Scope, &in); err != nil {
			return fmt.Errorf("recording inspection: %w", err)
		}

		if cmd.Index != nil && s.Search != nil {
			if _, err := s.Search.Project(ctx, tx, sess, appsearch.ProjectCommand{
				InspectionID:      in.ID,
				ArtifactVersionID: in.ArtifactVersionID,
				Filename:          filename,
				Text:              cmd.Index.Text,
				Findings:          cmd.Findings,
				StoreExcerpt:      cmd.Index.StoreExcerpt,
			}); err != nil {
				return err
			}
		}

		payload := map[string]any{
			"inspection_id": in.ID,
			"filename":      filename,
			"risk":          nullable(string(in.RiskLevel)),
			"run_type":      string(in.RunType),
		}
		if in.ArtifactVersionID != nil {
			payload["artifact_version_id"] = *in.ArtifactVersionID
		}
		if in.Error != "" {
			payload["error"] = in.Error
		}
		return s.Audit.Session(ctx, tx, sess, audit.EventInspectionRun, payload)
	})
	if err != nil {
		return domain.Inspection{}, err
	}
	s.Metrics.InspectionRecorded(string(in.RunType), string(in.RiskLevel))
	return in, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

//
// ==== EVIDENCE ====
//

type AttachCommand struct {
	InspectionID int64
	Kind         string
	Filename     string
	Data         []byte
}

// Attach stores derived bytes and links them to an inspection.
func (s *Service) Attach(ctx context.Context, sess tenancy.Session, cmd AttachCommand) (domain.EvidenceFile, error) {
	if err := sess.Require(tenancy.ActionInspect); err != nil {
		return domain.EvidenceFile{}, err
	}
	kind := strings.TrimSpace(cmd.Kind)
	name := strings.TrimSpace(cmd.Filename)
	if kind == "" || name == "" {
		return domain.EvidenceFile{}, custody.Invalid("evidence kind and filename are required")
	}
	if _, err := s.Store.Inspections().Get(ctx, sess.Scope, cmd.InspectionID); err != nil {
		return domain.EvidenceFile{}, err
	}
	if cmd.Data == nil {
		cmd.Data = []byte{}
	}
	obj, err := s.Objects.Write(ctx, cmd.Data)
	if err != nil {
		return domain.EvidenceFile{}, fmt.Errorf("storing evidence %s: %w", name, err)
	}

	ev := domain.EvidenceFile{
		InspectionID: cmd.InspectionID,
		Kind:         kind,
		Filename:     name,
		ContentHash:  obj.Hash,
		ObjectPath:   obj.Path,
		SizeBytes:    obj.Size,
		CreatedAt:    application.Now(s.Clock),
	}
	err = s.Store.Transact(ctx, func(tx repo.Set) error {
		if err := tx.Evidence().Insert(ctx, sess.Scope, &ev); err != nil {
			return fmt.Errorf("recording evidence %s: %w", name, err)
		}
		return s.Audit.Session(ctx, tx, sess, audit.EventEvidenceAttached, map[string]any{
			"inspection_id": cmd.InspectionID,
			"evidence_id":   ev.ID,
			"kind":          kind,
			"filename":      name,
			"sha256":        obj.Hash,
			"size_bytes":    obj.Size,
		})
	})
	if err != nil {
		return domain.EvidenceFile{}, err
	}
	s.Metrics.EvidenceAttachedKind(kind)
	return ev, nil
}

//
// ==== WORKFLOW ====
//

// Outcome is the result of one inspect-file or inspect-text run. Warnings
// list evidence or analyzer problems that did not abort the run.
type Outcome struct {
	Inspection     domain.Inspection     `json:"inspection"`
	Findings       domain.Findings       `json:"findings"`
	Version        *artifacts.Version    `json:"version,omitempty"`
	VersionCreated bool                  `json:"version_created"`
	Evidence       []domain.EvidenceFile `json:"evidence"`
	Warnings       []string              `json:"warnings,omitempty"`
}

type InspectFileCommand struct {
	Filename   string
	Data       []byte
	Mime       string
	UploadedBy string
}

// InspectFile analyzes an upload, versions it, records the run, saves
// derived evidence and indexes it.
func (s *Service) InspectFile(ctx context.Context, sess tenancy.Session, cmd InspectFileCommand) (Outcome, error) {
	if err := sess.Require(tenancy.ActionInspect); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(cmd.Filename) == "" {
		return Outcome{}, custody.Invalid("filename is required")
	}
	var out Outcome

	started := application.Now(s.Clock)
	findings, err := s.analyze(ctx, cmd.Filename, func() (domain.Findings, error) {
		return s.Analyzer.InspectBytes(ctx, cmd.Filename, cmd.Data)
	})
	if err != nil {
		return Outcome{}, err
	}
	finished := application.Now(s.Clock)
	if findings.Error != "" {
		out.Warnings = append(out.Warnings, "analyzer: "+findings.Error)
	}

	up, err := s.Artifacts.Upsert(ctx, sess, appartifacts.UpsertCommand{
		Filename:   cmd.Filename,
		Data:       cmd.Data,
		Mime:       cmd.Mime,
		UploadedBy: cmd.UploadedBy,
	})
	if err != nil {
		return Outcome{}, err
	}
	versionID := up.Version.ID

	var index *IndexRequest
	if s.Options.IndexEnabled {
		index = &IndexRequest{Text: s.extract(cmd.Filename, cmd.Data), StoreExcerpt: s.Options.StoreExcerpt}
	}
	in, err := s.Record(ctx, sess, RecordCommand{
		ArtifactVersionID: &versionID,
		RunType:           domain.RunFile,
		Filename:          cmd.Filename,
		Findings:          findings,
		StartedAt:         started,
		FinishedAt:        finished,
		Index:             index,
	})
	if err != nil {
		return Outcome{}, err
	}

	out.Inspection = in
	out.Findings = findings
	out.Version = &up.Version
	out.VersionCreated = up.Created
	s.saveEvidence(ctx, sess, &out)
	return out, nil
}

type InspectTextCommand struct {
	Name string
	Text string
}

// InspectText analyzes pasted text. Manual runs are not versioned.
func (s *Service) InspectText(ctx context.Context, sess tenancy.Session, cmd InspectTextCommand) (Outcome, error) {
	if err := sess.Require(tenancy.ActionInspect); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return Outcome{}, custody.Invalid("nothing to inspect")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = DefaultManualName
	}
	var out Outcome

	started := application.Now(s.Clock)
	findings, err := s.analyze(ctx, name, func() (domain.Findings, error) {
		return s.Analyzer.InspectText(ctx, name, cmd.Text)
	})
	if err != nil {
		return Outcome{}, err
	}
	finished := application.Now(s.Clock)
	if findings.Error != "" {
		out.Warnings = append(out.Warnings, "analyzer: "+findings.Error)
	}

	var index *IndexRequest
	if s.Options.IndexEnabled {
		index = &IndexRequest{Text: cmd.Text, StoreExcerpt: s.Options.StoreExcerpt}
	}
	in, err := s.Record(ctx, sess, RecordCommand{
		RunType:    domain.RunManual,
		Filename:   name,
		Findings:   findings,
		StartedAt:  started,
		FinishedAt: finished,
		Index:      index,
	})
	if err != nil {
		return Outcome{}, err
	}

	out.Inspection = in
	out.Findings = findings
	s.saveEvidence(ctx, sess, &out)
	return out, nil
}

// analyze runs the analyzer. Analyzer failures become failed findings;
// only cancellation of ctx aborts.
func (s *Service) analyze(ctx context.Context, name string, run func() (domain.Findings, error)) (domain.Findings, error) {
	if s.Analyzer == nil {
		return domain.Findings{}, fmt.Errorf("%w: no analyzer configured", custody.ErrAnalyzer)
	}
	f, err := run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return domain.Findings{}, err
		}
		s.log().Warn("analyzer failed", "filename", name, "err", err)
		return domain.Failed(name, err), nil
	}
	if f.Filename == "" {
		f.Filename = name
	}
	return f, nil
}

func (s *Service) extract(name string, data []byte) string {
	if s.Extractor == nil {
		return strings.ToValidUTF8(string(data), "")
	}
	return s.Extractor.ExtractText(name, data)
}

// saveEvidence attaches the findings export and the rendered report.
// Failures are logged and reported as warnings; the inspection stays.
func (s *Service) saveEvidence(ctx context.Context, sess tenancy.Session, out *Outcome) {
	if !s.Options.AutoSaveEvidence {
		return
	}
	id := out.Inspection.ID

	fail := func(kind string, err error) {
		s.Metrics.EvidenceFailed(kind)
		s.log().Warn("evidence not attached",
			"tenant_id", sess.TenantID(), "inspection_id", id, "kind", kind, "err", err)
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", kind, err))
	}

	if data, err := json.MarshalIndent(out.Findings, "", "  "); err != nil {
		fail(domain.KindFindingsJSON, err)
	} else if ev, err := s.Attach(ctx, sess, AttachCommand{
		InspectionID: id,
		Kind:         domain.KindFindingsJSON,
		Filename:     fmt.Sprintf("findings_%d.json", id),
		Data:         data,
	}); err != nil {
		fail(domain.KindFindingsJSON, err)
	} else {
		out.Evidence = append(out.Evidence, ev)
	}

	if s.Renderer == nil {
		return
	}
	kind := s.Renderer.Kind()
	report, err := s.Renderer.Render(ctx, out.Findings)
	if err != nil {
		fail(kind, err)
		return
	}
	ev, err := s.Attach(ctx, sess, AttachCommand{
		InspectionID: id,
		Kind:         kind,
		Filename:     fmt.Sprintf("cui_report_%d%s", id, s.Renderer.Extension()),
		Data:         report,
	})
	if err != nil {
		fail(kind, err)
		return
	}
	out.Evidence = append(out.Evidence, ev)
}

//
// ==== READS ====
//

func (s *Service) Get(ctx context.Context, sess tenancy.Session, id int64) (*domain.Inspection, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return nil, err
	}
	return s.Store.Inspections().Get(ctx, sess.Scope, id)
}

// Latest lists the most recent inspections, newest first.
func (s *Service) Latest(ctx context.Context, sess tenancy.Session, limit int) ([]domain.Inspection, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return nil, err
	}
	return s.Store.Inspections().Latest(ctx, sess.Scope, limit)
}

// Evidence lists the evidence attached to an inspection.
func (s *Service) Evidence(ctx context.Context, sess tenancy.Session, inspectionID int64) ([]domain.EvidenceFile, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.Store.Inspections().Get(ctx, sess.Scope, inspectionID); err != nil {
		return nil, err
	}
	return s.Store.Evidence().ListByInspection(ctx, sess.Scope, inspectionID)
}

// ReadEvidence returns an evidence file's bytes after checking them against
// the recorded hash.
func (s *Service) ReadEvidence(ctx context.Context, sess tenancy.Session, evidenceID int64) ([]byte, *domain.EvidenceFile, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return nil, nil, err
	}
	ev, err := s.Store.Evidence().Get(ctx, sess.Scope, evidenceID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Objects.Read(ctx, ev.ObjectPath)
	if err != nil {
		return nil, nil, err
	}
	if actual := objects.Address(data); actual != ev.ContentHash {
		return nil, nil, fmt.Errorf("evidence %d: expected %s, got %s: %w",
			ev.ID, ev.ContentHash, actual, custody.ErrIntegrityMismatch)
	}
	return data, ev, nil
}
