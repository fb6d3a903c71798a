package inspections

import (
	"context"
	"fmt"
	"sort"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
	domain "github.com/bryanwahyu/evidence-custody/internal/domain/inspections"
	"github.com/bryanwahyu/evidence-custody/internal/domain/tenancy"
)

// Evidence comparison statuses.
const (
	Match     = "MATCH"
	Different = "DIFFERENT"
	LeftOnly  = "LEFT_ONLY"
	RightOnly = "RIGHT_ONLY"
)

// SourceKey is the comparison key of the inspected source version.
const SourceKey = "source"

type Side struct {
	ID           int64            `json:"id"`
	Filename     string           `json:"filename"`
	RiskLevel    domain.RiskLevel `json:"risk_level,omitempty"`
	RiskScore    int              `json:"risk_score"`
	CUIDetected  *bool            `json:"cui_detected,omitempty"`
	SourceSHA256 string           `json:"source_sha256,omitempty"`
}

type PatternDelta struct {
	Pattern string `json:"pattern"`
	Left    int    `json:"left"`
	Right   int    `json:"right"`
	Delta   int    `json:"delta"`
}

// EvidenceMatch compares one evidence kind (or the source) across sides.
type EvidenceMatch struct {
	Key         string `json:"key"`
	LeftSHA256  string `json:"left_sha256,omitempty"`
	RightSHA256 string `json:"right_sha256,omitempty"`
	Status      string `json:"status"`
}

type Comparison struct {
	Left                Side            `json:"left"`
	Right               Side            `json:"right"`
	RiskLevelChanged    bool            `json:"risk_level_changed"`
	RiskScoreDelta      int             `json:"risk_score_delta"`
	DetectedChanged     bool            `json:"detected_changed"`
	Patterns            []PatternDelta  `json:"patterns"`
	CategoriesOnlyLeft  []string        `json:"categories_only_left"`
	CategoriesOnlyRight []string        `json:"categories_only_right"`
	Evidence            []EvidenceMatch `json:"evidence"`
}

// Compare diffs two inspections of the session's tenant.
func (s *Service) Compare(ctx context.Context, sess tenancy.Session, leftID, rightID int64) (*Comparison, error) {
	if err := sess.Require(tenancy.ActionRead); err != nil {
		return nil, err
	}
	if leftID == rightID {
		return nil, custody.Invalid("select two different inspections")
	}
	left, leftHashes, err := s.loadSide(ctx, sess, leftID)
	if err != nil {
		return nil, err
	}
	right, rightHashes, err := s.loadSide(ctx, sess, rightID)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{
		Left:             side(left, leftHashes[SourceKey]),
		Right:            side(right, rightHashes[SourceKey]),
		RiskLevelChanged: left.RiskLevel != right.RiskLevel,
	}
	cmp.RiskScoreDelta = cmp.Right.RiskScore - cmp.Left.RiskScore
	cmp.DetectedChanged = boolValue(left.CUIDetected) != boolValue(right.CUIDetected) ||
		(left.CUIDetected == nil) != (right.CUIDetected == nil)

	lp, rp := left.Patterns(), right.Patterns()
	for _, name := range unionKeys(lp, rp) {
		cmp.Patterns = append(cmp.Patterns, PatternDelta{
			Pattern: name, Left: lp[name], Right: rp[name], Delta: rp[name] - lp[name],
		})
	}
	cmp.CategoriesOnlyLeft, cmp.CategoriesOnlyRight = difference(left.Categories(), right.Categories())

	for _, key := range unionKeys(leftHashes, rightHashes) {
		l, r := leftHashes[key], rightHashes[key]
		m := EvidenceMatch{Key: key, LeftSHA256: l, RightSHA256: r}
		switch {
		case l == "":
			m.Status = RightOnly
		case r == "":
			m.Status = LeftOnly
		case l == r:
			m.Status = Match
		default:
			m.Status = Different
		}
		cmp.Evidence = append(cmp.Evidence, m)
	}
	return cmp, nil
}

// loadSide returns the inspection and its hashes keyed by evidence kind.
// A second file of the same kind is keyed "<kind>#2" and so on.
func (s *Service) loadSide(ctx context.Context, sess tenancy.Session, id int64) (*domain.Inspection, map[string]string, error) {
	in, err := s.Store.Inspections().Get(ctx, sess.Scope, id)
	if err != nil {
		return nil, nil, err
	}
	hashes := map[string]string{}
	if in.ArtifactVersionID != nil {
		v, err := s.Store.Artifacts().GetVersion(ctx, sess.Scope, *in.ArtifactVersionID)
		if err != nil {
			return nil, nil, err
		}
		hashes[SourceKey] = v.ContentHash
	}
	evs, err := s.Store.Evidence().ListByInspection(ctx, sess.Scope, id)
	if err != nil {
		return nil, nil, err
	}
	seen := map[string]int{}
	for _, ev := range evs {
		seen[ev.Kind]++
		key := ev.Kind
		if n := seen[ev.Kind]; n > 1 {
			key = fmt.Sprintf("%s#%d", ev.Kind, n)
		}
		hashes[key] = ev.ContentHash
	}
	return in, hashes, nil
}

func side(in *domain.Inspection, sourceHash string) Side {
	return Side{
		ID:           in.ID,
		Filename:     in.Filename,
		RiskLevel:    in.RiskLevel,
		RiskScore:    in.RiskScore(),
		CUIDetected:  in.CUIDetected,
		SourceSHA256: sourceHash,
	}
}

func boolValue(b *bool) bool { return b != nil && *b }

func unionKeys[V any](a, b map[string]V) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		set[k] = struct{}{}
	}
	for k := range b {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func difference(left, right []string) (onlyLeft, onlyRight []string) {
	inLeft := make(map[string]bool, len(left))
	inRight := make(map[string]bool, len(right))
	for _, c := range left {
		inLeft[c] = true
	}
	for _, c := range right {
		inRight[c] = true
	}
	onlyLeft, onlyRight = []string{}, []string{}
	for _, c := range left {
		if !inRight[c] {
			onlyLeft = append(onlyLeft, c)
		}
	}
	for _, c := range right {
		if !inLeft[c] {
			onlyRight = append(onlyRight, c)
		}
	}
	sort.Strings(onlyLeft)
	sort.Strings(onlyRight)
	return onlyLeft, onlyRight
}
