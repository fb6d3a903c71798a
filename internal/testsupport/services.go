package testsupport

import (
	appartifacts "github.com/bryanwahyu/evidence-custody/internal/application/artifacts"
	"github.com/bryanwahyu/evidence-custody/internal/application/dataflows"
	"github.com/bryanwahyu/evidence-custody/internal/application/inspections"
	appsearch "github.com/bryanwahyu/evidence-custody/internal/application/search"
	"github.com/bryanwahyu/evidence-custody/internal/infra/analyzer/patterns"
	"github.com/bryanwahyu/evidence-custody/internal/infra/logging"
	"github.com/bryanwahyu/evidence-custody/internal/infra/report"
)

// Artifacts returns a registry over the fixture stores.
func (f *Fixture) Artifacts() *appartifacts.Service {
	return &appartifacts.Service{
		Store:   f.Store,
		Objects: f.Objects,
		Audit:   f.Audit,
		Clock:   f.Clock,
		Metrics: f.Metrics,
		Log:     logging.Discard(),
	}
}

// Search returns an index service with excerpts enabled.
func (f *Fixture) Search() *appsearch.Service {
	return &appsearch.Service{Store: f.Store, Audit: f.Audit, Clock: f.Clock, Metrics: f.Metrics}
}

// Inspector returns the full inspection workflow: pattern analyzer, HTML
// reports, evidence saving and indexing all on.
func (f *Fixture) Inspector() *inspections.Service {
	return &inspections.Service{
		Store:     f.Store,
		Objects:   f.Objects,
		Artifacts: f.Artifacts(),
		Search:    f.Search(),
		Analyzer:  patterns.New(),
		Renderer:  report.HTML{},
		Extractor: patterns.Extractor{},
		Audit:     f.Audit,
		Clock:     f.Clock,
		Metrics:   f.Metrics,
		Log:       logging.Discard(),
		Options:   inspections.Options{AutoSaveEvidence: true, IndexEnabled: true, StoreExcerpt: true},
	}
}

// DataFlows returns the data flow map service.
func (f *Fixture) DataFlows() *dataflows.Service {
	return &dataflows.Service{Store: f.Store, Audit: f.Audit, Clock: f.Clock, Log: logging.Discard()}
}
