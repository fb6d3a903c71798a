// Package dataflows models the per-tenant maps of how controlled data moves
// between systems.
package dataflows

import (
	"strings"
	"time"

	"github.com/bryanwahyu/evidence-custody/internal/domain/custody"
)

// Flow is one edge of a data flow map.
type Flow struct {
	Source      string `json:"source" validate:"required,max=200"`
	Destination string `json:"destination" validate:"required,max=200"`
	DataType    string `json:"data_type,omitempty" validate:"max=200"`
	CUIPresent  bool   `json:"cui_present"`
	Encryption  string `json:"encryption,omitempty" validate:"max=200"`
	CMMCLevel   string `json:"cmmc_level,omitempty" validate:"omitempty,oneof=L1 L2 L3"`
}

// Map is a saved, immutable set of flows.
type Map struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	Flows     []Flow    `json:"flows,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

const (
	DefaultName = "Data Flow Map"
	MaxFlows    = 500
)

// Validate normalizes the map name and checks the flow list.
func (m *Map) Validate() error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		m.Name = DefaultName
	}
	if len(m.Flows) == 0 {
		return custody.Invalid("no flows to save")
	}
	if len(m.Flows) > MaxFlows {
		return custody.Invalid("at most %d flows per map", MaxFlows)
	}
	for i := range m.Flows {
		f := &m.Flows[i]
		f.Source = strings.TrimSpace(f.Source)
		f.Destination = strings.TrimSpace(f.Destination)
		if f.Source == "" || f.Destination == "" {
			return custody.Invalid("flow %d: source and destination required", i+1)
		}
	}
	return nil
}

// Mermaid renders the flows as a left-to-right Mermaid flowchart. Node ids
// are the system names with spaces replaced by underscores.
func (m Map) Mermaid() string {
	var b strings.Builder
	b.WriteString("flowchart LR")
	for _, f := range m.Flows {
		b.WriteString("\n")
		b.WriteString(nodeID(f.Source))
		b.WriteString(" --> ")
		b.WriteString(nodeID(f.Destination))
	}
	return b.String()
}

func nodeID(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}
