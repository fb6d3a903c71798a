package audit

import "time"

// EventType enum
type EventType string

const (
	EventUpload            EventType = "upload"
	EventVersionCreated    EventType = "version_created"
	EventInspectionRun     EventType = "inspection_run"
	EventEvidenceAttached  EventType = "evidence_attached"
	EventVerifyRun         EventType = "verify_run"
	EventExportRun         EventType = "export_run"
	EventSearch            EventType = "search"
	EventTenantCreated     EventType = "tenant_created"
	EventTenantActivated   EventType = "tenant_activated"
	EventTenantDeactivated EventType = "tenant_deactivated"
	EventUserCreated       EventType = "user_created"
	EventBootstrapAdmin    EventType = "bootstrap_admin_created"
	EventLogin             EventType = "login"
	EventLoginFailed       EventType = "login_failed"
	EventDataFlowSaved     EventType = "dataflow_saved"
	EventDataFlowLoaded    EventType = "dataflow_loaded"
)

// Event is an append-only audit record. TenantID is nil for global actions
// such as tenant management; UserID is nil for unauthenticated actions.
type Event struct {
	ID        int64          `json:"id"`
	TenantID  *int64         `json:"tenant_id,omitempty"`
	UserID    *int64         `json:"user_id,omitempty"`
	EventType EventType      `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
