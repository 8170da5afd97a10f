package audit

import (
	"context"
	"time"

	id "caminomanager/pkg/domain"
)

// Action names an audited operation.
type Action string

const (
	ActionSignIn         Action = "sign_in"
	ActionSignInFailed   Action = "sign_in_failed"
	ActionSignOut        Action = "sign_out"
	ActionSessionRotated Action = "session_rotated"
	ActionEmailConfirmed Action = "email_confirmed"
	ActionUserInvited    Action = "user_invited"
	ActionRecordCreated  Action = "record_created"
	ActionRecordUpdated  Action = "record_updated"
	ActionRecordDeleted  Action = "record_deleted"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string      `json:"id"`
	Action    Action      `json:"action"`
	UserID    id.UserID   `json:"user_id"`
	Subject   string      `json:"subject,omitempty"`
	Entity    string      `json:"entity,omitempty"`
	RecordID  id.RecordID `json:"record_id"`
	IP        string      `json:"ip,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Store is the primary, synchronous audit log.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink receives a best-effort copy of every persisted event.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close()
}
