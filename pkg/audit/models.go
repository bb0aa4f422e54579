// Package audit is the append-only audit trail for admin override
// transitions. Every committed transition writes exactly one EventRecord,
// inside the same transaction as the state change.
package audit

import (
	"time"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/database"
)

// Entry is what callers hand to Store.Record.
type Entry struct {
	Timestamp     time.Time
	Actor         string
	ActionType    string
	TargetType    string
	TargetID      string
	Before        map[string]any
	After         map[string]any
	Metadata      map[string]any
	CorrelationID string
}

// EventRecord is an immutable audit log row.
type EventRecord struct {
	ID            string           `gorm:"primaryKey;column:id;type:varchar(36)"`
	CorrelationID string           `gorm:"column:correlation_id;index"`
	Actor         string           `gorm:"column:actor;index:idx_audit_actor_time,priority:1;not null"`
	ActionType    string           `gorm:"column:action_type;index:idx_audit_action_time,priority:1;not null"`
	TargetType    string           `gorm:"column:target_type;index:idx_audit_target_time,priority:1;not null"`
	TargetID      string           `gorm:"column:target_id;index:idx_audit_target_time,priority:2;not null"`
	Before        database.JSONAny `gorm:"column:before_value;type:text"`
	After         database.JSONAny `gorm:"column:after_value;type:text"`
	EventMetadata database.JSONAny `gorm:"column:metadata;type:text"`
	CreatedAt     time.Time        `gorm:"column:created_at;index:idx_audit_actor_time,priority:2;index:idx_audit_action_time,priority:2;index:idx_audit_target_time,priority:3;not null"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }

// Event is the API-facing audit event.
type Event struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Actor         string         `json:"actor"`
	ActionType    string         `json:"actionType"`
	TargetType    string         `json:"targetType"`
	TargetID      string         `json:"targetId"`
	Before        map[string]any `json:"before,omitempty"`
	After         map[string]any `json:"after,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"createdAt"`
}

// EventList is a paginated list of audit events.
type EventList struct {
	Events        []Event `json:"events"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
	TotalSize     int     `json:"totalSize"`
}

// ToEvent converts a stored record to its API form.
func (rec EventRecord) ToEvent() Event {
	return Event{
		ID:            rec.ID,
		CorrelationID: rec.CorrelationID,
		Actor:         rec.Actor,
		ActionType:    rec.ActionType,
		TargetType:    rec.TargetType,
		TargetID:      rec.TargetID,
		Before:        map[string]any(rec.Before),
		After:         map[string]any(rec.After),
		Metadata:      map[string]any(rec.EventMetadata),
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
