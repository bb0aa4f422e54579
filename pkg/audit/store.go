package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/database"
)

// ErrInvalidPageToken is wrapped by ListAll when pageToken cannot be decoded.
var ErrInvalidPageToken = errors.New("invalid page token")

// Store provides append-only operations for audit event records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Models returns the tables owned by this package, for migration.
func Models() []any {
	return []any{&EventRecord{}}
}

// AutoMigrate creates or updates the audit_events table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EventRecord{}); err != nil {
		return fmt.Errorf("auto-migrate audit_events: %w", err)
	}
	return nil
}

// Record appends one immutable event. When tx is non-nil the insert joins
// that transaction, so a failed insert rolls back the caller's change too.
func (s *Store) Record(ctx context.Context, tx *gorm.DB, e Entry) error {
	if e.Actor == "" || e.ActionType == "" || e.TargetType == "" || e.TargetID == "" {
		return fmt.Errorf("append audit event: actor, action type and target are required")
	}
	db := tx
	if db == nil {
		db = s.db
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := &EventRecord{
		ID:            uuid.New().String(),
		CorrelationID: e.CorrelationID,
		Actor:         e.Actor,
		ActionType:    e.ActionType,
		TargetType:    e.TargetType,
		TargetID:      e.TargetID,
		Before:        e.Before,
		After:         e.After,
		EventMetadata: e.Metadata,
		CreatedAt:     ts.UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListFilter narrows ListAll. Empty fields match everything.
type ListFilter struct {
	Actor      string
	ActionType string
	TargetType string
	TargetID   string
}

// GetByID returns a single event, or nil, nil if it does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*EventRecord, error) {
	var rec EventRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return &rec, nil
}

// ListByTarget returns paginated events for one target, newest first.
func (s *Store) ListByTarget(ctx context.Context, targetType, targetID string, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	return s.ListAll(ctx, ListFilter{TargetType: targetType, TargetID: targetID}, pageSize, pageToken)
}

// ListAll returns paginated events matching filter, ordered by created_at DESC.
// pageToken is the next-page token of the previous call.
func (s *Store) ListAll(ctx context.Context, filter ListFilter, pageSize int, pageToken string) ([]EventRecord, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&EventRecord{})
		if filter.Actor != "" {
			q = q.Where("actor = ?", filter.Actor)
		}
		if filter.ActionType != "" {
			q = q.Where("action_type = ?", filter.ActionType)
		}
		if filter.TargetType != "" {
			q = q.Where("target_type = ?", filter.TargetType)
		}
		if filter.TargetID != "" {
			q = q.Where("target_id = ?", filter.TargetID)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery().Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := buildQuery().Order("created_at DESC").Order("id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		cursor, err := database.ParseCursor(pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
		}
		query = cursor.After(query, "created_at")
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		last := records[pageSize-1]
		nextToken = database.Cursor{At: last.CreatedAt, ID: last.ID}.String()
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// DeleteOlderThan deletes events created before cutoff and returns the count.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
