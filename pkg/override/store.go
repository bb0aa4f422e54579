package override

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store provides persistence for override records. Methods that take a
// *gorm.DB run against it so callers can compose them in one transaction.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Models returns the tables owned by this package, for migration.
func Models() []any {
	return []any{&Record{}}
}

// AutoMigrate creates or updates the admin_overrides table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("auto-migrate admin_overrides: %w", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx)
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, tx *gorm.DB, rec *Record) error {
	if err := s.conn(ctx, tx).Create(rec).Error; err != nil {
		return fmt.Errorf("create override: %w", err)
	}
	return nil
}

// Get retrieves a record by id. Returns nil, nil if no record exists.
func (s *Store) Get(ctx context.Context, tx *gorm.DB, id string) (*Record, error) {
	var rec Record
	err := s.conn(ctx, tx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get override: %w", err)
	}
	return &rec, nil
}

// errStale is returned by guarded writes that matched no row.
var errStale = errors.New("override changed concurrently")

// UpdateGuarded writes every column of rec, but only if the stored row
// still has the given status and version. It returns errStale when
// another writer got there first.
func (s *Store) UpdateGuarded(ctx context.Context, tx *gorm.DB, rec *Record, status Status, version int) error {
	result := s.conn(ctx, tx).Model(&Record{}).
		Where("id = ? AND status = ? AND version = ?", rec.ID, status, version).
		Select("*").Omit("id", "created_at").
		Updates(rec)
	if result.Error != nil {
		return fmt.Errorf("update override: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errStale
	}
	return nil
}

// DeleteGuarded removes a record if it still has the given status and version.
func (s *Store) DeleteGuarded(ctx context.Context, tx *gorm.DB, id string, status Status, version int) error {
	result := s.conn(ctx, tx).
		Where("id = ? AND status = ? AND version = ?", id, status, version).
		Delete(&Record{})
	if result.Error != nil {
		return fmt.Errorf("delete override: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errStale
	}
	return nil
}

// ListActiveForTarget returns ACTIVE records on one target.
func (s *Store) ListActiveForTarget(ctx context.Context, target TargetRef) ([]Record, error) {
	var records []Record
	err := s.conn(ctx, nil).
		Where("status = ? AND target_type = ? AND target_id = ?", StatusActive, target.Type, target.ID).
		Order("requested_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list active overrides for target: %w", err)
	}
	return records, nil
}

// ListExpiredActive returns up to limit ACTIVE record ids whose
// effective_until is before now, oldest first.
func (s *Store) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	q := s.conn(ctx, nil).Model(&Record{}).
		Where("status = ? AND effective_until IS NOT NULL AND effective_until < ?", StatusActive, now.UTC()).
		Order("effective_until ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list expired overrides: %w", err)
	}
	return ids, nil
}
