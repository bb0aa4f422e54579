package database

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

const migrationLockName = "override-schema"

// Locker serializes schema migrations across replicas sharing one database.
type Locker interface {
	WithLock(ctx context.Context, fn func() error) error
}

// NewLocker returns a postgres advisory lock, or a lock-row fallback for
// other dialects.
func NewLocker(db *gorm.DB) Locker {
	if db == nil {
		return noopLocker{}
	}
	if db.Dialector.Name() == TypePostgres {
		return &advisoryLocker{db: db, key: int64(crc32.ChecksumIEEE([]byte(migrationLockName)))}
	}
	_ = db.AutoMigrate(&schemaLockRecord{})
	return &rowLocker{db: db, retries: 30, wait: time.Second, staleAfter: 5 * time.Minute}
}

// Migrate runs AutoMigrate for models while holding the schema lock.
func Migrate(ctx context.Context, db *gorm.DB, models ...any) error {
	return NewLocker(db).WithLock(ctx, func() error {
		for _, m := range models {
			if err := db.WithContext(ctx).AutoMigrate(m); err != nil {
				return fmt.Errorf("auto-migrate %T: %w", m, err)
			}
		}
		return nil
	})
}

type noopLocker struct{}

func (noopLocker) WithLock(_ context.Context, fn func() error) error { return fn() }

type advisoryLocker struct {
	db  *gorm.DB
	key int64
}

func (l *advisoryLocker) WithLock(ctx context.Context, fn func() error) error {
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.key).Error; err != nil {
		return fmt.Errorf("acquire schema advisory lock: %w", err)
	}
	defer func() {
		_ = l.db.Exec("SELECT pg_advisory_unlock(?)", l.key).Error
	}()
	return fn()
}

type schemaLockRecord struct {
	Name     string    `gorm:"primaryKey;column:name"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (schemaLockRecord) TableName() string { return "schema_lock" }

// rowLocker holds the lock by owning a row in schema_lock. Rows older than
// staleAfter are treated as left behind by a crashed holder.
type rowLocker struct {
	db         *gorm.DB
	retries    int
	wait       time.Duration
	staleAfter time.Duration
}

func (l *rowLocker) WithLock(ctx context.Context, fn func() error) error {
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}

	var lastErr error
	for attempt := 0; attempt < l.retries; attempt++ {
		l.db.WithContext(ctx).
			Where("name = ? AND locked_at < ?", migrationLockName, time.Now().Add(-l.staleAfter)).
			Delete(&schemaLockRecord{})

		row := schemaLockRecord{Name: migrationLockName, LockedAt: time.Now(), LockedBy: host}
		if lastErr = l.db.WithContext(ctx).Create(&row).Error; lastErr == nil {
			defer l.db.Where("name = ?", migrationLockName).Delete(&schemaLockRecord{})
			return fn()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.wait):
		}
	}
	return fmt.Errorf("acquire schema lock after %d attempts: %w", l.retries, lastErr)
}
