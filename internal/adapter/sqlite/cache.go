// Package sqlite provides a key/value cache with per-entry expiry, stored in
// SQLite through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is one cached value.
type Entry struct {
	Key       string    `gorm:"column:cache_key;primaryKey"`
	Value     []byte    `gorm:"column:value;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Entry) TableName() string { return "cache_entries" }

// Cache is a TTL key/value store. Expiry is evaluated against clock.
type Cache struct {
	db    *gorm.DB
	clock clockwork.Clock
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, clock clockwork.Clock) (*Cache, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("cache: enable WAL: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}
	return &Cache{db: db, clock: clock}, nil
}

// Get returns the value stored under key, reporting false when it is absent
// or expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e Entry
	err := c.db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", key, c.clock.Now().UTC()).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return e.Value, true, nil
}

// Set stores value under key for ttl, replacing any previous entry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := Entry{Key: key, Value: value, ExpiresAt: c.clock.Now().UTC().Add(ttl)}
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&e).Error
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.db.WithContext(ctx).Delete(&Entry{}, "cache_key = ?", key).Error; err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// Purge removes expired entries and returns how many were dropped.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	res := c.db.WithContext(ctx).Delete(&Entry{}, "expires_at <= ?", c.clock.Now().UTC())
	if res.Error != nil {
		return 0, fmt.Errorf("cache: purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close releases the underlying connection.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
