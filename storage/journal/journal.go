// Package journal keeps a queryable history of pool events in a SQL
// database.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lendcore/core/events"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultLimit = 100
	MaxLimit     = 1000
)

// Record is one persisted event.
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Type       string    `gorm:"size:64;index"`
	Reserve    string    `gorm:"size:42;index"`
	Account    string    `gorm:"size:42;index"`
	Attributes string    `gorm:"type:text"`
	RecordedAt time.Time `gorm:"index"`
}

// TableName pins the table name.
func (Record) TableName() string { return "lending_events" }

// Attrs decodes the stored attributes.
func (r Record) Attrs() (map[string]string, error) {
	out := map[string]string{}
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, fmt.Errorf("decode event %d attributes: %w", r.ID, err)
	}
	return out, nil
}

// Open connects to the database behind driver and dsn.
func Open(driver, dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("journal dsn required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return db, nil
}

// Journal appends every emitted event to the lending_events table.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// New migrates the schema and returns a journal writing to db.
func New(db *gorm.DB, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, logger: logger, now: time.Now}, nil
}

// Emit implements events.Emitter. Write failures are logged; the pool call
// that produced the event has already committed.
func (j *Journal) Emit(e events.Event) {
	if e == nil {
		return
	}
	if err := j.Append(context.Background(), e); err != nil {
		j.logger.Warn("journal append failed", "type", e.EventType(), "error", err)
	}
}

// Append stores e.
func (j *Journal) Append(ctx context.Context, e events.Event) error {
	rec := Record{Type: e.EventType(), RecordedAt: j.now().UTC()}
	if rendered, ok := events.Render(e); ok {
		attrs, err := json.Marshal(rendered.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes: %w", err)
		}
		rec.Attributes = string(attrs)
		rec.Reserve = rendered.Reserve()
		rec.Account = rendered.Account()
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

// Query filters the history. Empty fields match everything.
type Query struct {
	Type    string
	Reserve string
	Account string
	AfterID uint64
	Limit   int
}

// List returns matching records in insertion order.
func (j *Journal) List(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	tx := j.db.WithContext(ctx).Model(&Record{}).Where("id > ?", q.AfterID)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.Reserve != "" {
		tx = tx.Where("reserve = ?", q.Reserve)
	}
	if q.Account != "" {
		tx = tx.Where("account = ?", q.Account)
	}
	var out []Record
	if err := tx.Order("id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
