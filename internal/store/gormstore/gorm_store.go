// Package gormstore persists signals, executions, alerts and equity
// snapshots in SQLite via Gorm.
package gormstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	storemodel "riptide/internal/store/model"
)

type GormStore struct {
	db *gorm.DB
}

func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.SignalModel{},
		&storemodel.ExecutionModel{},
		&storemodel.AlertModel{},
		&storemodel.EquitySnapshotModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP
	// reads while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

func (s *GormStore) InsertSignal(ctx context.Context, rec *storemodel.SignalModel) error {
	if s == nil || s.db == nil || rec == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) InsertExecution(ctx context.Context, rec *storemodel.ExecutionModel) error {
	if s == nil || s.db == nil || rec == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) InsertAlert(ctx context.Context, rec *storemodel.AlertModel) error {
	if s == nil || s.db == nil || rec == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormStore) InsertEquitySnapshot(ctx context.Context, rec *storemodel.EquitySnapshotModel) error {
	if s == nil || s.db == nil || rec == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// Query filters list lookups. Zero fields match everything; Limit defaults
// to 100.
type Query struct {
	Symbol   string
	Strategy string
	Limit    int
	Offset   int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 100
	}
	return q.Limit
}

func (s *GormStore) ListSignals(ctx context.Context, q Query) ([]storemodel.SignalModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	tx := s.db.WithContext(ctx).Model(&storemodel.SignalModel{})
	if q.Symbol != "" {
		tx = tx.Where("symbol = ?", strings.ToUpper(q.Symbol))
	}
	if q.Strategy != "" {
		tx = tx.Where("strategy = ?", q.Strategy)
	}
	var out []storemodel.SignalModel
	err := tx.Order("ts DESC").Limit(q.limit()).Offset(q.Offset).Find(&out).Error
	return out, err
}

func (s *GormStore) ListExecutions(ctx context.Context, q Query) ([]storemodel.ExecutionModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	tx := s.db.WithContext(ctx).Model(&storemodel.ExecutionModel{})
	if q.Symbol != "" {
		tx = tx.Where("symbol = ?", strings.ToUpper(q.Symbol))
	}
	if q.Strategy != "" {
		tx = tx.Where("strategy = ?", q.Strategy)
	}
	var out []storemodel.ExecutionModel
	err := tx.Order("ts DESC").Limit(q.limit()).Offset(q.Offset).Find(&out).Error
	return out, err
}

func (s *GormStore) ListAlerts(ctx context.Context, q Query) ([]storemodel.AlertModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var out []storemodel.AlertModel
	err := s.db.WithContext(ctx).Model(&storemodel.AlertModel{}).
		Order("ts DESC").Limit(q.limit()).Offset(q.Offset).Find(&out).Error
	return out, err
}

func (s *GormStore) ListEquitySnapshots(ctx context.Context, limit int) ([]storemodel.EquitySnapshotModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 {
		limit = 500
	}
	var out []storemodel.EquitySnapshotModel
	err := s.db.WithContext(ctx).Model(&storemodel.EquitySnapshotModel{}).
		Order("ts ASC").Limit(limit).Find(&out).Error
	return out, err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
