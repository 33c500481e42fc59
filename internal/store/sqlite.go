package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Snapshot is the single-row table backing the SQLite persister.
type Snapshot struct {
	Name      string    `gorm:"primaryKey"`
	Data      []byte    `gorm:"type:blob"`
	UpdatedAt time.Time
}

// SQLite keeps the snapshot in a SQLite file through GORM.
type SQLite struct {
	db  *gorm.DB
	raw *sql.DB
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite dir: %w", err)
	}

	raw, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	raw.SetMaxOpenConns(1)
	raw.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: raw}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &SQLite{db: db, raw: raw}, nil
}

func (s *SQLite) Load(ctx context.Context) ([]byte, error) {
	var snap Snapshot
	err := s.db.WithContext(ctx).First(&snap, "name = ?", SnapshotKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return snap.Data, nil
}

func (s *SQLite) Save(ctx context.Context, data []byte) error {
	snap := Snapshot{Name: SnapshotKey, Data: data, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.raw.Close()
}
