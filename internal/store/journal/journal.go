// Package journal keeps an append-only history of failure records for the status API.
// It is never read back into classifier state.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"faillog/internal/classifier"
	"faillog/internal/dispatch"
)

// FailureModel maps to the 'failure_journal' table.
type FailureModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	EventID    string         `gorm:"column:event_id;uniqueIndex"`
	Kind       string         `gorm:"column:kind;index"`
	DetectedAt int64          `gorm:"column:detected_at;index"`
	ServerName string         `gorm:"column:server_name"`
	Map        string         `gorm:"column:map"`
	Mode       string         `gorm:"column:mode"`
	Baseline   int            `gorm:"column:baseline"`
	After      int            `gorm:"column:after_count"`
	MaxPlayers int            `gorm:"column:max_players"`
	Uptime     int            `gorm:"column:uptime_seconds"`
	Line       string         `gorm:"column:line"`
	Details    datatypes.JSON `gorm:"column:details"`
}

func (FailureModel) TableName() string { return "failure_journal" }

// Entry 是对外返回的一条历史记录。
type Entry struct {
	EventID    string          `json:"event_id"`
	Kind       string          `json:"kind"`
	DetectedAt time.Time       `json:"detected_at"`
	ServerName string          `json:"server_name"`
	Map        string          `json:"map"`
	Mode       string          `json:"mode"`
	Baseline   int             `json:"baseline"`
	After      int             `json:"after"`
	MaxPlayers int             `json:"max_players"`
	Uptime     int             `json:"uptime_seconds"`
	Line       string          `json:"line"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// Query filters Recent.
type Query struct {
	Kind  classifier.Kind
	Limit int
}

type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
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
	return NewFromDB(db)
}

func NewFromDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	if err := db.AutoMigrate(&FailureModel{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "journal" }

// Publish stores r; a record with a known event id is ignored.
func (s *Store) Publish(ctx context.Context, r dispatch.Record) error {
	details, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: encode record: %w", err)
	}
	row := FailureModel{
		EventID:    r.Event.ID,
		Kind:       string(r.Event.Kind),
		DetectedAt: r.Event.DetectedAt.UnixMilli(),
		ServerName: r.ServerName,
		Map:        r.Map,
		Mode:       r.Mode,
		Baseline:   r.Event.PriorPlayerCount,
		After:      r.Event.AfterPlayerCount,
		MaxPlayers: r.Event.MaxPlayers,
		Uptime:     r.Event.UptimeSeconds,
		Line:       r.Line,
		Details:    datatypes.JSON(details),
	}
	if row.EventID == "" {
		return s.db.WithContext(ctx).Create(&row).Error
	}
	return s.db.WithContext(ctx).Where(FailureModel{EventID: row.EventID}).FirstOrCreate(&row).Error
}

// Recent returns the newest entries first.
func (s *Store) Recent(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []FailureModel
	tx := s.db.WithContext(ctx).Order("detected_at DESC, id DESC").Limit(limit)
	if q.Kind != "" {
		tx = tx.Where("kind = ?", string(q.Kind))
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, Entry{
			EventID:    row.EventID,
			Kind:       row.Kind,
			DetectedAt: time.UnixMilli(row.DetectedAt).UTC(),
			ServerName: row.ServerName,
			Map:        row.Map,
			Mode:       row.Mode,
			Baseline:   row.Baseline,
			After:      row.After,
			MaxPlayers: row.MaxPlayers,
			Uptime:     row.Uptime,
			Line:       row.Line,
			Details:    json.RawMessage(row.Details),
		})
	}
	return out, nil
}

// Count returns the number of stored entries per kind.
func (s *Store) Count(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	err := s.db.WithContext(ctx).Model(&FailureModel{}).
		Select("kind, COUNT(*) AS total").Group("kind").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Total
	}
	return out, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
