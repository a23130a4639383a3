package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andrewreder/toolfi/go-api/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("record not found")

type SQLiteStorage struct {
	db *gorm.DB
}

type Config struct {
	DatabasePath string
	Debug        bool
}

func NewSQLiteStorage(cfg Config) (*SQLiteStorage, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	database, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := database.AutoMigrate(&models.LedgerEvent{}, &models.ToolCall{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &SQLiteStorage{db: database}, nil
}

// CreateLedgerEvent journals ev. Replaying an already journaled sequence
// number is a no-op.
func (s *SQLiteStorage) CreateLedgerEvent(ctx context.Context, ev *models.LedgerEvent) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "seq"}}, DoNothing: true}).
		Create(ev).Error
}

func (s *SQLiteStorage) GetLedgerEvents(ctx context.Context, limit, offset int) ([]models.LedgerEvent, int64, error) {
	var events []models.LedgerEvent
	var total int64

	if err := s.db.WithContext(ctx).Model(&models.LedgerEvent{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := s.db.WithContext(ctx).Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&events).Error
	return events, total, err
}

// DeleteAllLedgerEvents empties the journal, e.g. when a fresh simulated
// ledger starts numbering events from one again.
func (s *SQLiteStorage) DeleteAllLedgerEvents(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&models.LedgerEvent{}).Error
}

func (s *SQLiteStorage) CreateToolCall(ctx context.Context, call *models.ToolCall) error {
	return s.db.WithContext(ctx).Create(call).Error
}

func (s *SQLiteStorage) GetToolCall(ctx context.Context, id string) (*models.ToolCall, error) {
	var call models.ToolCall
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&call).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("tool call %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &call, nil
}

func (s *SQLiteStorage) GetToolCalls(ctx context.Context, filter CallFilter, limit, offset int) ([]models.ToolCall, int64, error) {
	var calls []models.ToolCall
	var total int64

	scoped := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.ToolCall{})
		if filter.Caller != "" {
			q = q.Where("LOWER(caller) = ?", strings.ToLower(filter.Caller))
		}
		if filter.ToolID != 0 {
			q = q.Where("tool_id = ?", filter.ToolID)
		}
		return q
	}

	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := scoped().Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&calls).Error
	return calls, total, err
}

func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
