// Package store persists simulation event logs with gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/cyberlab-sim/internal/engine"
)

var ErrUnknownDriver = errors.New("store: unknown driver")

// Event is one persisted session log line.
type Event struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Lobby       string    `gorm:"size:16;not null;index:idx_events_lobby_at" json:"lobby"`
	At          time.Time `gorm:"not null;index:idx_events_lobby_at" json:"at"`
	Type        string    `gorm:"size:32;not null" json:"type"`
	Description string    `gorm:"not null" json:"description"`
	Participant string    `json:"participant,omitempty"`
}

func (Event) TableName() string { return "simulation_events" }

type Store struct {
	db *gorm.DB
}

// Open connects with driver "postgres" or "sqlite" and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer keeps sqlite from returning SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("store: access sql interface: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an existing connection.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, lobby string, entries []engine.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]Event, len(entries))
	for i, e := range entries {
		rows[i] = Event{
			Lobby:       lobby,
			At:          e.At.UTC(),
			Type:        e.Type,
			Description: e.Description,
			Participant: e.Participant,
		}
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// List returns up to limit events for lobby, oldest first. limit <= 0 means all.
func (s *Store) List(ctx context.Context, lobby string, limit int) ([]Event, error) {
	var events []Event
	q := s.db.WithContext(ctx).
		Where("lobby = ?", lobby).
		Order("at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
