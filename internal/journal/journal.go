// Package journal keeps a record of possession sessions in a SQL database.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/possession"
)

// SessionRecord is one possession session.
type SessionRecord struct {
	ID         uint           `json:"id" gorm:"primarykey"`
	SessionID  string         `json:"sessionId" gorm:"size:20;uniqueIndex"`
	EntityID   string         `json:"entityId" gorm:"size:64;index"`
	EntityName string         `json:"entityName" gorm:"size:127"`
	Kind       string         `json:"kind" gorm:"size:32"`
	SavedState datatypes.JSON `json:"savedState"`
	Offsets    datatypes.JSON `json:"offsets"`
	StartedAt  time.Time      `json:"startedAt" gorm:"index"`
	EndedAt    *time.Time     `json:"endedAt"`
	DurationMs int64          `json:"durationMs"`
	Forced     bool           `json:"forced"`
	Reason     string         `json:"reason" gorm:"size:255"`
	RestoreErr string         `json:"restoreError" gorm:"size:2000"`
}

func (SessionRecord) TableName() string {
	return "possession_sessions"
}

// Journal records lifecycle events.
type Journal interface {
	Record(ctx context.Context, ev possession.Event) error
	Sessions(ctx context.Context, limit int) ([]SessionRecord, error)
	Close() error
}

// Store is a Journal on a gorm database.
type Store struct {
	db      *gorm.DB
	offsets *offsets.Cache
}

// NewStore migrates the schema on db. cache may be nil.
func NewStore(db *gorm.DB, cache *offsets.Cache) (*Store, error) {
	if err := db.AutoMigrate(&SessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session table: %w", err)
	}
	return &Store{db: db, offsets: cache}, nil
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Record(ctx context.Context, ev possession.Event) error {
	switch ev.Type {
	case possession.EventStarted:
		return s.started(ctx, ev.Session)
	case possession.EventEnded:
		return s.ended(ctx, ev.Session, ev.Err)
	default:
		return fmt.Errorf("unknown event type %d", ev.Type)
	}
}

func (s *Store) started(ctx context.Context, info possession.Info) error {
	saved, err := json.Marshal(info.Saved)
	if err != nil {
		return err
	}
	rec := SessionRecord{
		SessionID:  info.ID,
		EntityID:   info.EntityID,
		EntityName: info.EntityName,
		Kind:       info.Kind.String(),
		SavedState: datatypes.JSON(saved),
		Offsets:    datatypes.JSON("null"),
		StartedAt:  info.Started.UTC(),
	}
	if s.offsets != nil {
		if o, err := s.offsets.Get(); err == nil {
			if b, err := json.Marshal(o); err == nil {
				rec.Offsets = datatypes.JSON(b)
			}
		}
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record session %s: %w", info.ID, err)
	}
	return nil
}

func (s *Store) ended(ctx context.Context, info possession.Info, restoreErr error) error {
	ended := info.Ended.UTC()
	updates := map[string]any{
		"ended_at":    &ended,
		"duration_ms": info.Duration().Milliseconds(),
		"forced":      info.Forced,
		"reason":      info.Reason,
		"restore_err": "",
	}
	if restoreErr != nil {
		updates["restore_err"] = restoreErr.Error()
	}

	res := s.db.WithContext(ctx).Model(&SessionRecord{}).
		Where("session_id = ?", info.ID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to close session %s: %w", info.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %s was never recorded", info.ID)
	}
	return nil
}

// Sessions returns the most recent sessions first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	var out []SessionRecord
	q := s.db.WithContext(ctx).Order("started_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(context.Context, possession.Event) error         { return nil }
func (Nop) Sessions(context.Context, int) ([]SessionRecord, error) { return nil, nil }
func (Nop) Close() error                                           { return nil }

// Observer adapts j to the possession lifecycle. Failures are logged.
func Observer(j Journal, logger *slog.Logger) possession.Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev possession.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := j.Record(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Failed to journal session event", "session", ev.Session.ID, "error", err)
		}
	}
}
