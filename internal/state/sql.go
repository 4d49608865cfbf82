package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// entryModel maps to the "state_entries" table. One row per saved name.
type entryModel struct {
	SessionID string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"primaryKey;size:255"`
	Position  int    `gorm:"not null"`
	ValueJSON string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (entryModel) TableName() string { return "state_entries" }

// SQLStore persists snapshots through GORM. Any dialector works; OpenSQLite
// wires the pure Go SQLite driver.
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSQLStore opens dialector and migrates the state table.
func NewSQLStore(dialector gorm.Dialector, slogger *slog.Logger) (*SQLStore, error) {
	if slogger == nil {
		slogger = slog.New(slog.DiscardHandler)
	}

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if err := db.AutoMigrate(&sessionModel{}, &entryModel{}); err != nil {
		return nil, fmt.Errorf("migrating state database: %w", err)
	}
	return &SQLStore{db: db, logger: slogger}, nil
}

// OpenSQLite opens (or creates) a SQLite state database at path.
func OpenSQLite(path string, slogger *slog.Logger) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	s, err := NewSQLStore(sqlite.Open(dsn), slogger)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sqlite state store opened", slog.String("path", path))
	return s, nil
}

// Load reads the snapshot saved for sessionID.
func (s *SQLStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	var rows []entryModel
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if len(rows) == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&sessionModel{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
	}

	snap := &Snapshot{SessionID: sessionID, Values: sandbox.Bindings{}}
	for _, row := range rows {
		v, err := decodeValue([]byte(row.ValueJSON))
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", row.Name, err)
		}
		snap.Values = snap.Values.Set(row.Name, v)
		if row.UpdatedAt.After(snap.UpdatedAt) {
			snap.UpdatedAt = row.UpdatedAt
		}
	}
	return snap, nil
}

// Save upserts every value of snap and drops names no longer present.
func (s *SQLStore) Save(ctx context.Context, snap *Snapshot) error {
	now := time.Now().UTC()
	rows := make([]entryModel, 0, len(snap.Values))
	names := make([]string, 0, len(snap.Values))
	for i, kv := range snap.Values {
		data, err := encodeValue(kv.Value)
		if err != nil {
			return fmt.Errorf("saving %q: %w", kv.Name, err)
		}
		rows = append(rows, entryModel{
			SessionID: snap.SessionID,
			Name:      kv.Name,
			Position:  i,
			ValueJSON: data,
			UpdatedAt: now,
		})
		names = append(names, kv.Name)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&sessionModel{SessionID: snap.SessionID, CreatedAt: now}).Error; err != nil {
			return err
		}

		stale := tx.Where("session_id = ?", snap.SessionID)
		if len(names) > 0 {
			stale = stale.Where("name NOT IN ?", names)
		}
		if err := stale.Delete(&entryModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "value_json", "updated_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("saving session %s: %w", snap.SessionID, err)
	}
	snap.UpdatedAt = now
	return nil
}

// Delete removes everything saved for sessionID.
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&entryModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("session_id = ?", sessionID).Delete(&sessionModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
	if errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sessionModel maps to the "state_sessions" table so sessions with an empty
// store still load.
type sessionModel struct {
	SessionID string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

func (sessionModel) TableName() string { return "state_sessions" }

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Warn(fmt.Sprintf(format, args...))
}
