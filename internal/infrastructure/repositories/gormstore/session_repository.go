package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"
)

// sessionRecord is the database row for a collaboration session.
type sessionRecord struct {
	ID              string    `gorm:"primaryKey;size:64"`
	DocumentID      string    `gorm:"size:64;index"`
	UserID          string    `gorm:"size:64;index"`
	ConnectionID    string    `gorm:"size:64"`
	JoinedAt        time.Time
	LastActivity    time.Time
	IsActive        bool `gorm:"index"`
	OperationsCount int64
	LeftAt          *time.Time
}

func (sessionRecord) TableName() string {
	return "collaboration_sessions"
}

func toRecord(s *domain.CollaborationSession) *sessionRecord {
	return &sessionRecord{
		ID:              string(s.ID),
		DocumentID:      string(s.DocumentID),
		UserID:          string(s.UserID),
		ConnectionID:    string(s.ConnectionID),
		JoinedAt:        s.JoinedAt,
		LastActivity:    s.LastActivity,
		IsActive:        s.IsActive,
		OperationsCount: s.OperationsCount,
		LeftAt:          s.LeftAt,
	}
}

func toDomain(r *sessionRecord) *domain.CollaborationSession {
	return &domain.CollaborationSession{
		ID:              domain.SessionID(r.ID),
		DocumentID:      domain.DocumentID(r.DocumentID),
		UserID:          domain.UserID(r.UserID),
		ConnectionID:    domain.ConnectionID(r.ConnectionID),
		JoinedAt:        r.JoinedAt,
		LastActivity:    r.LastActivity,
		IsActive:        r.IsActive,
		OperationsCount: r.OperationsCount,
		LeftAt:          r.LeftAt,
	}
}

// InitDB opens the MySQL connection and migrates the session table.
func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sessions table: %w", err)
	}
	return db, nil
}

// GormSessionRepository persists collaboration sessions in MySQL.
type GormSessionRepository struct {
	db *gorm.DB
}

func NewGormSessionRepository(db *gorm.DB) ports.SessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(ctx context.Context, session *domain.CollaborationSession) error {
	if err := r.db.WithContext(ctx).Create(toRecord(session)).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *GormSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.CollaborationSession, error) {
	var record sessionRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", string(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return toDomain(&record), nil
}

func (r *GormSessionRepository) RecordActivity(ctx context.Context, id domain.SessionID, operations int64) error {
	result := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("id = ?", string(id)).
		Updates(map[string]interface{}{
			"operations_count": gorm.Expr("operations_count + ?", operations),
			"last_activity":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record activity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *GormSessionRepository) Close(ctx context.Context, id domain.SessionID) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("id = ? AND is_active = ?", string(id), true).
		Updates(map[string]interface{}{
			"is_active": false,
			"left_at":   &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to close session: %w", result.Error)
	}
	return nil
}

func (r *GormSessionRepository) ListActive(ctx context.Context) ([]*domain.CollaborationSession, error) {
	var records []sessionRecord
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("joined_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	sessions := make([]*domain.CollaborationSession, 0, len(records))
	for i := range records {
		sessions = append(sessions, toDomain(&records[i]))
	}
	return sessions, nil
}
