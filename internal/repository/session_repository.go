package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	// RecordLogin persists the session, stamps the user's last login and
	// writes the audit entry in one transaction. If any part fails nothing
	// is recorded and the caller must discard the tokens it minted.
	RecordLogin(s *domain.Session, audit *domain.AuditLog, loginAt time.Time) error
	FindByToken(token string) (*domain.Session, error)
	ListByUserID(userID uuid.UUID) ([]domain.Session, error)
	DeleteByToken(token string) error
	DeleteByIDForUser(userID, sessionID uuid.UUID) (bool, error)
	DeleteByUserID(userID uuid.UUID) (int64, error)
	CleanupExpired() (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) RecordLogin(s *domain.Session, audit *domain.AuditLog, loginAt time.Time) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.User{}).
			Where("id = ?", s.UserID).
			Update("last_login", loginAt).Error; err != nil {
			return err
		}
		return tx.Create(audit).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "record_login", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "record_login", "success")
	return nil
}

func (r *GormSessionRepository) FindByToken(token string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("refresh_token = ?", token).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_by_token", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_by_token", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListByUserID(userID uuid.UUID) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("user_id = ? AND expires_at > ?", userID, time.Now()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list_by_user_id", "success")
	return sessions, nil
}

func (r *GormSessionRepository) DeleteByToken(token string) error {
	err := r.db.Where("refresh_token = ?", token).Delete(&domain.Session{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_token", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_token", "success")
	return nil
}

func (r *GormSessionRepository) DeleteByIDForUser(userID, sessionID uuid.UUID) (bool, error) {
	res := r.db.Where("user_id = ? AND id = ?", userID, sessionID).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_id_for_user", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_id_for_user", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) DeleteByUserID(userID uuid.UUID) (int64, error) {
	res := r.db.Where("user_id = ?", userID).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_user_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete_by_user_id", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) CleanupExpired() (int64, error) {
	res := r.db.Where("expires_at <= ?", time.Now()).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
