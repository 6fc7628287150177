package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/observability"
)

type ChatMessageRepository interface {
	Create(msg *domain.ChatMessage) error
	// ListByRoom returns the most recent messages for a room, oldest first.
	ListByRoom(roomID string, limit int) ([]domain.ChatMessage, error)
}

type GormChatMessageRepository struct{ db *gorm.DB }

func NewChatMessageRepository(db *gorm.DB) ChatMessageRepository {
	return &GormChatMessageRepository{db: db}
}

func (r *GormChatMessageRepository) Create(msg *domain.ChatMessage) error {
	err := r.db.Create(msg).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "chat_message", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "chat_message", "create", "success")
	return nil
}

func (r *GormChatMessageRepository) ListByRoom(roomID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []domain.ChatMessage
	err := r.db.Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "chat_message", "list_by_room", "error")
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	observability.RecordRepositoryOperation(context.Background(), "chat_message", "list_by_room", "success")
	return msgs, nil
}
