package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/gabrielsolarenergy/server/internal/domain"
	"github.com/gabrielsolarenergy/server/internal/observability"
)

type AuditRepository interface {
	Create(entry *domain.AuditLog) error
	ListPaged(req PageRequest, action string) (PageResult[domain.AuditLog], error)
}

type GormAuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &GormAuditRepository{db: db} }

func (r *GormAuditRepository) Create(entry *domain.AuditLog) error {
	err := r.db.Create(entry).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "audit", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "audit", "create", "success")
	return nil
}

// ListPaged returns audit entries newest first, optionally filtered by
// action.
func (r *GormAuditRepository) ListPaged(req PageRequest, action string) (PageResult[domain.AuditLog], error) {
	normalized := normalizePageRequest(req)
	result := PageResult[domain.AuditLog]{
		Page:     normalized.Page,
		PageSize: normalized.PageSize,
	}

	base := r.db.Model(&domain.AuditLog{})
	if action != "" {
		base = base.Where("action = ?", action)
	}
	if err := base.Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "audit", "list_paged", "error")
		return PageResult[domain.AuditLog]{}, err
	}

	offset := (normalized.Page - 1) * normalized.PageSize
	err := base.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(normalized.PageSize).Find(&result.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "audit", "list_paged", "error")
		return PageResult[domain.AuditLog]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, normalized.PageSize)
	observability.RecordRepositoryOperation(context.Background(), "audit", "list_paged", "success")
	return result, nil
}
