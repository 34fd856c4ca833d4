// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/repository"
)

// SessionRepository 创作会话仓储实现
type SessionRepository struct {
	client *Client
}

// NewSessionRepository 创建会话仓储
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// Create 创建会话
func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(session).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取会话，不存在时返回 nil
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var session entity.Session
	if err := db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Update 保存会话全部字段
func (r *SessionRepository) Update(ctx context.Context, session *entity.Session) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Update")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(session).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// Delete 删除会话
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.Session{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List 按更新时间倒序分页列出会话
func (r *SessionRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Session], error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	if err := db.Model(&entity.Session{}).Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	var sessions []*entity.Session
	if err := db.Order("updated_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&sessions).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return repository.NewPagedResult(sessions, total, pagination), nil
}

// ListByStates 返回处于指定状态的会话
func (r *SessionRepository) ListByStates(ctx context.Context, states ...entity.GameState) ([]*entity.Session, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.ListByStates")
	defer span.End()

	if len(states) == 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	var sessions []*entity.Session
	if err := db.Where("state IN ?", states).Find(&sessions).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list sessions by state: %w", err)
	}
	return sessions, nil
}
