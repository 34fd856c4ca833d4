// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-novel-studio/internal/domain/entity"
)

// SessionRepository 创作会话仓储
type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	Update(ctx context.Context, session *entity.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.Session], error)
	// ListByStates 返回处于指定状态的会话，用于启动时修复中断的生成
	ListByStates(ctx context.Context, states ...entity.GameState) ([]*entity.Session, error)
}
