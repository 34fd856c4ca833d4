// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"z-novel-studio/internal/domain/entity"
)

// OutlineVersionRepository 细纲优化历史仓储，只追加
type OutlineVersionRepository interface {
	Append(ctx context.Context, version *entity.OutlineVersion) error
	ListByTitle(ctx context.Context, sessionID, chapterTitle string) ([]*entity.OutlineVersion, error)
	LatestVersion(ctx context.Context, sessionID, chapterTitle string) (int, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}
