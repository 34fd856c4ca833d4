// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"z-novel-studio/internal/domain/entity"
)

// LLMUsageEventRepository 模型用量流水
type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
	SumTokensBySession(ctx context.Context, sessionID string, startInclusive, endExclusive time.Time) (int64, error)
}
