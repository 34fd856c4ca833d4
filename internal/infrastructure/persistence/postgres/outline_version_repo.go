// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"z-novel-studio/internal/domain/entity"
)

// OutlineVersionRepository 细纲优化历史仓储实现
type OutlineVersionRepository struct {
	client *Client
}

// NewOutlineVersionRepository 创建细纲历史仓储
func NewOutlineVersionRepository(client *Client) *OutlineVersionRepository {
	return &OutlineVersionRepository{client: client}
}

// Append 追加一条版本记录，(session, title, version) 唯一
func (r *OutlineVersionRepository) Append(ctx context.Context, version *entity.OutlineVersion) error {
	ctx, span := tracer.Start(ctx, "postgres.OutlineVersionRepository.Append")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(version).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append outline version: %w", err)
	}
	return nil
}

// ListByTitle 按版本号升序返回某章的全部历史
func (r *OutlineVersionRepository) ListByTitle(ctx context.Context, sessionID, chapterTitle string) ([]*entity.OutlineVersion, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutlineVersionRepository.ListByTitle")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var versions []*entity.OutlineVersion
	if err := db.Where("session_id = ? AND chapter_title = ?", sessionID, chapterTitle).
		Order("version ASC").
		Find(&versions).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list outline versions: %w", err)
	}
	return versions, nil
}

// LatestVersion 返回某章当前最大版本号，没有记录时为 0
func (r *OutlineVersionRepository) LatestVersion(ctx context.Context, sessionID, chapterTitle string) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.OutlineVersionRepository.LatestVersion")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var latest int
	if err := db.Model(&entity.OutlineVersion{}).
		Where("session_id = ? AND chapter_title = ?", sessionID, chapterTitle).
		Select("COALESCE(MAX(version), 0)").
		Scan(&latest).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to get latest outline version: %w", err)
	}
	return latest, nil
}

// DeleteBySession 删除会话的全部细纲历史
func (r *OutlineVersionRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "postgres.OutlineVersionRepository.DeleteBySession")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("session_id = ?", sessionID).Delete(&entity.OutlineVersion{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete outline versions: %w", err)
	}
	return nil
}
