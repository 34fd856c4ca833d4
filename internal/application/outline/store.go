package outline

import (
	"context"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/repository"
	apperrors "z-novel-studio/pkg/errors"
)

// HistoryStore 细纲优化历史存储，只追加
type HistoryStore interface {
	History(ctx context.Context, sessionID, chapterTitle string) ([]entity.OptimizationEntry, error)
	Append(ctx context.Context, sessionID, chapterTitle string, entry entity.OptimizationEntry, userInput string) error
}

// RepositoryStore 基于 OutlineVersionRepository 的历史存储
type RepositoryStore struct {
	repo repository.OutlineVersionRepository
}

// NewRepositoryStore 创建历史存储
func NewRepositoryStore(repo repository.OutlineVersionRepository) *RepositoryStore {
	return &RepositoryStore{repo: repo}
}

// History 读取历史
func (s *RepositoryStore) History(ctx context.Context, sessionID, chapterTitle string) ([]entity.OptimizationEntry, error) {
	rows, err := s.repo.ListByTitle(ctx, sessionID, chapterTitle)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load outline history")
	}
	entries := make([]entity.OptimizationEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.Entry())
	}
	return entries, nil
}

// Append 追加一个版本，版本号必须紧接当前最新版本
func (s *RepositoryStore) Append(ctx context.Context, sessionID, chapterTitle string, entry entity.OptimizationEntry, userInput string) error {
	latest, err := s.repo.LatestVersion(ctx, sessionID, chapterTitle)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to read latest outline version")
	}
	if entry.Version != latest+1 {
		return apperrors.Newf(apperrors.CodeConflict,
			"outline version %d does not follow latest version %d", entry.Version, latest)
	}
	if err := s.repo.Append(ctx, &entity.OutlineVersion{
		SessionID:    sessionID,
		ChapterTitle: chapterTitle,
		Version:      entry.Version,
		Outline:      entry.Outline,
		Critique:     entry.Critique,
		UserInput:    userInput,
	}); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to append outline version")
	}
	return nil
}
