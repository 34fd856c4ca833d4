package redis

import (
	"context"
	"encoding/json"
	"time"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/repository"
	"z-novel-studio/pkg/logger"
)

// CachedSessionRepository 为会话仓储增加读穿透、写穿透缓存。
// 缓存故障只记日志，读写都以数据库为准。
type CachedSessionRepository struct {
	repository.SessionRepository
	cache *Cache
	ttl   time.Duration
}

// NewCachedSessionRepository 包装会话仓储
func NewCachedSessionRepository(inner repository.SessionRepository, cache *Cache, ttl time.Duration) *CachedSessionRepository {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedSessionRepository{SessionRepository: inner, cache: cache, ttl: ttl}
}

// GetByID 先读缓存，未命中时回源并写回
func (r *CachedSessionRepository) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	key := BuildSessionKey(id)
	if raw, err := r.cache.Get(ctx, key); err == nil {
		var s entity.Session
		if err := json.Unmarshal(raw, &s); err == nil {
			return &s, nil
		}
	} else if !IsNil(err) {
		logger.Warn(ctx, "session cache read failed", "session_id", id, "error", err.Error())
	}

	s, err := r.SessionRepository.GetByID(ctx, id)
	if err != nil || s == nil {
		return s, err
	}
	r.store(ctx, s)
	return s, nil
}

// Create 写库后写缓存
func (r *CachedSessionRepository) Create(ctx context.Context, session *entity.Session) error {
	if err := r.SessionRepository.Create(ctx, session); err != nil {
		return err
	}
	r.store(ctx, session)
	return nil
}

// Update 写库后刷新缓存
func (r *CachedSessionRepository) Update(ctx context.Context, session *entity.Session) error {
	if err := r.SessionRepository.Update(ctx, session); err != nil {
		return err
	}
	r.store(ctx, session)
	return nil
}

// Delete 删除后使缓存失效
func (r *CachedSessionRepository) Delete(ctx context.Context, id string) error {
	if err := r.SessionRepository.Delete(ctx, id); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, BuildSessionKey(id)); err != nil {
		logger.Warn(ctx, "session cache invalidate failed", "session_id", id, "error", err.Error())
	}
	return nil
}

func (r *CachedSessionRepository) store(ctx context.Context, s *entity.Session) {
	if err := r.cache.Set(ctx, BuildSessionKey(s.ID), s, r.ttl); err != nil {
		logger.Warn(ctx, "session cache write failed", "session_id", s.ID, "error", err.Error())
	}
}
