package redis

import (
	"context"
	"encoding/json"
	"time"
)

// ModelListCache 缓存上游模型列表，同一 (地址, 密钥) 的并发请求只回源一次
type ModelListCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewModelListCache 创建模型列表缓存
func NewModelListCache(cache *Cache, ttl time.Duration) *ModelListCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ModelListCache{cache: cache, ttl: ttl}
}

// Models 读取缓存，未命中时调用 load 并写回
func (m *ModelListCache) Models(ctx context.Context, apiBase, apiKey string, load func(ctx context.Context) ([]string, error)) ([]string, error) {
	raw, err := m.cache.GetOrLoadSafe(ctx, BuildModelsKey(apiBase, apiKey), m.ttl, func() (interface{}, error) {
		return load(ctx)
	})
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
