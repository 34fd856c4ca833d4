// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"os"
	"strconv"

	"z-novel-studio/internal/application/activity"
	"z-novel-studio/internal/application/outline"
	"z-novel-studio/internal/application/quota"
	"z-novel-studio/internal/application/studio"
	"z-novel-studio/internal/config"
	"z-novel-studio/internal/domain/repository"
	"z-novel-studio/internal/domain/service"
	"z-novel-studio/internal/infrastructure/messaging"
	"z-novel-studio/internal/infrastructure/persistence/postgres"
	"z-novel-studio/internal/infrastructure/persistence/redis"
	"z-novel-studio/internal/interfaces/http/handler"
	"z-novel-studio/internal/interfaces/http/router"
	"z-novel-studio/pkg/logger"
)

// App api-gateway 运行所需的组件
type App struct {
	Router *router.Router
	Studio *studio.Service
}

// Worker job-worker 运行所需的组件
type Worker struct {
	Consumer  *messaging.Consumer
	Recorder  *quota.LLMUsageRecorder
	Projector *activity.Projector
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres, cfg.App.Env == "development")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideSessionRepository 按开关为会话仓储叠加 Redis 快照缓存
func ProvideSessionRepository(repo *postgres.SessionRepository, cache *redis.Cache, cfg *config.Config) repository.SessionRepository {
	if !cfg.Features.SessionCache.Enabled {
		return repo
	}
	return redis.NewCachedSessionRepository(repo, cache, cfg.Cache.Redis.SessionTTL)
}

// ProvideModelListCache 提供模型列表缓存
func ProvideModelListCache(cache *redis.Cache, cfg *config.Config) *redis.ModelListCache {
	return redis.NewModelListCache(cache, cfg.Cache.Redis.ModelsTTL)
}

// ProvideActivityStore 提供会话活动统计存储
func ProvideActivityStore(client *redis.Client) *redis.ActivityStore {
	return redis.NewActivityStore(client, 0)
}

// 事件发布关闭时各发布者返回 nil 接口，调用方据此跳过投递

// ProvideUsagePublisher 提供用量事件发布者
func ProvideUsagePublisher(producer *messaging.Producer, cfg *config.Config) quota.UsagePublisher {
	if !cfg.Features.EventPublishing.Enabled {
		return nil
	}
	return producer
}

// ProvideVersionPublisher 提供细纲版本事件发布者
func ProvideVersionPublisher(producer *messaging.Producer, cfg *config.Config) outline.VersionPublisher {
	if !cfg.Features.EventPublishing.Enabled {
		return nil
	}
	return producer
}

// ProvideEventPublisher 提供章节完成事件发布者
func ProvideEventPublisher(producer *messaging.Producer, cfg *config.Config) studio.EventPublisher {
	if !cfg.Features.EventPublishing.Enabled {
		return nil
	}
	return producer
}

// ProvideUsageRecorder 提供网关侧的用量记录器：优先投递消息流，失败时直接写库
func ProvideUsageRecorder(repo repository.LLMUsageEventRepository, publisher quota.UsagePublisher) service.LLMUsageRecorder {
	return quota.NewLLMUsageRecorder(repo, publisher)
}

// ProvideWorkerRecorder 提供 job-worker 侧的用量记录器，只落库不再投递
func ProvideWorkerRecorder(repo repository.LLMUsageEventRepository) *quota.LLMUsageRecorder {
	return quota.NewLLMUsageRecorder(repo, nil)
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rc *redis.Client) *handler.HealthHandler {
	return handler.NewHealthHandler(cfg.App.Version, map[string]handler.HealthChecker{
		"postgres": pg,
		"redis":    rc,
	})
}

// ProvideConsumer 提供工作台事件流消费者
func ProvideConsumer(ctx context.Context, rc *redis.Client, cfg *config.Config) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	group := messaging.ConsumerGroupStudioWorker
	if rs.ConsumerGroupPrefix != "" {
		group = messaging.ConsumerGroup(rs.ConsumerGroupPrefix + string(group))
	}
	name, err := os.Hostname()
	if err != nil || name == "" {
		logger.Warn(ctx, "hostname unavailable, using default consumer name")
		name = "job-worker"
	}
	return messaging.NewConsumer(rc.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamStudioEvents,
		Group:         group,
		ConsumerName:  name + "-" + strconv.Itoa(os.Getpid()),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
}
