//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"z-novel-studio/internal/application/activity"
	"z-novel-studio/internal/application/bridge"
	"z-novel-studio/internal/application/outline"
	"z-novel-studio/internal/application/studio"
	"z-novel-studio/internal/config"
	"z-novel-studio/internal/domain/repository"
	"z-novel-studio/internal/infrastructure/llm"
	"z-novel-studio/internal/infrastructure/persistence/postgres"
	"z-novel-studio/internal/infrastructure/persistence/redis"
	"z-novel-studio/internal/interfaces/http/handler"
	"z-novel-studio/internal/interfaces/http/middleware"
	"z-novel-studio/internal/interfaces/http/router"
	"z-novel-studio/internal/workflow/prompt"
)

// InitializeApp 初始化 api-gateway
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		LLMSet,
		StudioSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化 job-worker
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		PostgresSet,
		wire.Bind(new(repository.LLMUsageEventRepository), new(*postgres.LLMUsageEventRepository)),
		ProvideRedisClient,
		ProvideActivityStore,
		wire.Bind(new(activity.Store), new(*redis.ActivityStore)),
		activity.NewProjector,
		ProvideWorkerRecorder,
		ProvideConsumer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializePostgresOnly 仅初始化 PostgreSQL（用于 bootstrap）
func InitializePostgresOnly(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	wire.Build(ProvidePostgresClient)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewSessionRepository,
	postgres.NewOutlineVersionRepository,
	postgres.NewLLMUsageEventRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	ProvideSessionRepository,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.OutlineVersionRepository), new(*postgres.OutlineVersionRepository)),
	wire.Bind(new(repository.LLMUsageEventRepository), new(*postgres.LLMUsageEventRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	ProvideModelListCache,
	ProvideActivityStore,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
	wire.Bind(new(bridge.ModelCache), new(*redis.ModelListCache)),
	wire.Bind(new(activity.Store), new(*redis.ActivityStore)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	ProvideUsagePublisher,
	ProvideVersionPublisher,
	ProvideEventPublisher,
)

// LLMSet 上游模型调用提供者集合
var LLMSet = wire.NewSet(
	ProvideUsageRecorder,
	llm.NewClient,
	prompt.NewRegistry,
	bridge.NewService,
	wire.Bind(new(bridge.LLM), new(*llm.Client)),
)

// StudioSet 工作台提供者集合
var StudioSet = wire.NewSet(
	outline.NewRepositoryStore,
	outline.NewOrchestrator,
	studio.NewService,
	activity.NewProjector,
	wire.Bind(new(outline.HistoryStore), new(*outline.RepositoryStore)),
	wire.Bind(new(outline.Planner), new(*bridge.Service)),
	wire.Bind(new(studio.Bridge), new(*bridge.Service)),
	wire.Bind(new(studio.OutlineIterator), new(*outline.Orchestrator)),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	handler.NewBridgeHandler,
	handler.NewSessionHandler,
	handler.NewActivityHandler,
	handler.NewSchemaHandler,
	wire.Bind(new(handler.BridgeExecutor), new(*bridge.Service)),
	wire.Bind(new(handler.StudioService), new(*studio.Service)),
	wire.Bind(new(handler.ActivityReader), new(*activity.Projector)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
