// Package main 数据库初始化入口（bootstrap）
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"z-novel-studio/internal/config"
	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting studio bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// 2. 初始化 PostgreSQL
	client, cleanup, err := wire.InitializePostgresOnly(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize postgres: %v", err)
	}
	defer cleanup()

	// 3. 同步表结构
	models := []any{
		&entity.Session{},
		&entity.OutlineVersion{},
		&entity.LLMUsageEvent{},
	}
	if err := client.AutoMigrate(ctx, models...); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	for _, m := range models {
		fmt.Printf("Migrated %T\n", m)
	}

	fmt.Println("Bootstrap completed successfully!")
}
