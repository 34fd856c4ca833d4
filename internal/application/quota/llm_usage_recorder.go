// Package quota 负责模型用量的归集
package quota

import (
	"context"
	"fmt"
	"strings"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/repository"
	"z-novel-studio/internal/domain/service"
	"z-novel-studio/internal/infrastructure/messaging"
)

// UsagePublisher 将用量投递到消息流
type UsagePublisher interface {
	PublishLLMUsage(ctx context.Context, usage *messaging.LLMUsageMessage) (string, error)
}

// LLMUsageRecorder 记录模型用量。
// 配置了 publisher 时投递到消息流由 job-worker 落库，否则直接写库；投递失败时回退为直接写库。
type LLMUsageRecorder struct {
	usageRepo repository.LLMUsageEventRepository
	publisher UsagePublisher
}

func NewLLMUsageRecorder(usageRepo repository.LLMUsageEventRepository, publisher UsagePublisher) *LLMUsageRecorder {
	return &LLMUsageRecorder{
		usageRepo: usageRepo,
		publisher: publisher,
	}
}

func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil {
		return nil
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	if r.publisher != nil {
		_, err := r.publisher.PublishLLMUsage(ctx, &messaging.LLMUsageMessage{
			SessionID:        strings.TrimSpace(in.SessionID),
			Action:           strings.TrimSpace(in.Action),
			Model:            strings.TrimSpace(in.Model),
			PromptTokens:     in.PromptTokens,
			CompletionTokens: in.CompletionTokens,
			DurationMs:       in.DurationMs,
			Status:           in.Status,
		})
		if err == nil {
			return nil
		}
	}
	return r.Persist(ctx, in)
}

// Persist 直接写入用量流水
func (r *LLMUsageRecorder) Persist(ctx context.Context, in service.LLMUsageInput) error {
	if r.usageRepo == nil {
		return nil
	}
	status := entity.LLMUsageStatus(in.Status)
	if status == "" {
		status = entity.LLMUsageStatusSuccess
	}
	evt := &entity.LLMUsageEvent{
		SessionID:        strings.TrimSpace(in.SessionID),
		Action:           strings.TrimSpace(in.Action),
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		DurationMs:       in.DurationMs,
		Status:           status,
	}
	return r.usageRepo.Create(ctx, evt)
}

// HandleMessage 消费消息流中的用量事件并落库
func (r *LLMUsageRecorder) HandleMessage(ctx context.Context, msg *messaging.Message) error {
	var payload messaging.LLMUsageMessage
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return messaging.Permanent(fmt.Errorf("decode llm_usage: %w", err))
	}
	if payload.PromptTokens < 0 || payload.CompletionTokens < 0 {
		return messaging.Permanent(fmt.Errorf("invalid token usage in message %s", msg.ID))
	}
	return r.Persist(ctx, service.LLMUsageInput{
		SessionID:        payload.SessionID,
		Action:           payload.Action,
		Model:            payload.Model,
		PromptTokens:     payload.PromptTokens,
		CompletionTokens: payload.CompletionTokens,
		DurationMs:       payload.DurationMs,
		Status:           payload.Status,
	})
}
