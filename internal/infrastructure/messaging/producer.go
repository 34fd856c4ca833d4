// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	if sc := span.SpanContext(); sc.HasTraceID() {
		msg.SetMetadata("trace_id", sc.TraceID().String())
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishLLMUsage 发布模型用量事件
func (p *Producer) PublishLLMUsage(ctx context.Context, usage *LLMUsageMessage) (string, error) {
	msg, err := NewMessage(MessageTypeLLMUsage, usage.SessionID, usage)
	if err != nil {
		return "", err
	}
	msg.SetMetadata("action", usage.Action)
	return p.Publish(ctx, StreamStudioEvents, msg)
}

// PublishOutlineVersion 发布细纲版本事件
func (p *Producer) PublishOutlineVersion(ctx context.Context, evt *OutlineVersionMessage) (string, error) {
	msg, err := NewMessage(MessageTypeOutlineVersion, evt.SessionID, evt)
	if err != nil {
		return "", err
	}
	msg.SetMetadata("version", strconv.Itoa(evt.Version))
	return p.Publish(ctx, StreamStudioEvents, msg)
}

// PublishChapterComplete 发布章节完成事件
func (p *Producer) PublishChapterComplete(ctx context.Context, evt *ChapterCompleteMessage) (string, error) {
	msg, err := NewMessage(MessageTypeChapterComplete, evt.SessionID, evt)
	if err != nil {
		return "", err
	}
	msg.SetMetadata("chapter_id", strconv.Itoa(evt.ChapterID))
	return p.Publish(ctx, StreamStudioEvents, msg)
}

// LLMUsageMessage 模型用量消息
type LLMUsageMessage struct {
	SessionID        string `json:"session_id,omitempty"`
	Action           string `json:"action"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	DurationMs       int    `json:"duration_ms"`
	Status           string `json:"status"`
}

// OutlineVersionMessage 细纲版本消息
type OutlineVersionMessage struct {
	SessionID    string  `json:"session_id"`
	ChapterTitle string  `json:"chapter_title"`
	Version      int     `json:"version"`
	OverallScore float64 `json:"overall_score"`
}

// ChapterCompleteMessage 章节完成消息
type ChapterCompleteMessage struct {
	SessionID   string `json:"session_id"`
	ChapterID   int    `json:"chapter_id"`
	Title       string `json:"title"`
	WordCount   int    `json:"word_count"`
	Regenerated bool   `json:"regenerated,omitempty"`
}
