package service

import "context"

// LLMUsageInput 表示一次上游模型调用的用量数据。
// 位于 domain/service，基础设施层通过它上报，不依赖应用层实现。
type LLMUsageInput struct {
	SessionID string
	Action    string
	Model     string

	PromptTokens     int
	CompletionTokens int
	DurationMs       int
	Status           string
}

// LLMUsageRecorder 记录模型用量（落库或投递到消息流）。
// 实现应当 best-effort，不阻塞主流程。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}

// NopUsageRecorder 丢弃所有用量记录
type NopUsageRecorder struct{}

func (NopUsageRecorder) Record(context.Context, LLMUsageInput) error { return nil }
