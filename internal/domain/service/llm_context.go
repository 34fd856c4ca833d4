package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyAction  llmCtxKey = "llm_action"
	llmCtxKeySession llmCtxKey = "llm_session"
)

// WithAction 标记当前调用所属的桥接动作，用于用量归集
func WithAction(ctx context.Context, action string) context.Context {
	if ctx == nil {
		return nil
	}
	a := strings.TrimSpace(action)
	if a == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyAction, a)
}

// WithSession 标记当前调用所属的创作会话
func WithSession(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		return nil
	}
	s := strings.TrimSpace(sessionID)
	if s == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeySession, s)
}

func ActionFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeyAction, "unknown")
}

func SessionFromContext(ctx context.Context) string {
	return stringFromContext(ctx, llmCtxKeySession, "")
}

func stringFromContext(ctx context.Context, key llmCtxKey, fallback string) string {
	if ctx == nil {
		return fallback
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}
