// Package activity 将工作台事件投影为会话活动统计
package activity

import (
	"context"
	"fmt"
	"strings"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/infrastructure/messaging"
	"z-novel-studio/pkg/logger"
)

// Store 活动统计存储
type Store interface {
	RecordChapter(ctx context.Context, sessionID, title string, words int, regenerated bool) error
	RecordOutlineVersion(ctx context.Context, sessionID string, score float64) error
	Get(ctx context.Context, sessionID string) (*entity.SessionActivity, error)
}

// Projector 消费 chapter_complete 与 outline_version 事件
type Projector struct {
	store Store
}

// NewProjector 创建投影器
func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

// Register 将处理函数注册到消费者
func (p *Projector) Register(register func(msgType string, handler messaging.MessageHandler)) {
	register(messaging.MessageTypeChapterComplete, p.HandleChapterComplete)
	register(messaging.MessageTypeOutlineVersion, p.HandleOutlineVersion)
}

// HandleChapterComplete 处理章节完成事件
func (p *Projector) HandleChapterComplete(ctx context.Context, msg *messaging.Message) error {
	var evt messaging.ChapterCompleteMessage
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return messaging.Permanent(fmt.Errorf("decode chapter_complete: %w", err))
	}
	sid, err := sessionOf(msg, evt.SessionID)
	if err != nil {
		return err
	}
	if evt.WordCount < 0 {
		evt.WordCount = 0
	}

	ctx = logger.WithSession(ctx, sid)
	if err := p.store.RecordChapter(ctx, sid, evt.Title, evt.WordCount, evt.Regenerated); err != nil {
		return err
	}
	logger.Info(ctx, "chapter activity recorded",
		"chapter_id", evt.ChapterID,
		"word_count", evt.WordCount,
		"regenerated", evt.Regenerated,
	)
	return nil
}

// HandleOutlineVersion 处理细纲版本事件
func (p *Projector) HandleOutlineVersion(ctx context.Context, msg *messaging.Message) error {
	var evt messaging.OutlineVersionMessage
	if err := msg.UnmarshalPayload(&evt); err != nil {
		return messaging.Permanent(fmt.Errorf("decode outline_version: %w", err))
	}
	sid, err := sessionOf(msg, evt.SessionID)
	if err != nil {
		return err
	}

	ctx = logger.WithSession(ctx, sid)
	if err := p.store.RecordOutlineVersion(ctx, sid, evt.OverallScore); err != nil {
		return err
	}
	logger.Debug(ctx, "outline activity recorded",
		"chapter_title", evt.ChapterTitle,
		"version", evt.Version,
		"score", evt.OverallScore,
	)
	return nil
}

// sessionOf 优先使用载荷中的会话 ID，缺失时回退到消息信封
func sessionOf(msg *messaging.Message, payloadSID string) (string, error) {
	if sid := strings.TrimSpace(payloadSID); sid != "" {
		return sid, nil
	}
	if sid := strings.TrimSpace(msg.SessionID); sid != "" {
		return sid, nil
	}
	return "", messaging.Permanent(fmt.Errorf("%s event %s has no session id", msg.Type, msg.ID))
}

// Get 读取会话活动统计
func (p *Projector) Get(ctx context.Context, sessionID string) (*entity.SessionActivity, error) {
	return p.store.Get(ctx, sessionID)
}
