// Package redis 提供会话活动统计的存储实现
package redis

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-studio/internal/domain/entity"
)

const (
	activityFieldChapters      = "chapters"
	activityFieldRegenerations = "regenerations"
	activityFieldWords         = "words"
	activityFieldVersions      = "outline_versions"
	activityFieldScore         = "last_critique_score"
	activityFieldLastTitle     = "last_chapter_title"
	activityFieldUpdatedAt     = "updated_at"
)

// ActivityStore 以 Hash 保存每个会话的活动计数
type ActivityStore struct {
	client *Client
	ttl    time.Duration
}

// NewActivityStore 创建活动统计存储，ttl<=0 时使用 30 天
func NewActivityStore(client *Client, ttl time.Duration) *ActivityStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ActivityStore{client: client, ttl: ttl}
}

// BuildActivityKey 构建活动统计键
func BuildActivityKey(sessionID string) string {
	return "studio:activity:" + sessionID
}

// RecordChapter 累计一次章节完成
func (s *ActivityStore) RecordChapter(ctx context.Context, sessionID, title string, words int, regenerated bool) error {
	ctx, span := tracer.Start(ctx, "activity.RecordChapter",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	key := BuildActivityKey(sessionID)
	pipe := s.client.rdb.TxPipeline()
	if regenerated {
		pipe.HIncrBy(ctx, key, activityFieldRegenerations, 1)
	} else {
		pipe.HIncrBy(ctx, key, activityFieldChapters, 1)
	}
	pipe.HIncrBy(ctx, key, activityFieldWords, int64(words))
	pipe.HSet(ctx, key,
		activityFieldLastTitle, title,
		activityFieldUpdatedAt, time.Now().UTC().Format(time.RFC3339),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// RecordOutlineVersion 累计一次细纲迭代并记录最新评分
func (s *ActivityStore) RecordOutlineVersion(ctx context.Context, sessionID string, score float64) error {
	ctx, span := tracer.Start(ctx, "activity.RecordOutlineVersion",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	key := BuildActivityKey(sessionID)
	pipe := s.client.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, activityFieldVersions, 1)
	pipe.HSet(ctx, key,
		activityFieldScore, strconv.FormatFloat(score, 'f', -1, 64),
		activityFieldUpdatedAt, time.Now().UTC().Format(time.RFC3339),
	)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Get 读取会话活动统计，没有记录时返回零值
func (s *ActivityStore) Get(ctx context.Context, sessionID string) (*entity.SessionActivity, error) {
	ctx, span := tracer.Start(ctx, "activity.Get",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	fields, err := s.client.rdb.HGetAll(ctx, BuildActivityKey(sessionID)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return parseActivity(sessionID, fields), nil
}

// Delete 删除会话活动统计
func (s *ActivityStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.rdb.Del(ctx, BuildActivityKey(sessionID)).Err()
}

func parseActivity(sessionID string, fields map[string]string) *entity.SessionActivity {
	a := &entity.SessionActivity{SessionID: sessionID}
	a.Chapters, _ = strconv.Atoi(fields[activityFieldChapters])
	a.Regenerations, _ = strconv.Atoi(fields[activityFieldRegenerations])
	a.Words, _ = strconv.Atoi(fields[activityFieldWords])
	a.OutlineVersions, _ = strconv.Atoi(fields[activityFieldVersions])
	a.LastCritiqueScore, _ = strconv.ParseFloat(fields[activityFieldScore], 64)
	a.LastChapterTitle = fields[activityFieldLastTitle]
	if ts := fields[activityFieldUpdatedAt]; ts != "" {
		a.UpdatedAt, _ = time.Parse(time.RFC3339, ts)
	}
	return a
}
