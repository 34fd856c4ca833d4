// Package outline 实现单章细纲的“生成-评审”版本迭代
package outline

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/infrastructure/messaging"
	"z-novel-studio/internal/workflow/node"
	apperrors "z-novel-studio/pkg/errors"
	"z-novel-studio/pkg/logger"
	"z-novel-studio/pkg/metrics"
	"z-novel-studio/pkg/tracer"
)

// ErrPlanningModelMissing 未配置规划模型
var ErrPlanningModelMissing = apperrors.New(apperrors.CodeModelNotSelected,
	"未配置规划模型。请在“设置”中选择一个模型（建议使用 Flash 模型以获得更快的速度）。")

// Planner 规划模型调用
type Planner interface {
	DetailedOutline(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline, chapters []entity.GeneratedChapter,
		chapterTitle string, previous *entity.OptimizationEntry, userInput string) (*entity.DetailedOutlineAnalysis, error)
	CritiqueOutline(ctx context.Context, opts entity.StoryOptions, draft entity.DetailedOutlineAnalysis,
		outline *entity.StoryOutline, chapterTitle string) (*entity.OutlineCritique, error)
}

// VersionPublisher 细纲版本事件投递
type VersionPublisher interface {
	PublishOutlineVersion(ctx context.Context, evt *messaging.OutlineVersionMessage) (string, error)
}

// Request 一次迭代的输入
type Request struct {
	SessionID    string
	Options      entity.StoryOptions
	Outline      *entity.StoryOutline
	Chapters     []entity.GeneratedChapter
	ChapterTitle string
	UserInput    string
}

// Result 迭代结果
type Result struct {
	Final   *entity.FinalDetailedOutline
	Wrapped string
}

// Orchestrator 细纲迭代编排器
type Orchestrator struct {
	planner   Planner
	store     HistoryStore
	publisher VersionPublisher
}

// NewOrchestrator 创建编排器，publisher 可为 nil
func NewOrchestrator(planner Planner, store HistoryStore, publisher VersionPublisher) *Orchestrator {
	return &Orchestrator{planner: planner, store: store, publisher: publisher}
}

// Iterate 执行一轮“生成-评审”。
// 两步都成功才追加历史；任一步失败（包括取消）不写入任何记录。
func (o *Orchestrator) Iterate(ctx context.Context, req Request) (*Result, error) {
	title := strings.TrimSpace(req.ChapterTitle)
	if title == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "chapter title is required")
	}
	if strings.TrimSpace(req.Options.PlanningModel) == "" {
		return nil, ErrPlanningModelMissing
	}

	ctx, span := tracer.Start(ctx, "outline.Iterate")
	defer span.End()

	history, err := o.store.History(ctx, req.SessionID, title)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	version := 1
	var previous *entity.OptimizationEntry
	if n := len(history); n > 0 {
		last := history[n-1]
		version = last.Version + 1
		previous = &last
	}

	draft, err := o.planner.DetailedOutline(ctx, req.Options, req.Outline, req.Chapters, title, previous, req.UserInput)
	if err != nil {
		return nil, o.fail(ctx, span, version, err)
	}
	critique, err := o.planner.CritiqueOutline(ctx, req.Options, *draft, req.Outline, title)
	if err != nil {
		return nil, o.fail(ctx, span, version, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, o.fail(ctx, span, version, err)
	}

	entry := entity.OptimizationEntry{Version: version, Outline: *draft, Critique: *critique}
	if err := o.store.Append(ctx, req.SessionID, title, entry, req.UserInput); err != nil {
		return nil, o.fail(ctx, span, version, err)
	}

	final := &entity.FinalDetailedOutline{
		DetailedOutlineAnalysis: *draft,
		FinalVersion:            version,
		OptimizationHistory:     append(append([]entity.OptimizationEntry{}, history...), entry),
	}
	wrapped, err := node.WrapMarked(final, entity.MarkerOutlineStart, entity.MarkerOutlineEnd)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to encode detailed outline")
	}

	metrics.OutlineVersionsTotal.WithLabelValues("success").Inc()
	metrics.OutlineCritiqueScore.Observe(critique.OverallScore)
	logger.Info(ctx, "outline version committed",
		"chapter_title", title, "version", version, "overall_score", critique.OverallScore)
	o.publish(ctx, req.SessionID, title, version, critique.OverallScore)

	return &Result{Final: final, Wrapped: wrapped}, nil
}

// History 返回按版本排序的优化历史
func (o *Orchestrator) History(ctx context.Context, sessionID, chapterTitle string) ([]entity.OptimizationEntry, error) {
	return o.store.History(ctx, sessionID, strings.TrimSpace(chapterTitle))
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, version int, err error) error {
	status := "error"
	if apperrors.IsAborted(err) || ctx.Err() != nil {
		status = "aborted"
	} else {
		tracer.RecordError(span, err)
		logger.Warn(ctx, "outline iteration failed", "version", version, "error", err.Error())
	}
	metrics.OutlineVersionsTotal.WithLabelValues(status).Inc()
	return err
}

func (o *Orchestrator) publish(ctx context.Context, sessionID, title string, version int, score float64) {
	if o.publisher == nil {
		return
	}
	if _, err := o.publisher.PublishOutlineVersion(ctx, &messaging.OutlineVersionMessage{
		SessionID:    sessionID,
		ChapterTitle: title,
		Version:      version,
		OverallScore: score,
	}); err != nil {
		logger.Warn(ctx, "failed to publish outline version", "error", err.Error())
	}
}

var maxChaptersPattern = regexp.MustCompile(`-(\d+)章`)

// MaxChapters 由篇幅描述推算章节上限，如“短篇(15-30章)”为 30
func MaxChapters(length string) int {
	if m := maxChaptersPattern.FindStringSubmatch(length); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if strings.Contains(length, "100章以上") {
		return 2000
	}
	return 30
}

// RemainingSlots 返回还可以追加的标题数量
func RemainingSlots(length string, existing int) int {
	if n := MaxChapters(length) - existing; n > 0 {
		return n
	}
	return 0
}
