package studio

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"z-novel-studio/internal/application/outline"
	"z-novel-studio/internal/domain/entity"
	apperrors "z-novel-studio/pkg/errors"
	"z-novel-studio/pkg/logger"
)

const refinementSeparator = "\n\n---\n**优化指令:**\n"

var (
	errEmptyStoryCore   = apperrors.New(apperrors.CodeInvalidParam, "请输入故事核心。")
	errEmptyBrief       = apperrors.New(apperrors.CodeGenerationFailed, "AI未能生成创作简报。请重试。")
	errOutlineStructure = apperrors.New(apperrors.CodeValidationFailed, "JSON验证失败：AI生成的JSON中缺少必要的结构（剧情大纲、角色、世界书）。")
	errChapterLimit     = apperrors.New(apperrors.CodeChapterLimitReached, "已达到当前篇幅设定的最大章节数。请在设置中调整篇幅，或直接开始创作。")
)

// PlanInput 规划请求
type PlanInput struct {
	StoryCore  string
	Refinement string
}

// PlanResult 规划结果，Warning 为自动生成标题失败时的提示
type PlanResult struct {
	Session *entity.Session `json:"session"`
	Brief   string          `json:"brief"`
	Warning string          `json:"warning,omitempty"`
}

// ParseStoryOutline 从创作简报中截取第一个 { 到最后一个 } 解析总纲并校验必要结构
func ParseStoryOutline(text string) (*entity.StoryOutline, error) {
	start := strings.Index(text, "{")
	if start < 0 {
		return nil, apperrors.New(apperrors.CodeJSONParseFailed, "JSON解析失败：在AI的输出中未能找到JSON对象的起始符号 '{'。")
	}
	end := strings.LastIndex(text, "}")
	if end <= start {
		return nil, apperrors.New(apperrors.CodeJSONParseFailed, "JSON解析失败：在AI的输出中未能找到一个有效的JSON对象结构。")
	}

	var o entity.StoryOutline
	if err := json.Unmarshal([]byte(text[start:end+1]), &o); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeJSONParseFailed,
			"JSON解析失败：AI返回的文本不是一个有效的JSON格式。错误: "+err.Error())
	}
	if strings.TrimSpace(o.Title) == "" {
		o.Title = "无标题"
	}
	if o.Characters == nil {
		o.Characters = []entity.CharacterProfile{}
	}
	if o.WorldCategories == nil {
		o.WorldCategories = []entity.WorldCategory{}
	}
	if !o.IsComplete() {
		return nil, errOutlineStructure
	}
	return &o, nil
}

// Plan 生成创作计划。成功后清空章节、标题与细纲，并自动生成第一批章节标题。
func (s *Service) Plan(ctx context.Context, id string, in PlanInput) (*PlanResult, error) {
	var result PlanResult
	err := s.run(ctx, id, "plan", entity.GameStatePlanning, func(ctx context.Context, sess *entity.Session) error {
		core := strings.TrimSpace(in.StoryCore)
		if core == "" {
			core = sess.StoryCore
		}
		if refinement := strings.TrimSpace(in.Refinement); refinement != "" && core != "" {
			core += refinementSeparator + refinement
		}
		if strings.TrimSpace(core) == "" {
			return errEmptyStoryCore
		}

		brief, err := s.bridge.Search(ctx, sess.Options, core)
		if err != nil {
			return err
		}
		if strings.TrimSpace(brief) == "" {
			return errEmptyBrief
		}
		parsed, err := ParseStoryOutline(brief)
		if err != nil {
			return err
		}
		result.Brief = brief

		planned, err := s.commit(ctx, id, func(x *entity.Session) error {
			x.StoryCore = core
			x.Outline = parsed
			x.ResetDraft()
			x.State = entity.GameStatePlanningComplete
			x.LastError = ""
			return nil
		})
		if err != nil {
			return err
		}
		result.Session = planned
		logger.Info(ctx, "story plan generated", "title", parsed.Title, "characters", len(parsed.Characters))

		titles, err := s.bridge.ChapterTitles(ctx, planned.Options, parsed, nil)
		if errors.Is(err, context.Canceled) {
			result.Warning = "已中止自动生成初始章节标题。"
			return nil
		}
		if err != nil {
			result.Warning = "自动生成初始章节标题失败: " + apperrors.AsAppError(err).Message
			logger.Warn(ctx, "initial chapter titles failed", "error", result.Warning)
			return nil
		}
		limit := outline.MaxChapters(planned.Options.Length)
		if len(titles) > limit {
			titles = titles[:limit]
		}
		withTitles, err := s.commit(ctx, id, func(x *entity.Session) error {
			x.GeneratedTitles = append(x.GeneratedTitles[:0:0], titles...)
			return nil
		})
		if err != nil {
			return err
		}
		result.Session = withTitles
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GenerateTitles 续写章节标题，超出篇幅上限的部分被截断
func (s *Service) GenerateTitles(ctx context.Context, id string) (*entity.Session, error) {
	var updated *entity.Session
	err := s.run(ctx, id, "titles", "", func(ctx context.Context, sess *entity.Session) error {
		if err := requireOutline(sess); err != nil {
			return err
		}
		if strings.TrimSpace(sess.Options.PlanningModel) == "" {
			return outline.ErrPlanningModelMissing
		}
		if outline.RemainingSlots(sess.Options.Length, len(sess.GeneratedTitles)) == 0 {
			return errChapterLimit
		}

		titles, err := s.bridge.ChapterTitles(ctx, sess.Options, sess.Outline, sess.Chapters)
		if err != nil {
			return err
		}

		updated, err = s.commit(ctx, id, func(x *entity.Session) error {
			slots := outline.RemainingSlots(x.Options.Length, len(x.GeneratedTitles))
			if len(titles) > slots {
				logger.Warn(ctx, "chapter titles truncated", "generated", len(titles), "allowed", slots)
				titles = titles[:slots]
			}
			x.GeneratedTitles = append(x.GeneratedTitles, titles...)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
