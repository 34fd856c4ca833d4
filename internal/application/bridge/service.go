package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"z-novel-studio/internal/config"
	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/service"
	"z-novel-studio/internal/infrastructure/llm"
	"z-novel-studio/internal/workflow/node"
	"z-novel-studio/internal/workflow/prompt"
	apperrors "z-novel-studio/pkg/errors"
	"z-novel-studio/pkg/logger"
	"z-novel-studio/pkg/metrics"
)

const rawOutputPreviewRunes = 500

// LLM 上游调用能力，由 infrastructure/llm.Client 实现
type LLM interface {
	ResolveCredentials(baseURL, apiKey string) (llm.Credentials, bool)
	Complete(ctx context.Context, creds llm.Credentials, req llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, creds llm.Credentials, req llm.Request, buffer int) (*schema.StreamReader[*schema.Message], error)
	ListModels(ctx context.Context, creds llm.Credentials) ([]string, error)
}

// ModelCache 模型列表缓存
type ModelCache interface {
	Models(ctx context.Context, apiBase, apiKey string, load func(ctx context.Context) ([]string, error)) ([]string, error)
}

// Service 桥接服务
type Service struct {
	llm     LLM
	prompts *prompt.Registry
	models  ModelCache
	buffer  int
}

// NewService 创建桥接服务，models 可为 nil
func NewService(client LLM, prompts *prompt.Registry, models ModelCache, cfg *config.Config) *Service {
	return &Service{
		llm:     client,
		prompts: prompts,
		models:  models,
		buffer:  cfg.Studio.StreamBuffer,
	}
}

type call struct {
	model    string
	creds    llm.Credentials
	messages []*schema.Message
	sampling llm.Sampling
}

func (c *call) request() llm.Request {
	return llm.Request{Model: c.model, Messages: c.messages, Sampling: c.sampling}
}

// UnknownActionError 未知动作
func UnknownActionError(action Action) error {
	return apperrors.Newf(apperrors.CodeUnknownAction, "Unknown action: %s", action)
}

func (s *Service) prepare(ctx context.Context, action Action, opts entity.StoryOptions, vars map[string]any) (*call, error) {
	entry, ok := actionTable[action]
	if !ok {
		return nil, UnknownActionError(action)
	}
	model := strings.TrimSpace(entry.role.model(opts))
	if model == "" {
		return nil, apperrors.Newf(apperrors.CodeModelNotSelected,
			"No model selected for action: %s. Please check your settings.", action)
	}
	creds, ok := s.llm.ResolveCredentials(opts.APIBaseURL, opts.APIKey)
	if !ok {
		return nil, apperrors.ErrMissingCredentials
	}
	msgs, err := s.prompts.Render(ctx, entry.prompt, vars)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "failed to render prompt")
	}
	return &call{
		model:    model,
		creds:    creds,
		messages: msgs,
		sampling: llm.SamplingFromOptions(opts.Temperature, opts.Diversity, opts.TopK),
	}, nil
}

// do 执行一次非流式调用，parse 为 nil 时只返回原文
func (s *Service) do(ctx context.Context, action Action, opts entity.StoryOptions, vars map[string]any, parse func(raw, model string) error) (err error) {
	start := time.Now()
	model := ""
	defer func() { s.observe(ctx, action, model, start, err) }()

	c, err := s.prepare(ctx, action, opts, vars)
	if err != nil {
		return err
	}
	model = c.model

	resp, err := s.llm.Complete(service.WithAction(ctx, string(action)), c.creds, c.request())
	if err != nil {
		return err
	}
	return parse(resp.Content, c.model)
}

func (s *Service) stream(ctx context.Context, action Action, opts entity.StoryOptions, vars map[string]any) (_ *schema.StreamReader[*schema.Message], err error) {
	start := time.Now()
	model := ""
	defer func() { s.observe(ctx, action, model, start, err) }()

	c, err := s.prepare(ctx, action, opts, vars)
	if err != nil {
		return nil, err
	}
	model = c.model
	return s.llm.Stream(service.WithAction(ctx, string(action)), c.creds, c.request(), s.buffer)
}

func invalidJSONError(err error, raw, model string) error {
	msg := fmt.Sprintf("Model [%s] Output Error: The model returned invalid JSON. \n\nError: %s\n\nRaw Output Preview:\n%s",
		model, err.Error(), node.Preview(raw, rawOutputPreviewRunes))
	return apperrors.Wrap(err, apperrors.CodeJSONParseFailed, msg).WithStatus(http.StatusInternalServerError)
}

// extractJSONOutput 宽松截取模型输出中的 JSON，只校验语法，原样返回
func extractJSONOutput(raw, model string) (json.RawMessage, error) {
	body := []byte(node.ExtractJSONObject(raw))
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, invalidJSONError(err, raw, model)
	}
	return json.RawMessage(body), nil
}

// decodeJSONOutput 截取 JSON 后解码到 v，字段形态差异由实体的宽松解码处理
func decodeJSONOutput(raw, model string, v any) error {
	body, err := extractJSONOutput(raw, model)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return invalidJSONError(err, raw, model)
	}
	return nil
}

func keepJSON(dst *json.RawMessage) func(raw, model string) error {
	return func(raw, model string) error {
		body, err := extractJSONOutput(raw, model)
		*dst = body
		return err
	}
}

// decodeTitles 标题数组中的非字符串元素按文本转换
func decodeTitles(dst *[]string) func(raw, model string) error {
	return func(raw, model string) error {
		var items []json.RawMessage
		if err := decodeJSONOutput(raw, model, &items); err != nil {
			return err
		}
		titles := make([]string, 0, len(items))
		for _, item := range items {
			if t := strings.TrimSpace(entity.FlexText(item)); t != "" {
				titles = append(titles, t)
			}
		}
		*dst = titles
		return nil
	}
}

func keepText(dst *string) func(raw, model string) error {
	return func(raw, _ string) error {
		*dst = raw
		return nil
	}
}

// Search 生成创作简报
func (s *Service) Search(ctx context.Context, opts entity.StoryOptions, storyCore string) (string, error) {
	var text string
	err := s.do(ctx, ActionPerformSearch, opts, prompt.SearchVars(storyCore, opts), keepText(&text))
	return text, err
}

// ChapterTitles 续写后续章节标题
func (s *Service) ChapterTitles(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline, chapters []entity.GeneratedChapter) ([]string, error) {
	var titles []string
	err := s.do(ctx, ActionGenerateChapterTitles, opts, prompt.ChapterTitlesVars(outline, len(chapters), opts), decodeTitles(&titles))
	return titles, err
}

// ChapterTitlesJSON 与 ChapterTitles 相同，但返回模型给出的 JSON 原文
func (s *Service) ChapterTitlesJSON(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline, chapters []entity.GeneratedChapter) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.do(ctx, ActionGenerateChapterTitles, opts, prompt.ChapterTitlesVars(outline, len(chapters), opts), keepJSON(&out))
	return out, err
}

// DetailedOutline 生成单章细纲草稿
func (s *Service) DetailedOutline(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline, chapters []entity.GeneratedChapter,
	chapterTitle string, previous *entity.OptimizationEntry, userInput string) (*entity.DetailedOutlineAnalysis, error) {
	var out entity.DetailedOutlineAnalysis
	vars := prompt.DetailedOutlineVars(outline, chapters, chapterTitle, previous, userInput)
	if err := s.do(ctx, ActionGenerateDetailedOutline, opts, vars,
		func(raw, model string) error { return decodeJSONOutput(raw, model, &out) }); err != nil {
		return nil, err
	}
	return &out, nil
}

// DetailedOutlineJSON 生成细纲草稿并返回 JSON 原文，未知字段原样保留
func (s *Service) DetailedOutlineJSON(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline, chapters []entity.GeneratedChapter,
	chapterTitle string, previous *entity.OptimizationEntry, userInput string) (json.RawMessage, error) {
	var out json.RawMessage
	vars := prompt.DetailedOutlineVars(outline, chapters, chapterTitle, previous, userInput)
	err := s.do(ctx, ActionGenerateDetailedOutline, opts, vars, keepJSON(&out))
	return out, err
}

// CritiqueOutline 评审细纲草稿
func (s *Service) CritiqueOutline(ctx context.Context, opts entity.StoryOptions, draft entity.DetailedOutlineAnalysis,
	outline *entity.StoryOutline, chapterTitle string) (*entity.OutlineCritique, error) {
	var out entity.OutlineCritique
	if err := s.do(ctx, ActionCritiqueDetailedOutline, opts, prompt.CritiqueVars(draft, outline, chapterTitle, opts),
		func(raw, model string) error { return decodeJSONOutput(raw, model, &out) }); err != nil {
		return nil, err
	}
	return &out, nil
}

// CritiqueOutlineJSON 评审细纲草稿并返回 JSON 原文
func (s *Service) CritiqueOutlineJSON(ctx context.Context, opts entity.StoryOptions, draft entity.DetailedOutlineAnalysis,
	outline *entity.StoryOutline, chapterTitle string) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.do(ctx, ActionCritiqueDetailedOutline, opts, prompt.CritiqueVars(draft, outline, chapterTitle, opts), keepJSON(&out))
	return out, err
}

// EditChapterText 按指令改写文本
func (s *Service) EditChapterText(ctx context.Context, opts entity.StoryOptions, originalText, instruction string) (string, error) {
	var text string
	err := s.do(ctx, ActionEditChapterText, opts, prompt.EditTextVars(originalText, instruction, opts), keepText(&text))
	return text, err
}

// NewCharacterProfile 生成新角色档案，返回校验过的 JSON 文本
func (s *Service) NewCharacterProfile(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline, characterPrompt string) (string, error) {
	var text string
	err := s.do(ctx, ActionGenerateNewCharacter, opts, prompt.NewCharacterVars(outline, characterPrompt),
		func(raw, model string) error {
			var parsed any
			if err := decodeJSONOutput(raw, model, &parsed); err != nil {
				return err
			}
			text = node.ExtractJSONObject(raw)
			return nil
		})
	return text, err
}

// WorldbookSuggestions 世界书扩展建议
func (s *Service) WorldbookSuggestions(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline) (string, error) {
	var text string
	err := s.do(ctx, ActionWorldbookSuggestions, opts, prompt.WorldbookSuggestionsVars(outline), keepText(&text))
	return text, err
}

// CharacterArcSuggestions 角色弧光建议
func (s *Service) CharacterArcSuggestions(ctx context.Context, opts entity.StoryOptions, character entity.CharacterProfile, outline *entity.StoryOutline) (string, error) {
	var text string
	err := s.do(ctx, ActionCharacterArcSuggestions, opts, prompt.CharacterArcVars(character, outline), keepText(&text))
	return text, err
}

// NarrativeToolbox 叙事技巧建议
func (s *Service) NarrativeToolbox(ctx context.Context, opts entity.StoryOptions, detailed entity.DetailedOutlineAnalysis, outline *entity.StoryOutline) (string, error) {
	var text string
	err := s.do(ctx, ActionNarrativeToolbox, opts, prompt.NarrativeToolboxVars(detailed, outline), keepText(&text))
	return text, err
}

// StreamChapter 流式生成章节正文
func (s *Service) StreamChapter(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline,
	history []entity.GeneratedChapter, detailed entity.DetailedOutlineAnalysis) (*schema.StreamReader[*schema.Message], error) {
	return s.stream(ctx, ActionGenerateChapter, opts, prompt.ChapterVars(outline, history, opts, detailed))
}

// StreamCharacterInteraction 流式生成两个角色的互动片段
func (s *Service) StreamCharacterInteraction(ctx context.Context, opts entity.StoryOptions, c1, c2 entity.CharacterProfile,
	outline *entity.StoryOutline) (*schema.StreamReader[*schema.Message], error) {
	return s.stream(ctx, ActionGenerateCharacterDialogue, opts, prompt.CharacterInteractionVars(c1, c2, outline, opts))
}

// ListModels 列出上游模型，配置了缓存时优先读缓存
func (s *Service) ListModels(ctx context.Context, opts entity.StoryOptions) (ids []string, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, ActionListModels, "", start, err) }()

	creds, ok := s.llm.ResolveCredentials(opts.APIBaseURL, opts.APIKey)
	if !ok {
		return nil, apperrors.ErrMissingCredentials
	}
	ctx = service.WithAction(ctx, string(ActionListModels))
	if s.models == nil {
		return s.llm.ListModels(ctx, creds)
	}

	base, err := llm.APIBase(creds.BaseURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, err.Error())
	}
	ids, err = s.models.Models(ctx, base, creds.APIKey, func(ctx context.Context) ([]string, error) {
		return s.llm.ListModels(ctx, creds)
	})
	if err != nil && !apperrors.IsAppError(err) && !errors.Is(err, context.Canceled) {
		// 缓存故障时直接回源
		logger.Warn(ctx, "model list cache unavailable", "error", err.Error())
		return s.llm.ListModels(ctx, creds)
	}
	return ids, err
}

func (s *Service) observe(ctx context.Context, action Action, model string, start time.Time, err error) {
	label := string(action)
	if _, ok := actionTable[action]; !ok && action != ActionListModels {
		label = "unknown"
	}
	elapsed := time.Since(start)
	metrics.BridgeActionDuration.WithLabelValues(label).Observe(elapsed.Seconds())

	status := "success"
	switch {
	case err == nil:
		logger.Info(ctx, "bridge action completed",
			"action", action, "model", model, "status", http.StatusOK, "duration_ms", elapsed.Milliseconds())
	case errors.Is(err, context.Canceled):
		status = "aborted"
		logger.Info(ctx, "bridge action aborted", "action", action, "model", model)
	default:
		status = "error"
		appErr := apperrors.AsAppError(err)
		logger.Warn(ctx, "bridge action failed",
			"action", action, "model", model, "status", appErr.HTTPStatus, "error", appErr.Message)
	}
	metrics.BridgeActionTotal.WithLabelValues(label, status).Inc()
}
