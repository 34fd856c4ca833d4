// Package studio 实现有状态的创作工作台：会话状态机、生成操作占用与中止、各创作步骤的编排
package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"z-novel-studio/internal/application/outline"
	"z-novel-studio/internal/config"
	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/repository"
	"z-novel-studio/internal/domain/service"
	"z-novel-studio/internal/infrastructure/messaging"
	apperrors "z-novel-studio/pkg/errors"
	"z-novel-studio/pkg/logger"
	"z-novel-studio/pkg/tracer"
)

// Bridge 单次模型调用能力，由 bridge.Service 实现
type Bridge interface {
	Search(ctx context.Context, opts entity.StoryOptions, storyCore string) (string, error)
	ChapterTitles(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline, chapters []entity.GeneratedChapter) ([]string, error)
	EditChapterText(ctx context.Context, opts entity.StoryOptions, originalText, instruction string) (string, error)
	NewCharacterProfile(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline, characterPrompt string) (string, error)
	WorldbookSuggestions(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline) (string, error)
	CharacterArcSuggestions(ctx context.Context, opts entity.StoryOptions, character entity.CharacterProfile, outline *entity.StoryOutline) (string, error)
	NarrativeToolbox(ctx context.Context, opts entity.StoryOptions, detailed entity.DetailedOutlineAnalysis, outline *entity.StoryOutline) (string, error)
	StreamChapter(ctx context.Context, opts entity.StoryOptions, outline *entity.StoryOutline,
		history []entity.GeneratedChapter, detailed entity.DetailedOutlineAnalysis) (*schema.StreamReader[*schema.Message], error)
	StreamCharacterInteraction(ctx context.Context, opts entity.StoryOptions, c1, c2 entity.CharacterProfile,
		outline *entity.StoryOutline) (*schema.StreamReader[*schema.Message], error)
}

// OutlineIterator 细纲迭代能力，由 outline.Orchestrator 实现
type OutlineIterator interface {
	Iterate(ctx context.Context, req outline.Request) (*outline.Result, error)
	History(ctx context.Context, sessionID, chapterTitle string) ([]entity.OptimizationEntry, error)
}

// EventPublisher 章节完成事件投递
type EventPublisher interface {
	PublishChapterComplete(ctx context.Context, evt *messaging.ChapterCompleteMessage) (string, error)
}

// Service 创作工作台服务
type Service struct {
	sessions repository.SessionRepository
	versions repository.OutlineVersionRepository
	tx       repository.Transactor
	bridge   Bridge
	outlines OutlineIterator
	events   EventPublisher
	defaults entity.StoryOptions
	timeout  time.Duration
	guard    *inflight
}

// NewService 创建工作台服务，events 可为 nil
func NewService(
	sessions repository.SessionRepository,
	versions repository.OutlineVersionRepository,
	tx repository.Transactor,
	bridge Bridge,
	outlines OutlineIterator,
	events EventPublisher,
	cfg *config.Config,
) *Service {
	return &Service{
		sessions: sessions,
		versions: versions,
		tx:       tx,
		bridge:   bridge,
		outlines: outlines,
		events:   events,
		defaults: DefaultOptions(cfg),
		timeout:  cfg.Studio.OpTimeout,
		guard:    newInflight(),
	}
}

// DefaultOptions 以配置覆盖内置默认创作参数；凭据不写入会话，由上游客户端回退到配置
func DefaultOptions(cfg *config.Config) entity.StoryOptions {
	st := cfg.Studio
	return entity.DefaultStoryOptions().Merge(entity.StoryOptions{
		SearchModel:   st.SearchModel,
		PlanningModel: st.PlanningModel,
		WritingModel:  st.WritingModel,
		Style:         st.Style,
		Length:        st.Length,
		AuthorStyle:   st.AuthorStyle,
		Temperature:   st.Temperature,
		Diversity:     st.Diversity,
		TopK:          st.TopK,
	})
}

// CreateSession 创建会话
func (s *Service) CreateSession(ctx context.Context, options entity.StoryOptionsPatch, storyCore string) (*entity.Session, error) {
	sess := entity.NewSession(options.ApplyTo(s.defaults))
	sess.StoryCore = strings.TrimSpace(storyCore)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create session")
	}
	logger.Info(logger.WithSession(ctx, sess.ID), "session created")
	return sess, nil
}

// GetSession 获取会话
func (s *Service) GetSession(ctx context.Context, id string) (*entity.Session, error) {
	return s.load(ctx, id)
}

// ListSessions 分页列出会话
func (s *Service) ListSessions(ctx context.Context, page, pageSize int) (*repository.PagedResult[*entity.Session], error) {
	result, err := s.sessions.List(ctx, repository.NewPagination(page, pageSize))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list sessions")
	}
	return result, nil
}

// DeleteSession 删除会话及其细纲历史，进行中的生成会先被中止
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	s.guard.cancel(id)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.versions.DeleteBySession(ctx, id); err != nil {
			return err
		}
		return s.sessions.Delete(ctx, id)
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete session")
	}
	logger.Info(logger.WithSession(ctx, id), "session deleted")
	return nil
}

// UpdateOptions 合并更新创作参数，下一次生成生效
func (s *Service) UpdateOptions(ctx context.Context, id string, patch entity.StoryOptionsPatch) (*entity.Session, error) {
	return s.commit(ctx, id, func(sess *entity.Session) error {
		sess.Options = patch.ApplyTo(sess.Options)
		return nil
	})
}

// UpdateOutline 手动编辑总纲
func (s *Service) UpdateOutline(ctx context.Context, id string, o *entity.StoryOutline) (*entity.Session, error) {
	if o == nil {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "outline is required")
	}
	if s.guard.busy(id) {
		return nil, apperrors.ErrSessionBusy
	}
	return s.commit(ctx, id, func(sess *entity.Session) error {
		sess.Outline = o
		if sess.State == entity.GameStateInitial {
			sess.State = entity.GameStatePlanningComplete
		}
		return nil
	})
}

// UpdateChapter 手动编辑章节
func (s *Service) UpdateChapter(ctx context.Context, id string, chapterID int, title, content string) (*entity.Session, error) {
	if s.guard.busy(id) {
		return nil, apperrors.ErrSessionBusy
	}
	return s.commit(ctx, id, func(sess *entity.Session) error {
		ch, ok := sess.FindChapter(chapterID)
		if !ok {
			return apperrors.ErrChapterNotFound
		}
		if strings.TrimSpace(title) != "" {
			ch.Title = strings.TrimSpace(title)
		}
		ch.Content = content
		return nil
	})
}

// Abort 中止会话上正在进行的生成，没有进行中的操作时返回 false
func (s *Service) Abort(ctx context.Context, id string) bool {
	aborted := s.guard.cancel(id)
	if aborted {
		logger.Info(logger.WithSession(ctx, id), "generation abort requested")
	}
	return aborted
}

// Recover 将上次进程退出时停留在生成中状态的会话恢复到最近的稳定状态
func (s *Service) Recover(ctx context.Context) (int, error) {
	stuck, err := s.sessions.ListByStates(ctx, entity.GameStatePlanning, entity.GameStateWriting)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list interrupted sessions")
	}
	recovered := 0
	for _, sess := range stuck {
		if s.guard.busy(sess.ID) {
			continue
		}
		from := sess.State
		sess.State = sess.SettledState()
		if err := s.sessions.Update(ctx, sess); err != nil {
			logger.Error(ctx, "failed to recover session", err, "session_id", sess.ID)
			continue
		}
		recovered++
		logger.Info(logger.WithSession(ctx, sess.ID), "session recovered", "from", from, "to", sess.State)
	}
	return recovered, nil
}

func (s *Service) load(ctx context.Context, id string) (*entity.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load session")
	}
	if sess == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	return sess, nil
}

// commit 重新读取会话，在副本上应用修改后保存；修改函数返回错误时不落库
func (s *Service) commit(ctx context.Context, id string, mutate func(sess *entity.Session) error) (*entity.Session, error) {
	ctx = context.WithoutCancel(ctx)
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next := sess.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	if err := s.sessions.Update(ctx, next); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to save session")
	}
	return next, nil
}

// run 在会话占用下执行一次生成操作。
// running 非空时操作期间会话处于该状态；失败或中止时恢复到操作前状态，中止不记为失败。
func (s *Service) run(ctx context.Context, id, name string, running entity.GameState,
	fn func(ctx context.Context, sess *entity.Session) error) error {
	opCtx, release, err := s.guard.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(opCtx, s.timeout)
		defer cancel()
	}
	opCtx = service.WithSession(logger.WithSession(opCtx, id), id)
	opCtx, span := tracer.Start(opCtx, "studio."+name)
	defer span.End()

	sess, err := s.load(opCtx, id)
	if err != nil {
		return err
	}
	prev := sess.State
	if prev.IsRunning() {
		prev = sess.SettledState()
	}

	if running != "" {
		if _, err := s.commit(opCtx, id, func(x *entity.Session) error {
			x.State = running
			x.LastError = ""
			return nil
		}); err != nil {
			return err
		}
	}

	err = fn(opCtx, sess)
	if err == nil {
		return nil
	}

	aborted := errors.Is(err, context.Canceled) || apperrors.IsAborted(err)
	if !aborted && errors.Is(err, context.DeadlineExceeded) && !apperrors.IsAppError(err) {
		err = apperrors.Wrap(err, apperrors.CodeOperationTimeout,
			fmt.Sprintf("生成操作超过了配置的时限 (%s)，已停止。", s.timeout))
	}
	if aborted {
		err = apperrors.ErrGenerationAborted
		logger.Info(opCtx, "generation aborted", "operation", name)
	} else {
		tracer.RecordError(span, err)
		logger.Warn(opCtx, "generation failed", "operation", name, "error", apperrors.AsAppError(err).Message)
	}

	if running != "" || !aborted {
		// 中止或超时后 opCtx 已失效，恢复状态不能再受它约束
		restoreCtx := context.WithoutCancel(opCtx)
		if _, cerr := s.commit(restoreCtx, id, func(x *entity.Session) error {
			if running != "" && x.State == running {
				x.State = prev
			}
			if !aborted {
				x.LastError = apperrors.AsAppError(err).Message
			}
			return nil
		}); cerr != nil {
			logger.Error(restoreCtx, "failed to restore session state", cerr)
		}
	}
	return err
}

func requireOutline(sess *entity.Session) error {
	if sess.Outline == nil {
		return apperrors.New(apperrors.CodeInvalidState, "当前会话还没有创作计划，请先生成大纲。")
	}
	return nil
}
