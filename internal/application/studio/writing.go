package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"z-novel-studio/internal/application/chapter"
	"z-novel-studio/internal/application/outline"
	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/infrastructure/messaging"
	"z-novel-studio/internal/workflow/node"
	apperrors "z-novel-studio/pkg/errors"
	"z-novel-studio/pkg/logger"
)

var errInvalidDetailedOutline = apperrors.New(apperrors.CodeValidationFailed, "无法写入章节，细纲数据无效。请重新生成细纲。")

// ChapterSnapshot 章节流式过程中推送给调用方的状态
type ChapterSnapshot struct {
	ID      int                  `json:"id"`
	Title   string               `json:"title"`
	Thought string               `json:"preWritingThought"`
	Content string               `json:"content"`
	Status  entity.ChapterStatus `json:"status"`
}

// IterateOutline 为指定章节标题执行一轮细纲“生成-评审”，结果按标题保存
func (s *Service) IterateOutline(ctx context.Context, id, chapterTitle, userInput string) (*entity.FinalDetailedOutline, error) {
	var final *entity.FinalDetailedOutline
	err := s.run(ctx, id, "outline", "", func(ctx context.Context, sess *entity.Session) error {
		if err := requireOutline(sess); err != nil {
			return err
		}
		res, err := s.outlines.Iterate(ctx, outline.Request{
			SessionID:    sess.ID,
			Options:      sess.Options,
			Outline:      sess.Outline,
			Chapters:     sess.Chapters,
			ChapterTitle: chapterTitle,
			UserInput:    userInput,
		})
		if err != nil {
			return err
		}
		title := strings.TrimSpace(chapterTitle)
		if _, err := s.commit(ctx, id, func(x *entity.Session) error {
			x.DetailedOutlines[title] = res.Wrapped
			x.ActiveTitle = title
			return nil
		}); err != nil {
			return err
		}
		final = res.Final
		return nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// OutlineHistory 返回章节细纲的优化历史
func (s *Service) OutlineHistory(ctx context.Context, id, chapterTitle string) ([]entity.OptimizationEntry, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.outlines.History(ctx, id, chapterTitle)
}

// WriteChapter 依据已保存的细纲流式写作新章节
func (s *Service) WriteChapter(ctx context.Context, id, chapterTitle string, onSnapshot func(ChapterSnapshot)) (*entity.GeneratedChapter, error) {
	var written *entity.GeneratedChapter
	err := s.run(ctx, id, "write_chapter", entity.GameStateWriting, func(ctx context.Context, sess *entity.Session) error {
		title := strings.TrimSpace(chapterTitle)
		ch, err := s.writeChapter(ctx, sess, title, sess.DetailedOutlines[title], sess.Chapters, false, onSnapshot)
		written = ch
		return err
	})
	return written, err
}

// RegenerateLastChapter 用最后一章对应的标题与细纲重新写作，替换最后一章
func (s *Service) RegenerateLastChapter(ctx context.Context, id string, onSnapshot func(ChapterSnapshot)) (*entity.GeneratedChapter, error) {
	var written *entity.GeneratedChapter
	err := s.run(ctx, id, "regenerate_chapter", entity.GameStateWriting, func(ctx context.Context, sess *entity.Session) error {
		n := len(sess.Chapters)
		if n == 0 {
			return apperrors.New(apperrors.CodeInvalidState, "还没有可以重新生成的章节。")
		}
		var title string
		if n-1 < len(sess.GeneratedTitles) {
			title = sess.GeneratedTitles[n-1]
		}
		detailed, ok := sess.DetailedOutlines[title]
		if title == "" || !ok {
			return apperrors.Newf(apperrors.CodeOutlineNotFound,
				"无法重新生成第 %d 章，缺少对应的细纲。请先在“细纲”模块中生成。", n)
		}
		ch, err := s.writeChapter(ctx, sess, title, detailed, sess.Chapters[:n-1], true, onSnapshot)
		written = ch
		return err
	})
	return written, err
}

func (s *Service) writeChapter(ctx context.Context, sess *entity.Session, title, wrapped string,
	history []entity.GeneratedChapter, regenerate bool, onSnapshot func(ChapterSnapshot)) (*entity.GeneratedChapter, error) {
	if err := requireOutline(sess); err != nil {
		return nil, err
	}
	var final entity.FinalDetailedOutline
	if err := node.ParseMarkedJSON(wrapped, entity.MarkerOutlineStart, entity.MarkerOutlineEnd, "chapter writing", &final); err != nil {
		logger.Warn(ctx, "stored detailed outline unusable", "chapter_title", title, "error", err.Error())
		return nil, errInvalidDetailedOutline
	}

	chapterID := entity.NextChapterID(history)
	stream, err := s.bridge.StreamChapter(ctx, sess.Options, sess.Outline, history, final.DetailedOutlineAnalysis)
	if err != nil {
		return nil, err
	}

	res, err := chapter.Run(ctx, stream, title, func(snap chapter.Snapshot) {
		if onSnapshot != nil {
			onSnapshot(ChapterSnapshot{ID: chapterID, Title: title, Thought: snap.Thought, Content: snap.Content, Status: entity.ChapterStatusStreaming})
		}
	})
	stopped := errors.Is(err, apperrors.ErrStoppedAfterThinking)
	if err != nil && !stopped {
		return nil, err
	}

	written := entity.GeneratedChapter{
		ID:      chapterID,
		Title:   res.Title,
		Content: res.Content,
		Thought: res.Thought,
		Status:  entity.ChapterStatusComplete,
	}
	if _, cerr := s.commit(ctx, sess.ID, func(x *entity.Session) error {
		if regenerate {
			if len(x.Chapters) == 0 {
				return apperrors.ErrChapterNotFound
			}
			x.Chapters = append(x.Chapters[:len(x.Chapters)-1], written)
		} else {
			x.Chapters = append(x.Chapters, written)
		}
		x.State = entity.GameStateChapterComplete
		if stopped {
			x.LastError = apperrors.ErrStoppedAfterThinking.Message
		}
		return nil
	}); cerr != nil {
		return nil, cerr
	}

	logger.Info(ctx, "chapter committed", "chapter_id", chapterID, "title", written.Title,
		"word_count", written.WordCount(), "regenerated", regenerate)
	s.publishChapter(ctx, sess.ID, &written, regenerate)
	if stopped {
		return &written, err
	}
	return &written, nil
}

func (s *Service) publishChapter(ctx context.Context, sessionID string, ch *entity.GeneratedChapter, regenerated bool) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishChapterComplete(context.WithoutCancel(ctx), &messaging.ChapterCompleteMessage{
		SessionID:   sessionID,
		ChapterID:   ch.ID,
		Title:       ch.Title,
		WordCount:   ch.WordCount(),
		Regenerated: regenerated,
	}); err != nil {
		logger.Warn(ctx, "failed to publish chapter event", "error", err.Error())
	}
}

// EditResult 文本微调结果
type EditResult struct {
	Chapter *entity.GeneratedChapter `json:"chapter"`
	Diff    DiffSummary              `json:"diff"`
}

// EditLastChapter 按指令微调最后一章正文
func (s *Service) EditLastChapter(ctx context.Context, id, instruction string) (*EditResult, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "instruction is required")
	}
	var result EditResult
	err := s.run(ctx, id, "edit_chapter", "", func(ctx context.Context, sess *entity.Session) error {
		last, ok := sess.LastChapter()
		if !ok || !last.IsComplete() {
			return apperrors.New(apperrors.CodeInvalidState, "最新章节尚未完成，无法微调。")
		}
		text, err := s.bridge.EditChapterText(ctx, sess.Options, last.Content, instruction)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			appErr := apperrors.AsAppError(err)
			return apperrors.Wrap(err, appErr.Code, fmt.Sprintf("文本修改失败: %s", appErr.Message)).WithStatus(appErr.HTTPStatus)
		}
		updated, err := s.commit(ctx, id, func(x *entity.Session) error {
			ch, ok := x.FindChapter(last.ID)
			if !ok {
				return apperrors.ErrChapterNotFound
			}
			ch.Content = text
			return nil
		})
		if err != nil {
			return err
		}
		ch, _ := updated.FindChapter(last.ID)
		result = EditResult{Chapter: ch, Diff: DiffWords(last.Content, text)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
