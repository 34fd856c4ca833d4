package studio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/workflow/node"
	apperrors "z-novel-studio/pkg/errors"
)

var errToolNeedsOutline = apperrors.New(apperrors.CodeOutlineNotFound, "无法使用工具，需要先生成一个有效的细纲。")

// WorldbookSuggestions 世界书扩展建议
func (s *Service) WorldbookSuggestions(ctx context.Context, id string) (string, error) {
	var text string
	err := s.run(ctx, id, "worldbook_suggestions", "", func(ctx context.Context, sess *entity.Session) error {
		if err := requireOutline(sess); err != nil {
			return err
		}
		var err error
		text, err = s.bridge.WorldbookSuggestions(ctx, sess.Options, sess.Outline)
		return err
	})
	return text, err
}

// CharacterArcSuggestions 指定角色的弧光建议
func (s *Service) CharacterArcSuggestions(ctx context.Context, id, name string) (string, error) {
	var text string
	err := s.run(ctx, id, "character_arc", "", func(ctx context.Context, sess *entity.Session) error {
		if err := requireOutline(sess); err != nil {
			return err
		}
		character, ok := sess.Outline.FindCharacter(strings.TrimSpace(name))
		if !ok {
			return apperrors.Newf(apperrors.CodeNotFound, "character not found: %s", name)
		}
		var err error
		text, err = s.bridge.CharacterArcSuggestions(ctx, sess.Options, *character, sess.Outline)
		return err
	})
	return text, err
}

// NarrativeToolbox 针对某章细纲的叙事技巧建议
func (s *Service) NarrativeToolbox(ctx context.Context, id, chapterTitle string) (string, error) {
	var text string
	err := s.run(ctx, id, "narrative_toolbox", "", func(ctx context.Context, sess *entity.Session) error {
		if err := requireOutline(sess); err != nil {
			return err
		}
		wrapped, ok := sess.DetailedOutlines[strings.TrimSpace(chapterTitle)]
		if !ok {
			return errToolNeedsOutline
		}
		var final entity.FinalDetailedOutline
		if err := node.ParseMarkedJSON(wrapped, entity.MarkerOutlineStart, entity.MarkerOutlineEnd, "narrative toolbox", &final); err != nil {
			return errToolNeedsOutline
		}
		var err error
		text, err = s.bridge.NarrativeToolbox(ctx, sess.Options, final.DetailedOutlineAnalysis, sess.Outline)
		return err
	})
	return text, err
}

// NewCharacter 按描述生成新角色并追加到总纲
func (s *Service) NewCharacter(ctx context.Context, id, characterPrompt string) (*entity.CharacterProfile, error) {
	characterPrompt = strings.TrimSpace(characterPrompt)
	if characterPrompt == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "character prompt is required")
	}
	var created entity.CharacterProfile
	err := s.run(ctx, id, "new_character", "", func(ctx context.Context, sess *entity.Session) error {
		if err := requireOutline(sess); err != nil {
			return err
		}
		text, err := s.bridge.NewCharacterProfile(ctx, sess.Options, sess.Outline, characterPrompt)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(text), &created); err != nil {
			return apperrors.Wrap(err, apperrors.CodeJSONParseFailed, "生成新角色失败: "+err.Error())
		}
		if strings.TrimSpace(created.Name) == "" {
			return apperrors.New(apperrors.CodeValidationFailed, "生成新角色失败: 角色档案缺少名称。")
		}
		_, err = s.commit(ctx, id, func(x *entity.Session) error {
			if x.Outline == nil {
				return apperrors.New(apperrors.CodeInvalidState, "当前会话还没有创作计划，请先生成大纲。")
			}
			x.Outline.Characters = append(x.Outline.Characters, created)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// CharacterInteraction 流式生成两个角色的互动场景，onText 收到累积的全文
func (s *Service) CharacterInteraction(ctx context.Context, id, name1, name2 string, onText func(string)) (string, error) {
	var scene strings.Builder
	err := s.run(ctx, id, "character_interaction", "", func(ctx context.Context, sess *entity.Session) error {
		if err := requireOutline(sess); err != nil {
			return err
		}
		c1, ok1 := sess.Outline.FindCharacter(strings.TrimSpace(name1))
		c2, ok2 := sess.Outline.FindCharacter(strings.TrimSpace(name2))
		if !ok1 || !ok2 {
			return apperrors.Newf(apperrors.CodeNotFound, "character not found: %s / %s", name1, name2)
		}

		stream, err := s.bridge.StreamCharacterInteraction(ctx, sess.Options, *c1, *c2, sess.Outline)
		if err != nil {
			return err
		}
		defer stream.Close()
		for {
			msg, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			scene.WriteString(msg.Content)
			if onText != nil {
				onText(scene.String())
			}
		}
	})
	if err != nil {
		return "", err
	}
	return scene.String(), nil
}
