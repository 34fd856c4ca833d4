package prompt

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptSearch               PromptID = "search"
	PromptChapterTitles        PromptID = "chapter_titles"
	PromptDetailedOutline      PromptID = "detailed_outline"
	PromptCritiqueOutline      PromptID = "critique_outline"
	PromptChapter              PromptID = "chapter"
	PromptEditText             PromptID = "edit_text"
	PromptCharacterInteraction PromptID = "character_interaction"
	PromptNewCharacter         PromptID = "new_character"
	PromptWorldbookSuggestions PromptID = "worldbook_suggestions"
	PromptCharacterArc         PromptID = "character_arc"
	PromptNarrativeToolbox     PromptID = "narrative_toolbox"
)

var knownPrompts = map[PromptID]struct{}{
	PromptSearch:               {},
	PromptChapterTitles:        {},
	PromptDetailedOutline:      {},
	PromptCritiqueOutline:      {},
	PromptChapter:              {},
	PromptEditText:             {},
	PromptCharacterInteraction: {},
	PromptNewCharacter:         {},
	PromptWorldbookSuggestions: {},
	PromptCharacterArc:         {},
	PromptNarrativeToolbox:     {},
}

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	if _, ok := knownPrompts[id]; !ok {
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}
	system, err := readEmbeddedText("templates/" + string(id) + ".system.txt")
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText("templates/" + string(id) + ".user.txt")
	if err != nil {
		return nil, err
	}

	// 模板正文中含有 JSON 花括号，使用 Go template 语法避免与 FString 冲突
	tpl := einoprompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

// Render 渲染指定提示词，返回 system + user 两条消息
func (r *Registry) Render(ctx context.Context, id PromptID, vars map[string]any) ([]*schema.Message, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt %s: %w", id, err)
	}
	return msgs, nil
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
