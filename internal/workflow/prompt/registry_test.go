package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"z-novel-studio/internal/domain/entity"
)

func sampleOutline() *entity.StoryOutline {
	return &entity.StoryOutline{
		Title:        "赛博长夜",
		PlotSynopsis: "侦探在霓虹之城追查失踪的记忆。",
		Characters: []entity.CharacterProfile{
			{Role: "主角", Name: "林默", CoreConcept: "失忆的侦探", StoryFunction: "推动调查", LongTermAmbition: "找回过去"},
			{Role: "反派", Name: "白鸦", CoreConcept: "记忆商人"},
		},
		WorldCategories: []entity.WorldCategory{
			{Name: "城市", Entries: []entity.KeyValue{{Key: "下城区", Value: "终年不见天日"}}},
		},
	}
}

func TestRegistry_AllPromptsRender(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	outline := sampleOutline()
	opts := entity.DefaultStoryOptions()
	detailed := entity.DetailedOutlineAnalysis{PlotPoints: []entity.PlotPoint{{Summary: "雨夜接案"}}}

	cases := map[PromptID]map[string]any{
		PromptSearch:               SearchVars("赛博朋克侦探", opts),
		PromptChapterTitles:        ChapterTitlesVars(outline, 3, opts),
		PromptDetailedOutline:      DetailedOutlineVars(outline, nil, "雨夜", nil, ""),
		PromptCritiqueOutline:      CritiqueVars(detailed, outline, "雨夜", opts),
		PromptChapter:              ChapterVars(outline, nil, opts, detailed),
		PromptEditText:             EditTextVars("原文", "改短", opts),
		PromptCharacterInteraction: CharacterInteractionVars(outline.Characters[0], outline.Characters[1], outline, opts),
		PromptNewCharacter:         NewCharacterVars(outline, "一个卖花的盲女"),
		PromptWorldbookSuggestions: WorldbookSuggestionsVars(outline),
		PromptCharacterArc:         CharacterArcVars(outline.Characters[0], outline),
		PromptNarrativeToolbox:     NarrativeToolboxVars(detailed, outline),
	}

	for id, vars := range cases {
		t.Run(string(id), func(t *testing.T) {
			msgs, err := r.Render(ctx, id, vars)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if len(msgs) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(msgs))
			}
			if msgs[0].Role != schema.System || msgs[1].Role != schema.User {
				t.Errorf("unexpected roles %s/%s", msgs[0].Role, msgs[1].Role)
			}
			for _, m := range msgs {
				if strings.Contains(m.Content, "<no value>") || strings.Contains(m.Content, "{{") {
					t.Errorf("unrendered placeholder in %s message", m.Role)
				}
			}
		})
	}
}

func TestRegistry_UnknownPrompt(t *testing.T) {
	if _, err := NewRegistry().ChatTemplate("missing"); err == nil {
		t.Fatal("expected error for unknown prompt")
	}
}

func TestDetailedOutlineVars_PreviousAttempt(t *testing.T) {
	prev := &entity.OptimizationEntry{
		Version: 1,
		Outline: entity.DetailedOutlineAnalysis{PlotPoints: []entity.PlotPoint{{Summary: "旧草稿"}}},
		Critique: entity.OutlineCritique{
			ImprovementSuggestions: []entity.Suggestion{{Area: "节奏", Suggestion: "加快开场"}},
		},
	}
	chapters := []entity.GeneratedChapter{{ID: 1, Title: "开端"}, {ID: 2, Title: "转折"}}

	msgs, err := NewRegistry().Render(context.Background(), PromptDetailedOutline,
		DetailedOutlineVars(sampleOutline(), chapters, "雨夜", prev, "多一点悬念"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	user := msgs[1].Content
	for _, want := range []string{"上一版草稿及评估", "旧草稿", "加快开场", "用户额外指令", "多一点悬念", "第1章: 开端; 第2章: 转折"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}

	first, err := NewRegistry().Render(context.Background(), PromptDetailedOutline,
		DetailedOutlineVars(sampleOutline(), nil, "雨夜", nil, ""))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(first[1].Content, "上一版草稿") || strings.Contains(first[1].Content, "用户额外指令") {
		t.Errorf("first attempt should not include revision sections")
	}
}

func TestStringifyHelpers(t *testing.T) {
	if StringifyWorldbook(nil) != "暂无。" {
		t.Errorf("empty worldbook placeholder")
	}
	wb := StringifyWorldbook(sampleOutline().WorldCategories)
	if wb != "### 城市\n- 下城区: 终年不见天日" {
		t.Errorf("worldbook = %q", wb)
	}

	short := StringifyCharacters(sampleOutline().Characters[:1], false)
	want := "#### 林默 (主角)\n- **核心概念:** 失忆的侦探\n- **故事功能:** 推动调查\n- **长期野心:** 找回过去"
	if short != want {
		t.Errorf("characters = %q", short)
	}
	full := StringifyCharacters(sampleOutline().Characters, true)
	if !strings.Contains(full, "\n\n---\n\n") || !strings.Contains(full, `"coreConcept": "记忆商人"`) {
		t.Errorf("full characters = %q", full)
	}

	if HistorySummary(nil) != "这是第一章。" {
		t.Errorf("empty history placeholder")
	}
	long := strings.Repeat("雨", 200)
	got := HistorySummary([]entity.GeneratedChapter{{Title: "一", Content: long}})
	if got != "#### 一\n"+strings.Repeat("雨", 150)+"..." {
		t.Errorf("history excerpt wrong: %q", got)
	}
}

func TestChapterVars_ForbiddenWords(t *testing.T) {
	opts := entity.DefaultStoryOptions()
	opts.ForbiddenWords = []string{"仿佛", "似乎"}
	msgs, err := NewRegistry().Render(context.Background(), PromptChapter,
		ChapterVars(sampleOutline(), nil, opts, entity.DetailedOutlineAnalysis{}))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(msgs[0].Content, "**仿佛, 似乎**") {
		t.Errorf("forbidden words not rendered in system prompt")
	}
	if !strings.Contains(msgs[0].Content, "[START_CHAPTER_CONTENT]") {
		t.Errorf("system prompt should describe the content marker")
	}
	if !strings.Contains(msgs[1].Content, "这是第一章。") {
		t.Errorf("user prompt should note the first chapter")
	}
}
