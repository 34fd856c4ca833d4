package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/workflow/node"
)

const (
	emptyPlaceholder  = "暂无。"
	firstChapterNote  = "这是第一章。"
	historyExcerptLen = 150
)

// StringifyWorldbook 将世界书渲染为 Markdown 列表
func StringifyWorldbook(categories []entity.WorldCategory) string {
	if len(categories) == 0 {
		return emptyPlaceholder
	}
	blocks := make([]string, 0, len(categories))
	for _, cat := range categories {
		lines := make([]string, 0, len(cat.Entries))
		for _, e := range cat.Entries {
			lines = append(lines, fmt.Sprintf("- %s: %s", e.Key, e.Value))
		}
		blocks = append(blocks, "### "+cat.Name+"\n"+strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// StringifyCharacters 渲染角色列表；full 为 true 时输出完整 JSON 档案
func StringifyCharacters(characters []entity.CharacterProfile, full bool) string {
	if len(characters) == 0 {
		return emptyPlaceholder
	}
	blocks := make([]string, 0, len(characters))
	if full {
		for i := range characters {
			blocks = append(blocks, PrettyJSON(characters[i]))
		}
		return strings.Join(blocks, "\n\n---\n\n")
	}
	for _, c := range characters {
		blocks = append(blocks, fmt.Sprintf("#### %s (%s)\n- **核心概念:** %s\n- **故事功能:** %s\n- **长期野心:** %s",
			c.Name, c.Role, c.CoreConcept, c.StoryFunction, c.LongTermAmbition))
	}
	return strings.Join(blocks, "\n\n")
}

// PrettyJSON 以两空格缩进序列化，不转义 HTML 字符
func PrettyJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimRight(buf.String(), "\n")
}

// AuthorPersona 返回仿写作者对应的人格设定，未知风格使用默认人格
func AuthorPersona(style string) string {
	text, err := readEmbeddedText("templates/persona_default.txt")
	if err != nil {
		return ""
	}
	return text
}

// HumanWritingGuidelines 返回反 AI 腔写作守则
func HumanWritingGuidelines() string {
	text, err := readEmbeddedText("templates/human_writing_guidelines.txt")
	if err != nil {
		return ""
	}
	return text
}

// HistorySummary 渲染前情提要，每章截取前 150 字
func HistorySummary(chapters []entity.GeneratedChapter) string {
	if len(chapters) == 0 {
		return firstChapterNote
	}
	blocks := make([]string, 0, len(chapters))
	for _, c := range chapters {
		blocks = append(blocks, "#### "+c.Title+"\n"+node.TruncateByRunes(c.Content, historyExcerptLen)+"...")
	}
	return strings.Join(blocks, "\n\n")
}

// ChapterList 渲染已有章节列表，如 “第1章: 标题; 第2章: 标题”
func ChapterList(chapters []entity.GeneratedChapter) string {
	items := make([]string, 0, len(chapters))
	for i, c := range chapters {
		items = append(items, "第"+strconv.Itoa(i+1)+"章: "+c.Title)
	}
	return strings.Join(items, "; ")
}

func outlineOrEmpty(o *entity.StoryOutline) entity.StoryOutline {
	if o == nil {
		return entity.StoryOutline{}
	}
	return *o
}

func SearchVars(storyCore string, opts entity.StoryOptions) map[string]any {
	return map[string]any{
		"story_core":   storyCore,
		"style":        opts.Style,
		"length":       opts.Length,
		"author_style": opts.AuthorStyle,
	}
}

func ChapterTitlesVars(outline *entity.StoryOutline, chapterCount int, opts entity.StoryOptions) map[string]any {
	o := outlineOrEmpty(outline)
	return map[string]any{
		"plot_synopsis": o.PlotSynopsis,
		"chapter_count": chapterCount,
		"author_style":  opts.AuthorStyle,
		"from_chapter":  chapterCount + 1,
		"to_chapter":    chapterCount + 10,
	}
}

// DetailedOutlineVars previous 为 nil 表示首轮生成
func DetailedOutlineVars(outline *entity.StoryOutline, chapters []entity.GeneratedChapter, chapterTitle string,
	previous *entity.OptimizationEntry, userInput string) map[string]any {
	o := outlineOrEmpty(outline)
	vars := map[string]any{
		"plot_synopsis":        o.PlotSynopsis,
		"worldbook":            StringifyWorldbook(o.WorldCategories),
		"characters":           StringifyCharacters(o.Characters, false),
		"chapter_list":         ChapterList(chapters),
		"chapter_title":        chapterTitle,
		"previous_outline":     "",
		"previous_suggestions": "",
		"user_input":           strings.TrimSpace(userInput),
	}
	if previous != nil {
		vars["previous_outline"] = PrettyJSON(previous.Outline)
		vars["previous_suggestions"] = PrettyJSON(previous.Critique.ImprovementSuggestions)
	}
	return vars
}

func CritiqueVars(draft entity.DetailedOutlineAnalysis, outline *entity.StoryOutline, chapterTitle string, opts entity.StoryOptions) map[string]any {
	o := outlineOrEmpty(outline)
	return map[string]any{
		"chapter_title": chapterTitle,
		"plot_synopsis": o.PlotSynopsis,
		"author_style":  opts.AuthorStyle,
		"outline_json":  PrettyJSON(draft),
	}
}

func ChapterVars(outline *entity.StoryOutline, history []entity.GeneratedChapter, opts entity.StoryOptions,
	detailed entity.DetailedOutlineAnalysis) map[string]any {
	o := outlineOrEmpty(outline)
	return map[string]any{
		"persona":         AuthorPersona(opts.AuthorStyle),
		"guidelines":      HumanWritingGuidelines(),
		"forbidden_words": strings.Join(opts.ForbiddenWords, ", "),
		"title":           o.Title,
		"plot_synopsis":   o.PlotSynopsis,
		"worldbook":       StringifyWorldbook(o.WorldCategories),
		"characters":      StringifyCharacters(o.Characters, false),
		"history":         HistorySummary(history),
		"outline_json":    PrettyJSON(detailed),
		"author_style":    opts.AuthorStyle,
	}
}

func EditTextVars(originalText, instruction string, opts entity.StoryOptions) map[string]any {
	return map[string]any{
		"persona":       AuthorPersona(opts.AuthorStyle),
		"instruction":   instruction,
		"original_text": originalText,
	}
}

func CharacterInteractionVars(c1, c2 entity.CharacterProfile, outline *entity.StoryOutline, opts entity.StoryOptions) map[string]any {
	o := outlineOrEmpty(outline)
	return map[string]any{
		"persona":       AuthorPersona(opts.AuthorStyle),
		"char1_name":    c1.Name,
		"char1_concept": c1.CoreConcept,
		"char2_name":    c2.Name,
		"char2_concept": c2.CoreConcept,
		"plot_synopsis": o.PlotSynopsis,
	}
}

func NewCharacterVars(outline *entity.StoryOutline, characterPrompt string) map[string]any {
	o := outlineOrEmpty(outline)
	names := make([]string, 0, len(o.Characters))
	for _, c := range o.Characters {
		names = append(names, c.Name)
	}
	return map[string]any{
		"character_prompt": characterPrompt,
		"plot_synopsis":    o.PlotSynopsis,
		"character_names":  strings.Join(names, "、 "),
	}
}

func WorldbookSuggestionsVars(outline *entity.StoryOutline) map[string]any {
	o := outlineOrEmpty(outline)
	return map[string]any{
		"plot_synopsis": o.PlotSynopsis,
		"worldbook":     StringifyWorldbook(o.WorldCategories),
	}
}

func CharacterArcVars(character entity.CharacterProfile, outline *entity.StoryOutline) map[string]any {
	o := outlineOrEmpty(outline)
	return map[string]any{
		"plot_synopsis":   o.PlotSynopsis,
		"characters_full": StringifyCharacters(o.Characters, true),
		"character_json":  PrettyJSON(character),
	}
}

func NarrativeToolboxVars(detailed entity.DetailedOutlineAnalysis, outline *entity.StoryOutline) map[string]any {
	o := outlineOrEmpty(outline)
	return map[string]any{
		"plot_synopsis": o.PlotSynopsis,
		"worldbook":     StringifyWorldbook(o.WorldCategories),
		"outline_json":  PrettyJSON(detailed),
	}
}
