// Package bridge 实现单入口的动作桥接：按动作选择模型与提示词，调用上游并整理结果
package bridge

import (
	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/workflow/prompt"
)

// Action 桥接动作名
type Action string

const (
	ActionListModels                Action = "listModels"
	ActionPerformSearch             Action = "performSearch"
	ActionGenerateChapterTitles     Action = "generateChapterTitles"
	ActionGenerateDetailedOutline   Action = "generateDetailedOutline"
	ActionCritiqueDetailedOutline   Action = "critiqueDetailedOutline"
	ActionEditChapterText           Action = "editChapterText"
	ActionGenerateNewCharacter      Action = "generateNewCharacterProfile"
	ActionWorldbookSuggestions      Action = "getWorldbookSuggestions"
	ActionCharacterArcSuggestions   Action = "getCharacterArcSuggestions"
	ActionNarrativeToolbox          Action = "getNarrativeToolboxSuggestions"
	ActionGenerateChapter           Action = "generateChapter"
	ActionGenerateCharacterDialogue Action = "generateCharacterInteraction"
)

type modelRole int

const (
	roleSearch modelRole = iota
	rolePlanning
	roleWriting
)

type actionSpec struct {
	role   modelRole
	stream bool
	prompt prompt.PromptID
}

var actionTable = map[Action]actionSpec{
	ActionPerformSearch:             {role: roleSearch, prompt: prompt.PromptSearch},
	ActionGenerateChapterTitles:     {role: rolePlanning, prompt: prompt.PromptChapterTitles},
	ActionGenerateDetailedOutline:   {role: rolePlanning, prompt: prompt.PromptDetailedOutline},
	ActionCritiqueDetailedOutline:   {role: rolePlanning, prompt: prompt.PromptCritiqueOutline},
	ActionEditChapterText:           {role: roleWriting, prompt: prompt.PromptEditText},
	ActionGenerateNewCharacter:      {role: rolePlanning, prompt: prompt.PromptNewCharacter},
	ActionWorldbookSuggestions:      {role: rolePlanning, prompt: prompt.PromptWorldbookSuggestions},
	ActionCharacterArcSuggestions:   {role: rolePlanning, prompt: prompt.PromptCharacterArc},
	ActionNarrativeToolbox:          {role: rolePlanning, prompt: prompt.PromptNarrativeToolbox},
	ActionGenerateChapter:           {role: roleWriting, stream: true, prompt: prompt.PromptChapter},
	ActionGenerateCharacterDialogue: {role: rolePlanning, stream: true, prompt: prompt.PromptCharacterInteraction},
}

// IsStreaming 返回动作是否为流式输出；未知动作 known 为 false
func IsStreaming(action Action) (stream bool, known bool) {
	if action == ActionListModels {
		return false, true
	}
	entry, ok := actionTable[action]
	return entry.stream, ok
}

func (r modelRole) model(opts entity.StoryOptions) string {
	switch r {
	case roleSearch:
		return opts.SearchModel
	case roleWriting:
		return opts.WritingModel
	default:
		return opts.PlanningModel
	}
}
