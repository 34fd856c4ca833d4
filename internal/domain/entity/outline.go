package entity

// 细纲与章节文本中使用的信标
const (
	MarkerOutlineStart = "[START_DETAILED_OUTLINE_JSON]"
	MarkerOutlineEnd   = "[END_DETAILED_OUTLINE_JSON]"
	MarkerThought      = "[START_THOUGHT_PROCESS]"
	MarkerContent      = "[START_CHAPTER_CONTENT]"
)

// PlotPoint 细纲中的单个剧情点
type PlotPoint struct {
	Summary               string `json:"summary"`
	EmotionalCurve        string `json:"emotionalCurve"`
	EmotionalPayoff       string `json:"emotionalPayoff"`
	MaslowsNeeds          string `json:"maslowsNeeds"`
	WebNovelElements      string `json:"webNovelElements"`
	ConflictSource        string `json:"conflictSource"`
	ShowDontTell          string `json:"showDontTell"`
	DialogueAndSubtext    string `json:"dialogueAndSubtext"`
	LogicSolidification   string `json:"logicSolidification"`
	EmotionAndInteraction string `json:"emotionAndInteraction"`
	PacingControl         string `json:"pacingControl"`
	WorldviewGlimpse      string `json:"worldviewGlimpse"`
}

// NextChapterPreview 下一章预告
type NextChapterPreview struct {
	NextOutlineIdea string `json:"nextOutlineIdea"`
	CharacterNeeds  string `json:"characterNeeds"`
}

// DetailedOutlineAnalysis 单章细纲
type DetailedOutlineAnalysis struct {
	PlotPoints         []PlotPoint        `json:"plotPoints"`
	NextChapterPreview NextChapterPreview `json:"nextChapterPreview"`
}

// ScoreItem 评审维度得分
type ScoreItem struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}

// Suggestion 评审修改建议
type Suggestion struct {
	Area       string `json:"area"`
	Suggestion string `json:"suggestion"`
}

// OutlineCritique 细纲评审结果
type OutlineCritique struct {
	ThoughtProcess         string       `json:"thoughtProcess"`
	OverallScore           float64      `json:"overallScore"`
	ScoringBreakdown       []ScoreItem  `json:"scoringBreakdown"`
	ImprovementSuggestions []Suggestion `json:"improvementSuggestions"`
}

// OptimizationEntry 一轮“生成-评审”的结果
type OptimizationEntry struct {
	Version  int                     `json:"version"`
	Outline  DetailedOutlineAnalysis `json:"outline"`
	Critique OutlineCritique         `json:"critique"`
}

// FinalDetailedOutline 最终细纲，附带版本号和完整优化历史
type FinalDetailedOutline struct {
	DetailedOutlineAnalysis
	FinalVersion        int                 `json:"finalVersion"`
	OptimizationHistory []OptimizationEntry `json:"optimizationHistory"`
}

// LatestEntry 返回最近一次优化记录
func (f *FinalDetailedOutline) LatestEntry() (OptimizationEntry, bool) {
	if f == nil || len(f.OptimizationHistory) == 0 {
		return OptimizationEntry{}, false
	}
	return f.OptimizationHistory[len(f.OptimizationHistory)-1], true
}
