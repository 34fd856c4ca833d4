// Package entity 定义领域实体
package entity

import (
	"encoding/json"
	"strings"
)

// DefaultForbiddenWords 默认禁用词表，对应常见的 AI 写作腔
var DefaultForbiddenWords = []string{
	"冰", "指尖", "尖", "利", "钉", "凉", "惨白", "僵", "颤", "眸", "眼底", "空气",
	"仿佛", "似乎", "呼吸", "心跳", "肌肉", "绷紧", "深邃", "清冷", "炽热", "精致", "完美", "绝美",
}

// 默认创作参数
const (
	DefaultStyle       = "爽文 (重生复仇打脸)"
	DefaultLength      = "短篇(15-30章)"
	DefaultAuthorStyle = "默认风格"
	DefaultTemperature = 1.2
	DefaultDiversity   = 2.0
	DefaultTopK        = 512
)

// StoryOptions 创作参数与上游凭据
type StoryOptions struct {
	APIBaseURL     string   `json:"apiBaseUrl"`
	APIKey         string   `json:"apiKey"`
	SearchModel    string   `json:"searchModel"`
	PlanningModel  string   `json:"planningModel"`
	WritingModel   string   `json:"writingModel"`
	Style          string   `json:"style"`
	Length         string   `json:"length"`
	AuthorStyle    string   `json:"authorStyle"`
	Temperature    float64  `json:"temperature"`
	Diversity      float64  `json:"diversity"`
	TopK           int      `json:"topK"`
	ForbiddenWords []string `json:"forbiddenWords"`
}

// DefaultStoryOptions 返回默认创作参数
func DefaultStoryOptions() StoryOptions {
	words := make([]string, len(DefaultForbiddenWords))
	copy(words, DefaultForbiddenWords)
	return StoryOptions{
		Style:          DefaultStyle,
		Length:         DefaultLength,
		AuthorStyle:    DefaultAuthorStyle,
		Temperature:    DefaultTemperature,
		Diversity:      DefaultDiversity,
		TopK:           DefaultTopK,
		ForbiddenWords: words,
	}
}

// Merge 用 override 中的非零字段覆盖当前参数，用于配置层叠；请求中的部分更新使用 StoryOptionsPatch
func (o StoryOptions) Merge(override StoryOptions) StoryOptions {
	merged := o
	setString := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setString(&merged.APIBaseURL, override.APIBaseURL)
	setString(&merged.APIKey, override.APIKey)
	setString(&merged.SearchModel, override.SearchModel)
	setString(&merged.PlanningModel, override.PlanningModel)
	setString(&merged.WritingModel, override.WritingModel)
	setString(&merged.Style, override.Style)
	setString(&merged.Length, override.Length)
	setString(&merged.AuthorStyle, override.AuthorStyle)
	if override.Temperature != 0 {
		merged.Temperature = override.Temperature
	}
	if override.Diversity != 0 {
		merged.Diversity = override.Diversity
	}
	if override.TopK != 0 {
		merged.TopK = override.TopK
	}
	if override.ForbiddenWords != nil {
		merged.ForbiddenWords = override.ForbiddenWords
	}
	return merged
}

// StoryOptionsPatch 会话参数的部分更新，nil 字段保持原值，显式的零值会覆盖原值
type StoryOptionsPatch struct {
	APIBaseURL     *string   `json:"apiBaseUrl,omitempty"`
	APIKey         *string   `json:"apiKey,omitempty"`
	SearchModel    *string   `json:"searchModel,omitempty"`
	PlanningModel  *string   `json:"planningModel,omitempty"`
	WritingModel   *string   `json:"writingModel,omitempty"`
	Style          *string   `json:"style,omitempty"`
	Length         *string   `json:"length,omitempty"`
	AuthorStyle    *string   `json:"authorStyle,omitempty"`
	Temperature    *float64  `json:"temperature,omitempty"`
	Diversity      *float64  `json:"diversity,omitempty"`
	TopK           *int      `json:"topK,omitempty"`
	ForbiddenWords *[]string `json:"forbiddenWords,omitempty"`
}

// ApplyTo 将补丁中出现的字段写入 o。topK 为 0 表示不发送 top_k
func (p StoryOptionsPatch) ApplyTo(o StoryOptions) StoryOptions {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&o.APIBaseURL, p.APIBaseURL)
	set(&o.APIKey, p.APIKey)
	set(&o.SearchModel, p.SearchModel)
	set(&o.PlanningModel, p.PlanningModel)
	set(&o.WritingModel, p.WritingModel)
	set(&o.Style, p.Style)
	set(&o.Length, p.Length)
	set(&o.AuthorStyle, p.AuthorStyle)
	if p.Temperature != nil {
		o.Temperature = *p.Temperature
	}
	if p.Diversity != nil {
		o.Diversity = *p.Diversity
	}
	if p.TopK != nil {
		o.TopK = *p.TopK
	}
	if p.ForbiddenWords != nil {
		words := make([]string, len(*p.ForbiddenWords))
		copy(words, *p.ForbiddenWords)
		o.ForbiddenWords = words
	}
	return o
}

// Redacted 返回隐藏密钥后的副本，用于对外展示
func (o StoryOptions) Redacted() StoryOptions {
	cp := o
	if len(cp.APIKey) > 8 {
		cp.APIKey = cp.APIKey[:4] + "****" + cp.APIKey[len(cp.APIKey)-4:]
	} else if cp.APIKey != "" {
		cp.APIKey = "****"
	}
	return cp
}

// KeyValue 通用键值对
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WorldCategory 世界书分类
type WorldCategory struct {
	Name    string     `json:"name"`
	Entries []KeyValue `json:"entries"`
}

// CharacterProfile 角色档案
type CharacterProfile struct {
	Role               string     `json:"role"`
	Name               string     `json:"name"`
	CoreConcept        string     `json:"coreConcept"`
	ImmediateGoal      string     `json:"immediateGoal,omitempty"`
	LongTermAmbition   string     `json:"longTermAmbition,omitempty"`
	HiddenBurden       string     `json:"hiddenBurden,omitempty"`
	StoryFunction      string     `json:"storyFunction,omitempty"`
	DefiningObject     string     `json:"definingObject,omitempty"`
	PhysicalAppearance string     `json:"physicalAppearance,omitempty"`
	BehavioralQuirks   string     `json:"behavioralQuirks,omitempty"`
	SpeechPattern      string     `json:"speechPattern,omitempty"`
	OriginFragment     string     `json:"originFragment,omitempty"`
	WhatTheyRisk       string     `json:"whatTheyRisk,omitempty"`
	KeyRelationship    string     `json:"keyRelationship,omitempty"`
	MainAntagonist     string     `json:"mainAntagonist,omitempty"`
	PotentialChange    string     `json:"potentialChange,omitempty"`
	CustomFields       []KeyValue `json:"customFields,omitempty"`
}

// StoryOutline 故事总纲（设定集）
type StoryOutline struct {
	Title              string             `json:"title"`
	GenreAnalysis      string             `json:"genreAnalysis"`
	WorldConcept       string             `json:"worldConcept"`
	PlotSynopsis       string             `json:"plotSynopsis"`
	Characters         []CharacterProfile `json:"characters"`
	WorldCategories    []WorldCategory    `json:"worldCategories"`
	WritingMethodology json.RawMessage    `json:"writingMethodology,omitempty"`
	AntiPatternGuide   json.RawMessage    `json:"antiPatternGuide,omitempty"`
}

// FindCharacter 按名称查找角色
func (o *StoryOutline) FindCharacter(name string) (*CharacterProfile, bool) {
	if o == nil {
		return nil, false
	}
	for i := range o.Characters {
		if o.Characters[i].Name == name {
			return &o.Characters[i], true
		}
	}
	return nil, false
}

// IsComplete 判断总纲是否包含写作所需的全部结构
func (o *StoryOutline) IsComplete() bool {
	return o != nil &&
		strings.TrimSpace(o.PlotSynopsis) != "" &&
		len(o.Characters) > 0 &&
		len(o.WorldCategories) > 0
}
