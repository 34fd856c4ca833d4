package entity

import (
	"time"

	"github.com/lib/pq"
)

// GameState 会话状态
type GameState string

const (
	GameStateInitial          GameState = "INITIAL"
	GameStatePlanning         GameState = "PLANNING"
	GameStatePlanningComplete GameState = "PLANNING_COMPLETE"
	GameStateWriting          GameState = "WRITING"
	GameStateChapterComplete  GameState = "CHAPTER_COMPLETE"
)

// IsRunning 判断是否处于生成中的状态
func (s GameState) IsRunning() bool {
	return s == GameStatePlanning || s == GameStateWriting
}

// Session 创作会话，对应一部作品的完整工作区
type Session struct {
	ID               string             `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	State            GameState          `json:"gameState" gorm:"type:varchar(32);not null;default:'INITIAL'"`
	StoryCore        string             `json:"storyCore" gorm:"type:text"`
	Options          StoryOptions       `json:"storyOptions" gorm:"type:jsonb;serializer:json"`
	Outline          *StoryOutline      `json:"storyOutline,omitempty" gorm:"type:jsonb;serializer:json"`
	Chapters         []GeneratedChapter `json:"chapters" gorm:"type:jsonb;serializer:json"`
	GeneratedTitles  pq.StringArray     `json:"generatedTitles" gorm:"type:text[]"`
	DetailedOutlines map[string]string  `json:"outlineHistory" gorm:"type:jsonb;serializer:json"`
	ActiveTitle      string             `json:"activeOutlineTitle,omitempty" gorm:"type:varchar(255)"`
	LastError        string             `json:"lastError,omitempty" gorm:"type:text"`
	CreatedAt        time.Time          `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt        time.Time          `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Session) TableName() string {
	return "studio_sessions"
}

// NewSession 创建新会话
func NewSession(options StoryOptions) *Session {
	now := time.Now()
	return &Session{
		State:            GameStateInitial,
		Options:          options,
		Chapters:         []GeneratedChapter{},
		GeneratedTitles:  pq.StringArray{},
		DetailedOutlines: map[string]string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Clone 深拷贝会话，供失败回滚使用
func (s *Session) Clone() *Session {
	cp := *s
	if s.Outline != nil {
		o := *s.Outline
		o.Characters = append([]CharacterProfile(nil), s.Outline.Characters...)
		o.WorldCategories = append([]WorldCategory(nil), s.Outline.WorldCategories...)
		cp.Outline = &o
	}
	cp.Chapters = append([]GeneratedChapter{}, s.Chapters...)
	cp.GeneratedTitles = append(pq.StringArray{}, s.GeneratedTitles...)
	cp.DetailedOutlines = make(map[string]string, len(s.DetailedOutlines))
	for k, v := range s.DetailedOutlines {
		cp.DetailedOutlines[k] = v
	}
	cp.Options.ForbiddenWords = append([]string(nil), s.Options.ForbiddenWords...)
	return &cp
}

// SettledState 返回不处于生成中的最近稳定状态
func (s *Session) SettledState() GameState {
	switch {
	case len(s.Chapters) > 0:
		return GameStateChapterComplete
	case s.Outline != nil:
		return GameStatePlanningComplete
	default:
		return GameStateInitial
	}
}

// LastChapter 返回最后一章
func (s *Session) LastChapter() (*GeneratedChapter, bool) {
	if len(s.Chapters) == 0 {
		return nil, false
	}
	return &s.Chapters[len(s.Chapters)-1], true
}

// FindChapter 按 ID 查找章节
func (s *Session) FindChapter(id int) (*GeneratedChapter, bool) {
	for i := range s.Chapters {
		if s.Chapters[i].ID == id {
			return &s.Chapters[i], true
		}
	}
	return nil, false
}

// ResetDraft 清空章节、标题与细纲，用于重新规划后
func (s *Session) ResetDraft() {
	s.Chapters = []GeneratedChapter{}
	s.GeneratedTitles = pq.StringArray{}
	s.DetailedOutlines = map[string]string{}
	s.ActiveTitle = ""
}
