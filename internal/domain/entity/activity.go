package entity

import "time"

// SessionActivity 由 job-worker 根据工作台事件累积的会话活动统计
type SessionActivity struct {
	SessionID         string    `json:"session_id"`
	Chapters          int       `json:"chapters"`
	Regenerations     int       `json:"regenerations"`
	Words             int       `json:"words"`
	OutlineVersions   int       `json:"outline_versions"`
	LastCritiqueScore float64   `json:"last_critique_score"`
	LastChapterTitle  string    `json:"last_chapter_title,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}
