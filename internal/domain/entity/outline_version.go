package entity

import "time"

// OutlineVersion 细纲优化历史中的一条持久化记录
// 每个 (SessionID, ChapterTitle) 的版本号从 1 开始逐次加 1，只追加不修改
type OutlineVersion struct {
	ID           string                  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID    string                  `json:"session_id" gorm:"type:uuid;not null;uniqueIndex:idx_outline_versions_title_version"`
	ChapterTitle string                  `json:"chapter_title" gorm:"type:varchar(255);not null;uniqueIndex:idx_outline_versions_title_version"`
	Version      int                     `json:"version" gorm:"not null;uniqueIndex:idx_outline_versions_title_version"`
	Outline      DetailedOutlineAnalysis `json:"outline" gorm:"type:jsonb;serializer:json;not null"`
	Critique     OutlineCritique         `json:"critique" gorm:"type:jsonb;serializer:json;not null"`
	UserInput    string                  `json:"user_input,omitempty" gorm:"type:text"`
	CreatedAt    time.Time               `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (OutlineVersion) TableName() string {
	return "outline_versions"
}

// Entry 转换为优化记录
func (v *OutlineVersion) Entry() OptimizationEntry {
	return OptimizationEntry{Version: v.Version, Outline: v.Outline, Critique: v.Critique}
}
