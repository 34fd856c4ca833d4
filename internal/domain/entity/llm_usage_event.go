package entity

import "time"

// LLMUsageStatus 调用结果
type LLMUsageStatus string

const (
	LLMUsageStatusSuccess LLMUsageStatus = "success"
	LLMUsageStatusError   LLMUsageStatus = "error"
	LLMUsageStatusAborted LLMUsageStatus = "aborted"
)

// LLMUsageEvent 一次上游模型调用的用量记录
type LLMUsageEvent struct {
	ID               string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID        string         `json:"session_id,omitempty" gorm:"type:varchar(64);index"`
	Action           string         `json:"action" gorm:"type:varchar(64);index;not null"`
	Model            string         `json:"model" gorm:"type:varchar(128);not null"`
	TokensPrompt     int            `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int            `json:"tokens_completion" gorm:"not null;default:0"`
	DurationMs       int            `json:"duration_ms" gorm:"not null;default:0"`
	Status           LLMUsageStatus `json:"status" gorm:"type:varchar(16);not null;default:'success'"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}
