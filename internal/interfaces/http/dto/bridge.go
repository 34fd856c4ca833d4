package dto

import (
	"z-novel-studio/internal/application/bridge"
)

// BridgeRequest 桥接请求体
type BridgeRequest struct {
	Action  string          `json:"action" binding:"required"`
	Payload *bridge.Payload `json:"payload"`
}

// BridgeError 桥接接口的错误响应，与成功响应一样不使用统一信封
type BridgeError struct {
	Error string `json:"error"`
}

// BridgeChunk 流式桥接的一行 NDJSON
type BridgeChunk struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}
