package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"

	apperrors "z-novel-studio/pkg/errors"
)

// UpstreamError 上游返回的非 2xx 响应
type UpstreamError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Upstream API Error: %d - %s", e.StatusCode, e.Body)
}

// ErrEmptyResponse 上游返回了空内容
var ErrEmptyResponse = errors.New("Upstream API returned an empty response.")

// asUpstreamError 从 openai-go 的错误中提取状态码与原始响应体
func asUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return nil, false
	}
	body := apiErr.RawJSON()
	msg := apiErr.Message
	if msg == "" {
		msg = messageFromBody(body)
	}
	return &UpstreamError{StatusCode: apiErr.StatusCode, Message: msg, Body: body}, true
}

// messageFromBody 尝试读取 {"error":{"message":...}} 或 {"message":...}
func messageFromBody(body string) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return ""
	}
	if len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && s != "" {
			return s
		}
	}
	return payload.Message
}

// Classify 将上游错误转换为面向用户的 AppError。
// 上下文取消原样返回，由调用方按中止处理。
func Classify(err error, model string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, ErrEmptyResponse) {
		return apperrors.Wrap(err, apperrors.CodeUpstreamError, ErrEmptyResponse.Error()).
			WithStatus(http.StatusInternalServerError)
	}

	ue, ok := asUpstreamError(err)
	if !ok {
		// 本地时限到期，上游并未返回 504/524
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.Wrap(err, apperrors.CodeOperationTimeout, localTimeoutMessage(model))
		}
		return apperrors.Wrap(err, apperrors.CodeLLMCallFailed, err.Error()).
			WithStatus(http.StatusInternalServerError)
	}

	switch ue.StatusCode {
	case http.StatusGatewayTimeout, 524:
		return apperrors.Wrap(ue, apperrors.CodeUpstreamTimeout, timeoutMessage(model))
	case http.StatusUnauthorized:
		return apperrors.Wrap(ue, apperrors.CodeUpstreamAuth, "API密钥无效或未授权。请在设置中检查您的API密钥。")
	case http.StatusTooManyRequests:
		return apperrors.Wrap(ue, apperrors.CodeUpstreamRateLimit, "已达到API速率限制 (Rate Limit Exceeded)。请稍后重试。")
	case http.StatusBadRequest:
		detail := ue.Message
		if detail == "" && json.Valid([]byte(ue.Body)) {
			detail = strings.TrimSpace(ue.Body)
		}
		if detail == "" {
			detail = "上游API报告了一个请求错误。"
		}
		return apperrors.Wrap(ue, apperrors.CodeUpstreamBadRequest, "请求错误 (Bad Request): "+detail)
	default:
		msg := fmt.Sprintf("上游API服务器错误 (状态码: %d)。请稍后重试。", ue.StatusCode)
		status := http.StatusInternalServerError
		if ue.StatusCode >= 500 {
			status = http.StatusBadGateway
		}
		return apperrors.Wrap(ue, apperrors.CodeUpstreamError, msg).WithStatus(status)
	}
}

func timeoutMessage(model string) string {
	return fmt.Sprintf("模型 [%s] 响应超时 (Gateway Timeout)。建议：\n1. 减少“最大优化次数”。\n2. 尝试使用更快的模型（如Flash）。", model)
}

func localTimeoutMessage(model string) string {
	return fmt.Sprintf("模型 [%s] 的请求超过了本服务配置的等待时限，已停止等待。可调大或关闭 upstream.timeout 与 studio.op_timeout。", model)
}
