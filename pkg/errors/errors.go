// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 资源错误 (3xxx)
	CodeSessionNotFound ErrorCode = "3001"
	CodeChapterNotFound ErrorCode = "3002"
	CodeOutlineNotFound ErrorCode = "3003"

	// 创作流程错误 (4xxx)
	CodeGenerationFailed    ErrorCode = "4001"
	CodeValidationFailed    ErrorCode = "4002"
	CodeMarkerMissing       ErrorCode = "4003"
	CodeJSONParseFailed     ErrorCode = "4004"
	CodeLLMCallFailed       ErrorCode = "4005"
	CodeModelNotSelected    ErrorCode = "4006"
	CodeUnknownAction       ErrorCode = "4007"
	CodeMissingCredentials  ErrorCode = "4008"
	CodeSessionBusy         ErrorCode = "4009"
	CodeInvalidState        ErrorCode = "4010"
	CodeGenerationAborted   ErrorCode = "4011"
	CodeStoppedAfterThought ErrorCode = "4012"
	CodeChapterLimitReached ErrorCode = "4013"
	CodeOperationTimeout    ErrorCode = "4014"

	// 外部服务错误 (5xxx)
	CodeDatabaseError      ErrorCode = "5001"
	CodeCacheError         ErrorCode = "5002"
	CodeMessagingError     ErrorCode = "5003"
	CodeUpstreamError      ErrorCode = "5005"
	CodeUpstreamTimeout    ErrorCode = "5006"
	CodeUpstreamAuth       ErrorCode = "5007"
	CodeUpstreamRateLimit  ErrorCode = "5008"
	CodeUpstreamBadRequest ErrorCode = "5009"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，便于 errors.Is 匹配预定义错误
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithStatus 覆盖 HTTP 状态码
func (e *AppError) WithStatus(status int) *AppError {
	cp := *e
	cp.HTTPStatus = status
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf 使用格式化消息创建应用错误
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// StatusClientClosedRequest 生成被用户中止时使用的非标准状态码
const StatusClientClosedRequest = 499

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeModelNotSelected, CodeUnknownAction, CodeMissingCredentials,
		CodeChapterLimitReached, CodeUpstreamBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeUpstreamAuth:
		return http.StatusUnauthorized
	case CodeNotFound, CodeSessionNotFound, CodeChapterNotFound, CodeOutlineNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeSessionBusy, CodeInvalidState:
		return http.StatusConflict
	case CodeTooManyRequests, CodeUpstreamRateLimit:
		return http.StatusTooManyRequests
	case CodeMarkerMissing, CodeJSONParseFailed, CodeValidationFailed, CodeStoppedAfterThought:
		return http.StatusUnprocessableEntity
	case CodeUpstreamTimeout, CodeOperationTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamError:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeGenerationAborted:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrSessionNotFound = New(CodeSessionNotFound, "session not found")
	ErrChapterNotFound = New(CodeChapterNotFound, "chapter not found")

	ErrSessionBusy          = New(CodeSessionBusy, "当前会话有正在进行的生成任务，请等待完成或先中止。")
	ErrGenerationAborted    = New(CodeGenerationAborted, "generation aborted")
	ErrMissingCredentials   = New(CodeMissingCredentials, "API 地址和密钥为必填项。请在“设置”中填写您的 API 凭据。")
	ErrStoppedAfterThinking = New(CodeStoppedAfterThought, "错误: AI在完成思考过程后停止了，未能生成正文。请尝试【重新生成】。")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// IsAborted 判断错误是否来自用户中止
func IsAborted(err error) bool {
	return stderrors.Is(err, ErrGenerationAborted)
}
