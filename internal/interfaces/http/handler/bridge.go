// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"z-novel-studio/internal/application/bridge"
	"z-novel-studio/internal/interfaces/http/dto"
	apperrors "z-novel-studio/pkg/errors"
)

// BridgeExecutor 桥接动作执行，由 bridge.Service 实现
type BridgeExecutor interface {
	Execute(ctx context.Context, action bridge.Action, p *bridge.Payload) (any, error)
	Stream(ctx context.Context, action bridge.Action, p *bridge.Payload) (*schema.StreamReader[*schema.Message], error)
}

// BridgeHandler 单入口动作桥接处理器
type BridgeHandler struct {
	bridge BridgeExecutor
}

// NewBridgeHandler 创建桥接处理器
func NewBridgeHandler(executor BridgeExecutor) *BridgeHandler {
	return &BridgeHandler{bridge: executor}
}

// Handle 执行桥接动作
// @Summary 动作桥接
// @Description 按 action 调用上游模型；流式动作以 NDJSON 逐行返回 {"text"}，出错时写出一行 {"error"}
// @Tags Bridge
// @Accept json
// @Produce json
// @Param body body dto.BridgeRequest true "动作与载荷"
// @Success 200 "动作结果；listModels 返回模型 ID 数组"
// @Failure 400 {object} dto.BridgeError
// @Failure 500 {object} dto.BridgeError
// @Router /api/bridge [post]
func (h *BridgeHandler) Handle(c *gin.Context) {
	var req dto.BridgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.BridgeError{Error: "Invalid request body: " + err.Error()})
		return
	}
	if req.Payload == nil {
		req.Payload = &bridge.Payload{}
	}

	action := bridge.Action(req.Action)
	streaming, known := bridge.IsStreaming(action)
	if !known {
		h.fail(c, bridge.UnknownActionError(action))
		return
	}
	if streaming {
		h.stream(c, action, req.Payload)
		return
	}

	result, err := h.bridge.Execute(c.Request.Context(), action, req.Payload)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *BridgeHandler) stream(c *gin.Context, action bridge.Action, p *bridge.Payload) {
	ctx := c.Request.Context()
	reader, err := h.bridge.Stream(ctx, action, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer reader.Close()

	out := newNDJSONStream(c)
	for {
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			out.begin()
			return
		}
		if err != nil {
			if !out.started {
				h.fail(c, err)
				return
			}
			if ctx.Err() == nil {
				out.send(dto.BridgeChunk{Error: apperrors.AsAppError(err).Message})
			}
			return
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		if !out.send(dto.BridgeChunk{Text: msg.Content}) {
			return
		}
	}
}

func (h *BridgeHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.JSON(apperrors.StatusClientClosedRequest, dto.BridgeError{Error: "request canceled"})
		return
	}
	appErr := apperrors.AsAppError(err)
	c.JSON(appErr.HTTPStatus, dto.BridgeError{Error: appErr.Message})
}
