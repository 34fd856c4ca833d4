// Package handler 提供 HTTP 请求处理器
package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const ndjsonContentType = "application/x-ndjson; charset=utf-8"

// ndjsonStream 按行写出 JSON 并立即刷新。
// 第一次写出时才发送响应头，之前出错的请求仍可返回普通 JSON 错误。
type ndjsonStream struct {
	c       *gin.Context
	started bool
	broken  bool
}

func newNDJSONStream(c *gin.Context) *ndjsonStream {
	return &ndjsonStream{c: c}
}

func (s *ndjsonStream) begin() {
	if s.started {
		return
	}
	s.started = true
	h := s.c.Writer.Header()
	h.Set("Content-Type", ndjsonContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.c.Writer.WriteHeaderNow()
	s.c.Writer.Flush()
}

// send 写出一行，客户端断开后返回 false
func (s *ndjsonStream) send(v any) bool {
	if s.broken {
		return false
	}
	s.begin()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		s.broken = true
		return false
	}
	if _, err := s.c.Writer.Write(buf.Bytes()); err != nil {
		s.broken = true
		return false
	}
	s.c.Writer.Flush()
	return true
}
