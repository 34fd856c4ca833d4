// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/interfaces/http/dto"
	apperrors "z-novel-studio/pkg/errors"
)

func generateSchema[T any]() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

// SchemaHandler 对外暴露领域对象的 JSON Schema，供前端校验与表单生成
type SchemaHandler struct {
	schemas map[string]*jsonschema.Schema
	names   []string
}

// NewSchemaHandler 创建 Schema 处理器，启动时一次性反射
func NewSchemaHandler() *SchemaHandler {
	schemas := map[string]*jsonschema.Schema{
		"story-options":    generateSchema[entity.StoryOptions](),
		"story-outline":    generateSchema[entity.StoryOutline](),
		"character":        generateSchema[entity.CharacterProfile](),
		"detailed-outline": generateSchema[entity.DetailedOutlineAnalysis](),
		"outline-critique": generateSchema[entity.OutlineCritique](),
		"final-outline":    generateSchema[entity.FinalDetailedOutline](),
		"chapter":          generateSchema[entity.GeneratedChapter](),
		"bridge-request":   generateSchema[dto.BridgeRequest](),
	}
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return &SchemaHandler{schemas: schemas, names: names}
}

// List 列出可用的 Schema 名称
// @Summary Schema 列表
// @Tags System
// @Produce json
// @Success 200 {object} dto.Response[[]string]
// @Router /v1/schemas [get]
func (h *SchemaHandler) List(c *gin.Context) {
	dto.Success(c, h.names)
}

// Get 获取指定 Schema
// @Summary 获取 JSON Schema
// @Tags System
// @Produce json
// @Param name path string true "Schema 名称"
// @Success 200 "JSON Schema"
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/schemas/{name} [get]
func (h *SchemaHandler) Get(c *gin.Context) {
	s, ok := h.schemas[c.Param("name")]
	if !ok {
		respondError(c, apperrors.Newf(apperrors.CodeNotFound, "schema not found: %s", c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, s)
}
