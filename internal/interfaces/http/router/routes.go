// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"

	"z-novel-studio/internal/interfaces/http/handler"
)

// RegisterBridgeRoutes 注册浏览器端直连的模型桥接路由
func RegisterBridgeRoutes(api *gin.RouterGroup, bridgeHandler *handler.BridgeHandler) {
	api.POST("/bridge", bridgeHandler.Handle)
}

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	sessionHandler *handler.SessionHandler,
	activityHandler *handler.ActivityHandler,
	schemaHandler *handler.SchemaHandler,
) {
	// 数据结构说明
	schemas := v1.Group("/schemas")
	{
		schemas.GET("", schemaHandler.List)
		schemas.GET("/:name", schemaHandler.Get)
	}

	// 创作会话
	sessions := v1.Group("/sessions")
	{
		sessions.POST("", sessionHandler.CreateSession)
		sessions.GET("", sessionHandler.ListSessions)
		sessions.GET("/:sid", sessionHandler.GetSession)
		sessions.DELETE("/:sid", sessionHandler.DeleteSession)
		sessions.PUT("/:sid/options", sessionHandler.UpdateOptions)
		sessions.PUT("/:sid/outline", sessionHandler.UpdateOutline)
		sessions.POST("/:sid/abort", sessionHandler.Abort)
		sessions.GET("/:sid/activity", activityHandler.Get)

		// 大纲
		sessions.POST("/:sid/plan", sessionHandler.Plan)
		sessions.POST("/:sid/titles", sessionHandler.GenerateTitles)
		sessions.POST("/:sid/outlines/iterate", sessionHandler.IterateOutline)
		sessions.GET("/:sid/outlines/history", sessionHandler.OutlineHistory)

		// 章节
		sessions.POST("/:sid/chapters/stream", sessionHandler.WriteChapter)
		sessions.POST("/:sid/chapters/regenerate", sessionHandler.RegenerateChapter)
		sessions.POST("/:sid/chapters/edit", sessionHandler.EditChapter)
		sessions.PUT("/:sid/chapters/:cid", sessionHandler.UpdateChapter)

		// 辅助工具
		tools := sessions.Group("/:sid/tools")
		{
			tools.POST("/worldbook", sessionHandler.WorldbookSuggestions)
			tools.POST("/character-arc", sessionHandler.CharacterArcSuggestions)
			tools.POST("/narrative", sessionHandler.NarrativeToolbox)
			tools.POST("/character", sessionHandler.NewCharacter)
			tools.POST("/interaction", sessionHandler.CharacterInteraction)
		}
	}
}
