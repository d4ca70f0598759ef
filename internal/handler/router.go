package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mchat/internal/middleware"
)

type RouterDeps struct {
	Assistants   *AssistantHandler
	Chat         *ChatHandler
	WS           *WSHandler
	Documents    *DocumentHandler
	Files        *FileHandler
	SendInterval time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/assistants", deps.Assistants.List)
	api.GET("/assistants/:id", deps.Assistants.Get)

	api.POST("/conversations/:assistant_id", deps.Chat.EnsureConversation)
	api.GET("/conversations/:assistant_id", deps.Chat.ListConversations)
	api.DELETE("/conversations/:assistant_id/:conversation_id", deps.Chat.DeleteConversation)

	api.GET("/chat/:assistant_id/history", deps.Chat.History)
	api.POST("/chat/:assistant_id", middleware.RateLimit(deps.SendInterval), deps.Chat.Send)
	api.POST("/chat/:assistant_id/attachments", deps.Chat.UploadAttachment)
	api.GET("/chat/:assistant_id/context", deps.Chat.Context)
	api.GET("/ws/chat/:assistant_id", deps.WS.Chat)

	admin := api.Group("/admin")
	admin.GET("/assistants", deps.Assistants.List)
	admin.POST("/assistants", deps.Assistants.Create)
	admin.GET("/assistants/:id", deps.Assistants.Get)
	admin.PUT("/assistants/:id", deps.Assistants.Update)
	admin.DELETE("/assistants/:id", deps.Assistants.Delete)
	admin.PUT("/assistants/:id/prompt", deps.Assistants.UpdatePrompt)
	admin.PUT("/assistants/:id/parameters", deps.Assistants.UpdateParameters)
	admin.PUT("/assistants/:id/knowledge_binding", deps.Assistants.BindKnowledge)

	admin.GET("/docs", deps.Documents.List)
	admin.POST("/docs", deps.Documents.Upload)
	admin.GET("/docs/:id", deps.Documents.Get)
	admin.PUT("/docs/:id", deps.Documents.Update)
	admin.DELETE("/docs/:id", deps.Documents.Delete)
	admin.POST("/docs/:id/parse", deps.Documents.Parse)

	api.GET("/files/:key", deps.Files.Get)
}
