package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mchat/internal/model"
	"github.com/xxxsen/mchat/internal/pkg/errcode"
	"github.com/xxxsen/mchat/internal/pkg/response"
	"github.com/xxxsen/mchat/internal/service"
)

type ChatHandler struct {
	chat        *service.ChatService
	uploadLimit int64
}

func NewChatHandler(chat *service.ChatService, uploadLimit int64) *ChatHandler {
	return &ChatHandler{chat: chat, uploadLimit: uploadLimit}
}

type conversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type sendRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type historyResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []*model.Message `json:"messages"`
}

func (h *ChatHandler) EnsureConversation(c *gin.Context) {
	aid, ok := paramID(c, "assistant_id")
	if !ok {
		return
	}
	var req conversationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	conv, err := h.chat.EnsureConversation(c.Request.Context(), aid, strings.TrimSpace(req.ConversationID))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, conv)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	aid, ok := paramID(c, "assistant_id")
	if !ok {
		return
	}
	limit, offset := pagination(c)
	items, err := h.chat.ListConversations(c.Request.Context(), aid, limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	aid, ok := paramID(c, "assistant_id")
	if !ok {
		return
	}
	cid := c.Param("conversation_id")
	if err := h.chat.DeleteConversation(c.Request.Context(), aid, cid); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"conversation_id": cid})
}

func (h *ChatHandler) History(c *gin.Context) {
	aid, ok := paramID(c, "assistant_id")
	if !ok {
		return
	}
	cid := strings.TrimSpace(c.Query("conversation_id"))
	msgs, err := h.chat.History(c.Request.Context(), aid, cid)
	if err != nil {
		handleError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	response.Success(c, historyResponse{ConversationID: cid, Messages: msgs})
}

func (h *ChatHandler) Send(c *gin.Context) {
	aid, ok := paramID(c, "assistant_id")
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.chat.SendTurn(c.Request.Context(), aid, strings.TrimSpace(req.ConversationID), req.Message)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *ChatHandler) UploadAttachment(c *gin.Context) {
	aid, ok := paramID(c, "assistant_id")
	if !ok {
		return
	}
	file, opened, ok := formFile(c, h.uploadLimit)
	if !ok {
		return
	}
	defer opened.Close()
	cid := strings.TrimSpace(c.PostForm("conversation_id"))
	if cid == "" {
		response.Error(c, errcode.ErrInvalid, "conversation_id is required")
		return
	}
	msg, err := h.chat.UploadAttachment(c.Request.Context(), aid, cid, file)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, msg)
}

func (h *ChatHandler) Context(c *gin.Context) {
	aid, ok := paramID(c, "assistant_id")
	if !ok {
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "q is required")
		return
	}
	result, err := h.chat.RetrieveContext(c.Request.Context(), aid, strings.TrimSpace(c.Query("conversation_id")), query)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
