package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mchat/internal/pkg/errcode"
	"github.com/xxxsen/mchat/internal/pkg/response"
	"github.com/xxxsen/mchat/internal/service"
)

type AssistantHandler struct {
	assistants *service.AssistantService
}

func NewAssistantHandler(assistants *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistants: assistants}
}

func (h *AssistantHandler) List(c *gin.Context) {
	items, err := h.assistants.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *AssistantHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	item, err := h.assistants.Get(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}

func (h *AssistantHandler) Create(c *gin.Context) {
	var req service.AssistantInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	item, err := h.assistants.Create(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}

func (h *AssistantHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.AssistantInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	item, err := h.assistants.Update(c.Request.Context(), id, req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}

type promptRequest struct {
	PromptContent string `json:"prompt_content"`
}

func (h *AssistantHandler) UpdatePrompt(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	item, err := h.assistants.UpdatePrompt(c.Request.Context(), id, req.PromptContent)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}

type parametersRequest struct {
	ModelParameters map[string]interface{} `json:"model_parameters"`
}

func (h *AssistantHandler) UpdateParameters(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req parametersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	item, err := h.assistants.UpdateParameters(c.Request.Context(), id, req.ModelParameters)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}

type knowledgeBindingRequest struct {
	KnowledgeIDs []int64 `json:"knowledge_ids"`
}

func (h *AssistantHandler) BindKnowledge(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req knowledgeBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	item, err := h.assistants.BindKnowledge(c.Request.Context(), id, req.KnowledgeIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}

func (h *AssistantHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.assistants.Delete(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}
