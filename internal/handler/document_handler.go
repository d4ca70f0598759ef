package handler

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mchat/internal/pkg/errcode"
	"github.com/xxxsen/mchat/internal/pkg/response"
	"github.com/xxxsen/mchat/internal/service"
)

type DocumentHandler struct {
	documents   *service.DocumentService
	uploadLimit int64
}

func NewDocumentHandler(documents *service.DocumentService, uploadLimit int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, uploadLimit: uploadLimit}
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit, offset := pagination(c)
	items, err := h.documents.List(c.Request.Context(), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

// Upload accepts multipart form fields file, assistant_id, description and
// parameters (a JSON object).
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, opened, ok := formFile(c, h.uploadLimit)
	if !ok {
		return
	}
	defer opened.Close()

	in := service.DocumentUploadInput{
		File:        file,
		Description: strings.TrimSpace(c.PostForm("description")),
	}
	if raw := strings.TrimSpace(c.PostForm("assistant_id")); raw != "" {
		aid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || aid <= 0 {
			response.Error(c, errcode.ErrInvalid, "invalid assistant_id")
			return
		}
		in.AssistantID = &aid
	}
	if raw := strings.TrimSpace(c.PostForm("parameters")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Parameters); err != nil {
			response.Error(c, errcode.ErrInvalid, "parameters must be a json object")
			return
		}
	}
	doc, err := h.documents.Upload(c.Request.Context(), in)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.DocumentUpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), id, req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Parse(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.Parse(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}
