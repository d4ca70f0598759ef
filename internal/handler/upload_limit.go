package handler

import (
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mchat/internal/pkg/errcode"
	"github.com/xxxsen/mchat/internal/pkg/response"
	"github.com/xxxsen/mchat/internal/service"
)

func formatUploadLimit(bytes int64) string {
	const mb = 1024 * 1024
	if bytes <= 0 {
		return "0MB"
	}
	value := bytes / mb
	if value <= 0 {
		value = 1
	}
	return strconv.FormatInt(value, 10) + "MB"
}

// formFile opens the multipart "file" field. The caller closes the file.
func formFile(c *gin.Context, limit int64) (service.UploadFile, multipart.File, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return service.UploadFile{}, nil, false
	}
	if limit > 0 && header.Size > limit {
		response.Error(c, errcode.ErrInvalidFile, "file exceeds "+formatUploadLimit(limit))
		return service.UploadFile{}, nil, false
	}
	opened, err := header.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return service.UploadFile{}, nil, false
	}
	return service.UploadFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Reader:      opened,
	}, opened, true
}
