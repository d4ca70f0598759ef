package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mchat/internal/extract"
	"github.com/xxxsen/mchat/internal/filestore"
	"github.com/xxxsen/mchat/internal/metrics"
	"github.com/xxxsen/mchat/internal/model"
	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
	"github.com/xxxsen/mchat/internal/pkg/timeutil"
	"github.com/xxxsen/mchat/internal/rag"
)

const untitledDocument = "Untitled Document"

// UploadFile is a file handed over by a multipart request.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type DocumentUploadInput struct {
	File        UploadFile
	AssistantID *int64
	Description string
	Parameters  map[string]interface{}
}

type DocumentUpdateInput struct {
	Name        *string                `json:"name"`
	Description *string                `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	AssistantID *int64                 `json:"assistant_id"`
}

type DocumentService struct {
	docs        DocumentStore
	chunks      DocumentChunkStore
	files       filestore.Store
	uploadLimit int64
}

func NewDocumentService(docs DocumentStore, chunks DocumentChunkStore, files filestore.Store, uploadLimit int64) *DocumentService {
	return &DocumentService{docs: docs, chunks: chunks, files: files, uploadLimit: uploadLimit}
}

func (s *DocumentService) List(ctx context.Context, limit, offset uint) ([]*model.Document, error) {
	return s.docs.List(ctx, limit, offset)
}

func (s *DocumentService) Get(ctx context.Context, id int64) (*model.Document, error) {
	return s.docs.GetByID(ctx, id)
}

func (s *DocumentService) Upload(ctx context.Context, in DocumentUploadInput) (*model.Document, error) {
	if strings.TrimSpace(in.File.Filename) == "" || in.File.Reader == nil {
		return nil, appErr.Invalid("file is required")
	}
	if s.uploadLimit > 0 && in.File.Size > s.uploadLimit {
		return nil, appErr.Invalid("file too large")
	}
	key := filestore.NewKey(in.File.Filename)
	if err := s.files.Save(ctx, key, in.File.Reader, in.File.Size, in.File.ContentType); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	now := timeutil.NowUnix()
	params := in.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	doc := &model.Document{
		Name:             documentName(in.File.Filename),
		OriginalFilename: in.File.Filename,
		FileKey:          key,
		FileSize:         in.File.Size,
		ContentType:      in.File.ContentType,
		AssistantID:      in.AssistantID,
		ParseStatus:      model.ParseStatusUploaded,
		Parameters:       params,
		ParseResult:      map[string]interface{}{},
		Description:      in.Description,
		Ctime:            now,
		Mtime:            now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		_ = s.files.Delete(ctx, key)
		return nil, err
	}
	logutil.GetLogger(ctx).Info("document uploaded",
		zap.Int64("document_id", doc.ID), zap.String("filename", doc.OriginalFilename), zap.Int64("size", doc.FileSize))
	return doc, nil
}

func (s *DocumentService) Update(ctx context.Context, id int64, in DocumentUpdateInput) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, appErr.Invalid("name is required")
		}
		doc.Name = name
	}
	if in.Description != nil {
		doc.Description = *in.Description
	}
	if in.Parameters != nil {
		doc.Parameters = in.Parameters
	}
	if in.AssistantID != nil {
		doc.AssistantID = in.AssistantID
	}
	doc.Mtime = timeutil.NowUnix()
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Parse extracts, splits, chunks and embeds a document and replaces its
// stored chunks. A missing file is recorded on the document, not returned.
func (s *DocumentService) Parse(ctx context.Context, id int64) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.Int64("document_id", doc.ID), zap.String("file_key", doc.FileKey))
	now := timeutil.NowUnix()
	summary := map[string]interface{}{
		"file_exists": true,
		"file_size":   doc.FileSize,
		"chunk_count": 0,
	}
	data, err := s.readFile(ctx, doc.FileKey)
	switch {
	case appErr.IsNotFound(err):
		logger.Warn("document file missing")
		summary["file_exists"] = false
		summary["message"] = "File missing, status updated"
		doc.ParseStatus = model.ParseStatusMissingFile
	case err != nil:
		return nil, s.markFailed(ctx, doc, now, fmt.Errorf("read document file: %w", err))
	default:
		text, xerr := extract.Text(doc.OriginalFilename, doc.ContentType, data)
		if xerr != nil {
			logger.Warn("extract document text failed, treat as empty", zap.Error(xerr))
			text = ""
		}
		params := rag.ResolveParams(doc.Parameters)
		res := rag.BuildDocumentChunks(doc, text, params, now)
		if err := s.chunks.ReplaceForDocument(ctx, doc.ID, res.Chunks); err != nil {
			return nil, s.markFailed(ctx, doc, now, fmt.Errorf("replace chunks: %w", err))
		}
		summary["chunk_count"] = len(res.Chunks)
		summary["char_count"] = res.CharCount
		summary["sections"] = res.Sections
		summary["parameters_applied"] = params.AsMap()
		doc.ParseStatus = model.ParseStatusParsedNoText
		if len(res.Chunks) > 0 {
			doc.ParseStatus = model.ParseStatusParsed
		}
	}
	doc.ParsedAt = now
	doc.ParseResult = summary
	doc.Mtime = now
	if err := s.docs.UpdateParseState(ctx, doc); err != nil {
		return nil, err
	}
	metrics.DocumentsParsed.WithLabelValues(doc.ParseStatus).Inc()
	logger.Info("document parsed", zap.String("status", doc.ParseStatus), zap.Any("chunk_count", summary["chunk_count"]))
	return doc, nil
}

func (s *DocumentService) readFile(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.files.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return extract.ReadAll(rc, s.uploadLimit)
}

func (s *DocumentService) markFailed(ctx context.Context, doc *model.Document, now int64, cause error) error {
	doc.ParseStatus = model.ParseStatusFailed
	doc.ParsedAt = now
	doc.Mtime = now
	doc.ParseResult = map[string]interface{}{
		"file_exists": true,
		"file_size":   doc.FileSize,
		"chunk_count": 0,
		"message":     cause.Error(),
	}
	metrics.DocumentsParsed.WithLabelValues(doc.ParseStatus).Inc()
	if err := s.docs.UpdateParseState(ctx, doc); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Delete removes chunks and the record; the stored file goes best effort.
func (s *DocumentService) Delete(ctx context.Context, id int64) error {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.chunks.DeleteByDocument(ctx, id); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, doc.FileKey); err != nil {
		logutil.GetLogger(ctx).Warn("delete document file failed", zap.Int64("document_id", id), zap.Error(err))
	}
	return nil
}

// ProcessPending parses up to batch documents still in the uploaded state.
func (s *DocumentService) ProcessPending(ctx context.Context, batch uint) (int, error) {
	docs, err := s.docs.ListByStatus(ctx, model.ParseStatusUploaded, batch)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := s.Parse(ctx, doc.ID); err != nil {
			logutil.GetLogger(ctx).Error("parse pending document failed", zap.Int64("document_id", doc.ID), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

func documentName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(name) == "" || name == "." || name == "/" {
		return untitledDocument
	}
	return name
}
