package service

import (
	"context"

	"github.com/xxxsen/mchat/internal/model"
)

type AssistantStore interface {
	Create(ctx context.Context, a *model.Assistant) error
	Update(ctx context.Context, a *model.Assistant) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.Assistant, error)
	List(ctx context.Context) ([]*model.Assistant, error)
	Count(ctx context.Context) (int, error)
}

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Update(ctx context.Context, doc *model.Document) error
	UpdateParseState(ctx context.Context, doc *model.Document) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.Document, error)
	List(ctx context.Context, limit, offset uint) ([]*model.Document, error)
	ListByStatus(ctx context.Context, status string, limit uint) ([]*model.Document, error)
}

type DocumentChunkStore interface {
	ReplaceForDocument(ctx context.Context, documentID int64, chunks []*model.DocumentChunk) error
	DeleteByDocument(ctx context.Context, documentID int64) error
}

type ConversationStore interface {
	Create(ctx context.Context, c *model.Conversation) error
	Get(ctx context.Context, assistantID int64, id string) (*model.Conversation, error)
	ListByAssistant(ctx context.Context, assistantID int64, limit, offset uint) ([]*model.Conversation, error)
	Touch(ctx context.Context, assistantID int64, id, title string, mtime int64) error
	Delete(ctx context.Context, assistantID int64, id string) error
}

type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, assistantID int64, conversationID string) ([]*model.Message, error)
}

type AttachmentChunkWriter interface {
	CreateBatch(ctx context.Context, chunks []*model.AttachmentChunk) error
}
