package handler_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/mchat/internal/ai"
	"github.com/xxxsen/mchat/internal/model"
	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
)

type memAssistants struct {
	mu     sync.Mutex
	items  map[int64]*model.Assistant
	nextID int64
}

func (m *memAssistants) Create(_ context.Context, a *model.Assistant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *memAssistants) Update(_ context.Context, a *model.Assistant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; !ok {
		return appErr.ErrNotFound
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *memAssistants) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memAssistants) GetByID(_ context.Context, id int64) (*model.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAssistants) List(_ context.Context) ([]*model.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Assistant, 0, len(m.items))
	for _, a := range m.items {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAssistants) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

type memConversations struct {
	mu    sync.Mutex
	items map[string]*model.Conversation
}

func convKey(assistantID int64, id string) string {
	return fmt.Sprintf("%d/%s", assistantID, id)
}

func (m *memConversations) Create(_ context.Context, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := convKey(c.AssistantID, c.ID)
	if _, ok := m.items[k]; ok {
		return appErr.ErrConflict
	}
	cp := *c
	m.items[k] = &cp
	return nil
}

func (m *memConversations) Get(_ context.Context, assistantID int64, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[convKey(assistantID, id)]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConversations) ListByAssistant(_ context.Context, assistantID int64, _, _ uint) ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Conversation, 0)
	for _, c := range m.items {
		if c.AssistantID == assistantID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memConversations) Touch(_ context.Context, assistantID int64, id, title string, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[convKey(assistantID, id)]
	if !ok {
		return appErr.ErrNotFound
	}
	c.Mtime = mtime
	if title != "" {
		c.Title = title
	}
	return nil
}

func (m *memConversations) Delete(_ context.Context, assistantID int64, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := convKey(assistantID, id)
	if _, ok := m.items[k]; !ok {
		return appErr.ErrNotFound
	}
	delete(m.items, k)
	return nil
}

type memMessages struct {
	mu     sync.Mutex
	items  []*model.Message
	nextID int64
}

func (m *memMessages) Create(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	cp := *msg
	m.items = append(m.items, &cp)
	return nil
}

func (m *memMessages) ListByConversation(_ context.Context, assistantID int64, conversationID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Message, 0)
	for _, msg := range m.items {
		if msg.AssistantID == assistantID && msg.ConversationID == conversationID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memAttachmentChunks struct {
	mu    sync.Mutex
	items []*model.AttachmentChunk
}

func (m *memAttachmentChunks) CreateBatch(_ context.Context, chunks []*model.AttachmentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, chunks...)
	return nil
}

type memDocuments struct {
	mu     sync.Mutex
	items  map[int64]*model.Document
	nextID int64
}

func (m *memDocuments) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	doc.ID = m.nextID
	cp := *doc
	m.items[doc.ID] = &cp
	return nil
}

func (m *memDocuments) Update(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[doc.ID]; !ok {
		return appErr.ErrNotFound
	}
	cp := *doc
	m.items[doc.ID] = &cp
	return nil
}

func (m *memDocuments) UpdateParseState(ctx context.Context, doc *model.Document) error {
	return m.Update(ctx, doc)
}

func (m *memDocuments) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memDocuments) GetByID(_ context.Context, id int64) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.items[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memDocuments) List(_ context.Context, _, _ uint) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Document, 0, len(m.items))
	for _, doc := range m.items {
		cp := *doc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDocuments) ListByStatus(ctx context.Context, status string, _ uint) ([]*model.Document, error) {
	all, _ := m.List(ctx, 0, 0)
	out := make([]*model.Document, 0)
	for _, doc := range all {
		if doc.ParseStatus == status {
			out = append(out, doc)
		}
	}
	return out, nil
}

type memDocumentChunks struct {
	mu    sync.Mutex
	items map[int64][]*model.DocumentChunk
}

func (m *memDocumentChunks) ReplaceForDocument(_ context.Context, documentID int64, chunks []*model.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[documentID] = chunks
	return nil
}

func (m *memDocumentChunks) DeleteByDocument(_ context.Context, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, documentID)
	return nil
}

// echoCompleter replies with a fixed text, or fails when err is set.
type echoCompleter struct {
	reply string
	err   error
}

func (e *echoCompleter) Complete(_ context.Context, _ []ai.Message) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	return e.reply, nil
}

func (e *echoCompleter) Stream(_ context.Context, _ []ai.Message, emit ai.EmitFunc) error {
	if e.err != nil {
		return e.err
	}
	for _, part := range strings.SplitAfter(e.reply, " ") {
		if err := emit(part); err != nil {
			return err
		}
	}
	return nil
}
